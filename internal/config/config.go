// Package config provides unified configuration for the nutrisage commands.
//
// Values are layered: defaults, then an optional YAML or JSON file, then a
// .env file, then NUTRISAGE_* environment variables. Command-line flags are
// applied last by each command.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nutrisage/nutrisage/internal/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by LoadFromEnv.
const EnvPrefix = "NUTRISAGE_"

// Storage types.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds the configuration shared by all commands.
type Config struct {
	// DataDir is the base directory for local work files.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Schema is an optional schema definition file. Empty selects the
	// embedded default contract.
	Schema string `json:"schema" yaml:"schema"`

	Storage    StorageConfig  `json:"storage" yaml:"storage"`
	Ingest     IngestConfig   `json:"ingest" yaml:"ingest"`
	Validation ValidateConfig `json:"validate" yaml:"validate"`
	Clean      CleanConfig    `json:"clean" yaml:"clean"`
	Metrics    MetricsConfig  `json:"metrics" yaml:"metrics"`
	Log        LogConfig      `json:"log" yaml:"log"`
}

// StorageConfig selects the object storage backend.
type StorageConfig struct {
	// Type is local or s3.
	Type string `json:"type" yaml:"type"`

	// Path is the root directory for local storage. Bucket names become
	// subdirectories of it.
	Path string `json:"path" yaml:"path"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 connection settings.
type S3Config struct {
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	Profile      string `json:"profile" yaml:"profile"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	// Input is the JSON-lines input file, optionally compressed.
	Input string `json:"input" yaml:"input"`

	// RawBucket receives the archived input when UploadRaw is set.
	RawBucket string `json:"raw_bucket" yaml:"raw_bucket"`

	// ProcBucket receives the partitioned dataset.
	ProcBucket string `json:"proc_bucket" yaml:"proc_bucket"`

	// Prefix is the dataset key prefix inside ProcBucket.
	Prefix string `json:"prefix" yaml:"prefix"`

	// ChunkRows is the number of lines read per chunk.
	ChunkRows int `json:"chunk_rows" yaml:"chunk_rows"`

	// Pipelined overlaps the write of one chunk with reading the next.
	Pipelined bool `json:"pipelined" yaml:"pipelined"`

	// UploadRaw archives the input file under raw/ before ingesting.
	UploadRaw bool `json:"upload_raw" yaml:"upload_raw"`

	// WorkDir holds fragment files before upload.
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	// Manifest is the local catalog database.
	Manifest string `json:"manifest" yaml:"manifest"`
}

// ValidateConfig holds validation settings.
type ValidateConfig struct {
	Bucket   string `json:"bucket" yaml:"bucket"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	Detailed bool   `json:"detailed" yaml:"detailed"`

	// DownloadDir stages the catalog snapshot while it is inspected.
	DownloadDir string `json:"download_dir" yaml:"download_dir"`

	// Concurrency bounds parallel footer reads and fragment downloads.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// CleanConfig holds cleaning settings.
type CleanConfig struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Prefix string `json:"prefix" yaml:"prefix"`

	// Out is the local Parquet file receiving the cleaned table.
	Out string `json:"out" yaml:"out"`

	// WriteOutliers enables the outlier audit.
	WriteOutliers bool `json:"write_outliers" yaml:"write_outliers"`

	// AuditPrefix is the key prefix of audit files.
	AuditPrefix string `json:"audit_prefix" yaml:"audit_prefix"`
}

// MetricsConfig holds Prometheus Pushgateway settings. An empty URL
// disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `json:"job" yaml:"job"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" yaml:"level"`

	// Format is text or json.
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/nutrisage",
		Storage: StorageConfig{
			Type: StorageLocal,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Ingest: IngestConfig{
			Prefix:    "processed",
			ChunkRows: 50000,
		},
		Validation: ValidateConfig{
			Prefix:      "processed",
			Concurrency: 8,
		},
		Clean: CleanConfig{
			Prefix:      "processed",
			AuditPrefix: "logs/outliers",
		},
		Metrics: MetricsConfig{
			Job: "nutrisage",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Resolve fills paths derived from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/nutrisage"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Ingest.WorkDir == "" {
		c.Ingest.WorkDir = filepath.Join(c.DataDir, "fragments")
	}
	if c.Ingest.Manifest == "" {
		c.Ingest.Manifest = c.DefaultManifestPath()
	}
	if c.Validation.DownloadDir == "" {
		c.Validation.DownloadDir = filepath.Join(c.DataDir, "downloads")
	}
}

// DefaultManifestPath returns the local catalog path for the configured
// processed bucket and prefix, <data_dir>/manifests/<bucket>/<prefix>.db.
// Each dataset gets its own catalog so that snapshots never mix fragments
// of different buckets. Without a bucket it is <data_dir>/manifest.db.
func (c *Config) DefaultManifestPath() string {
	if c.Ingest.ProcBucket == "" {
		return filepath.Join(c.DataDir, "manifest.db")
	}
	prefix := strings.Trim(c.Ingest.Prefix, "/")
	if prefix == "" {
		prefix = "_root"
	}
	name := strings.ReplaceAll(prefix, "/", "_") + ".db"
	return filepath.Join(c.DataDir, "manifests", c.Ingest.ProcBucket, name)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.Type != StorageLocal && c.Storage.Type != StorageS3 {
		return errors.NewConfigError(errors.CodeInvalidSetting,
			fmt.Sprintf("invalid storage type: %s (must be local or s3)", c.Storage.Type))
	}
	if c.Storage.Type == StorageLocal && c.Storage.Path == "" && c.DataDir == "" {
		return errors.NewConfigError(errors.CodeInvalidSetting, "storage.path or data_dir is required for local storage")
	}
	if c.Ingest.ChunkRows < 1 {
		return errors.NewConfigError(errors.CodeInvalidSetting,
			fmt.Sprintf("ingest.chunk_rows must be at least 1, got %d", c.Ingest.ChunkRows))
	}
	if c.Validation.Concurrency < 1 {
		return errors.NewConfigError(errors.CodeInvalidSetting,
			fmt.Sprintf("validate.concurrency must be at least 1, got %d", c.Validation.Concurrency))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewConfigError(errors.CodeInvalidSetting, fmt.Sprintf("invalid log level: %s", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.NewConfigError(errors.CodeInvalidSetting, fmt.Sprintf("invalid log format: %s", c.Log.Format))
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeInvalidSetting, "failed to read config file", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapConfigError(errors.CodeInvalidSetting, "failed to parse YAML config", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapConfigError(errors.CodeInvalidSetting, "failed to parse JSON config", err)
		}
	default:
		return nil, errors.NewConfigError(errors.CodeInvalidSetting, fmt.Sprintf("unsupported config file format: %s", ext))
	}

	return cfg, nil
}

// Load builds the configuration from defaults, the optional file at path,
// the optional dotenv file and the environment.
func Load(path, dotenv string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadDotEnv(dotenv); err != nil {
		return nil, err
	}
	LoadFromEnv(cfg)
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file without overriding variables
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.WrapConfigError(errors.CodeInvalidSetting, "failed to load "+path, err)
	}
	return nil
}

// LoadFromEnv applies NUTRISAGE_* environment variables. WRITE_OUTLIERS is
// honoured without the prefix as well.
func LoadFromEnv(cfg *Config) {
	setString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = parseBool(v)
		}
	}

	setString("DATA_DIR", &cfg.DataDir)
	setString("SCHEMA", &cfg.Schema)

	setString("STORAGE_TYPE", &cfg.Storage.Type)
	setString("STORAGE_PATH", &cfg.Storage.Path)
	setString("S3_REGION", &cfg.Storage.S3.Region)
	setString("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	setString("S3_PROFILE", &cfg.Storage.S3.Profile)
	setBool("S3_USE_PATH_STYLE", &cfg.Storage.S3.UsePathStyle)

	setString("INGEST_INPUT", &cfg.Ingest.Input)
	setString("RAW_BUCKET", &cfg.Ingest.RawBucket)
	setString("PROC_BUCKET", &cfg.Ingest.ProcBucket)
	setString("INGEST_PREFIX", &cfg.Ingest.Prefix)
	setInt("CHUNK_ROWS", &cfg.Ingest.ChunkRows)
	setBool("PIPELINED", &cfg.Ingest.Pipelined)
	setBool("UPLOAD_RAW", &cfg.Ingest.UploadRaw)
	setString("WORK_DIR", &cfg.Ingest.WorkDir)
	setString("MANIFEST", &cfg.Ingest.Manifest)

	setString("VALIDATE_BUCKET", &cfg.Validation.Bucket)
	setBool("VALIDATE_DETAILED", &cfg.Validation.Detailed)
	setInt("VALIDATE_CONCURRENCY", &cfg.Validation.Concurrency)

	setString("CLEAN_BUCKET", &cfg.Clean.Bucket)
	setString("CLEAN_OUT", &cfg.Clean.Out)
	setString("AUDIT_PREFIX", &cfg.Clean.AuditPrefix)
	if v := os.Getenv("WRITE_OUTLIERS"); v != "" {
		cfg.Clean.WriteOutliers = parseBool(v)
	}
	setBool("WRITE_OUTLIERS", &cfg.Clean.WriteOutliers)

	setString("PUSHGATEWAY_URL", &cfg.Metrics.PushgatewayURL)
	setString("METRICS_JOB", &cfg.Metrics.Job)

	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// EnsureDirectories creates all local directories the configuration uses.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.Ingest.WorkDir, c.Validation.DownloadDir}
	if c.Ingest.Manifest != "" {
		dirs = append(dirs, filepath.Dir(c.Ingest.Manifest))
	}
	if c.Storage.Type == StorageLocal {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
