// Package app wires configuration, storage, the schema contract and
// observability for the nutrisage commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nutrisage/nutrisage/internal/config"
	"github.com/nutrisage/nutrisage/internal/errors"
	"github.com/nutrisage/nutrisage/internal/observability"
	"github.com/nutrisage/nutrisage/internal/schema"
	"github.com/nutrisage/nutrisage/internal/storage"
)

// App holds the resources shared by one command invocation.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	contract *schema.Contract
	metrics  *observability.Metrics
}

// New resolves and validates cfg, loads the schema contract and creates
// the logger and metrics. Log output goes to w.
func New(cfg *config.Config, w io.Writer) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	contract, err := LoadContract(cfg.Schema)
	if err != nil {
		return nil, err
	}
	metrics, err := observability.NewMetrics(cfg.Metrics.Job, cfg.Metrics.PushgatewayURL)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		logger:   NewLogger(cfg.Log, w),
		contract: contract,
		metrics:  metrics,
	}, nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the command logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Contract returns the schema contract.
func (a *App) Contract() *schema.Contract { return a.contract }

// Metrics returns the ingest metrics.
func (a *App) Metrics() *observability.Metrics { return a.metrics }

// NewLogger creates a text or JSON slog logger at the configured level.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LoadContract loads the schema definition at path, or the embedded default
// when path is empty.
func LoadContract(path string) (*schema.Contract, error) {
	if path == "" {
		return schema.Default(), nil
	}
	return schema.LoadFile(path)
}

// OpenStore opens the object storage for bucket. Local storage maps the
// bucket to a subdirectory of the storage path.
func (a *App) OpenStore(ctx context.Context, bucket string) (storage.ObjectStorage, error) {
	if bucket == "" {
		return nil, errors.NewConfigError(errors.CodeInvalidSetting, "bucket is required")
	}

	switch a.cfg.Storage.Type {
	case config.StorageLocal:
		store, err := storage.NewLocalStorage(filepath.Join(a.cfg.Storage.Path, bucket))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.logger.Debug("storage initialized", "type", config.StorageLocal, "path", store.BasePath())
		return store, nil
	case config.StorageS3:
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.Profile = a.cfg.Storage.S3.Profile
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		store, err := storage.NewS3Storage(ctx, bucket, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.logger.Debug("storage initialized",
			"type", config.StorageS3,
			"bucket", store.Bucket(),
			"region", s3Cfg.Region,
			"profile", s3Cfg.Profile)
		return store, nil
	default:
		return nil, errors.NewConfigError(errors.CodeInvalidSetting,
			fmt.Sprintf("unsupported storage type: %s", a.cfg.Storage.Type))
	}
}

// PushMetrics pushes the metrics registry when a Pushgateway is configured.
// Failures are logged, not returned.
func (a *App) PushMetrics(ctx context.Context) {
	if err := a.metrics.Push(ctx); err != nil {
		a.logger.Warn("failed to push metrics", "error", err)
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
