// Package main implements nutrisage-validate, which checks the metadata of
// the written dataset against the schema contract.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/nutrisage/nutrisage/internal/app"
	"github.com/nutrisage/nutrisage/internal/config"
)

func main() {
	var (
		configFile  string
		envFile     string
		dataDir     string
		schemaFile  string
		storageType string
		storagePath string
		bucket      string
		prefix      string
		profile     string
		detailed    bool
		concurrency int
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env-file", ".env", "Path to dotenv file")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for local work files")
	flag.StringVar(&schemaFile, "schema", "", "Schema definition file (default: embedded contract)")
	flag.StringVar(&storageType, "storage", "", "Storage type: local or s3")
	flag.StringVar(&storagePath, "storage-path", "", "Root directory of local storage")
	flag.StringVar(&bucket, "bucket", "", "Bucket holding the dataset")
	flag.StringVar(&prefix, "prefix", "", "Dataset key prefix")
	flag.StringVar(&profile, "profile", "", "AWS shared config profile")
	flag.BoolVar(&detailed, "detailed", false, "Read every fragment footer instead of the catalog snapshot")
	flag.IntVar(&concurrency, "concurrency", 0, "Parallel fragment footer reads")
	flag.Parse()

	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data-dir":
			cfg.DataDir = dataDir
		case "schema":
			cfg.Schema = schemaFile
		case "storage":
			cfg.Storage.Type = storageType
		case "storage-path":
			cfg.Storage.Path = storagePath
		case "bucket":
			cfg.Validation.Bucket = bucket
		case "prefix":
			cfg.Validation.Prefix = prefix
		case "profile":
			cfg.Storage.S3.Profile = profile
		case "detailed":
			cfg.Validation.Detailed = detailed
		case "concurrency":
			cfg.Validation.Concurrency = concurrency
		}
	})

	a, err := app.New(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	res, err := a.RunValidate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		stop()
		os.Exit(1)
	}
	fmt.Printf("dataset OK: %d rows (%s metadata)\n", res.RowCount, res.Shape)
}
