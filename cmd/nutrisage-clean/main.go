// Package main implements nutrisage-clean, which materialises the dataset
// as a training table.
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
		configFile    string
		envFile       string
		dataDir       string
		schemaFile    string
		storageType   string
		storagePath   string
		bucket        string
		prefix        string
		profile       string
		out           string
		writeOutliers bool
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
	flag.StringVar(&out, "out", "", "Output Parquet file")
	flag.BoolVar(&writeOutliers, "write-outliers", false, "Write removed outlier rows to logs/outliers/<date>.parquet")
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
			cfg.Clean.Bucket = bucket
		case "prefix":
			cfg.Clean.Prefix = prefix
		case "profile":
			cfg.Storage.S3.Profile = profile
		case "out":
			cfg.Clean.Out = out
		case "write-outliers":
			cfg.Clean.WriteOutliers = writeOutliers
		}
	})

	a, err := app.New(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	report, err := a.RunClean(ctx)
	if err != nil {
		a.Logger().Error("clean failed", "error", err)
		stop()
		os.Exit(1)
	}
	fmt.Printf("wrote %d of %d rows to %s\n", report.RowsOut, report.RowsIn, report.Out)
}
