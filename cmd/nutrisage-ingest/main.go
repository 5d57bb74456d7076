// Package main implements nutrisage-ingest, which appends a JSON-lines
// product dump to the partitioned Parquet dataset.
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
		input       string
		rawBucket   string
		procBucket  string
		prefix      string
		profile     string
		manifest    string
		chunkRows   int
		pipeline    bool
		uploadRaw   bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env-file", ".env", "Path to dotenv file")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for local work files")
	flag.StringVar(&schemaFile, "schema", "", "Schema definition file (default: embedded contract)")
	flag.StringVar(&storageType, "storage", "", "Storage type: local or s3")
	flag.StringVar(&storagePath, "storage-path", "", "Root directory of local storage")
	flag.StringVar(&input, "input", "", "JSON-lines input file (.gz, .zst and .sz are decompressed)")
	flag.StringVar(&rawBucket, "raw-bucket", "", "Bucket receiving the archived input")
	flag.StringVar(&procBucket, "proc-bucket", "", "Bucket receiving the dataset")
	flag.StringVar(&prefix, "prefix", "", "Dataset key prefix")
	flag.StringVar(&profile, "profile", "", "AWS shared config profile")
	flag.StringVar(&manifest, "manifest", "", "Path to the local catalog database")
	flag.IntVar(&chunkRows, "chunk-rows", 0, "Lines per chunk")
	flag.BoolVar(&pipeline, "pipeline", false, "Overlap chunk writes with reading the next chunk")
	flag.BoolVar(&uploadRaw, "upload-raw", false, "Archive the input file in the raw bucket")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nutrisage-ingest --input products.jsonl.gz --proc-bucket BUCKET [options]\n\n")
		flag.PrintDefaults()
	}
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
		case "input":
			cfg.Ingest.Input = input
		case "raw-bucket":
			cfg.Ingest.RawBucket = rawBucket
		case "proc-bucket":
			cfg.Ingest.ProcBucket = procBucket
		case "prefix":
			cfg.Ingest.Prefix = prefix
		case "profile":
			cfg.Storage.S3.Profile = profile
		case "manifest":
			cfg.Ingest.Manifest = manifest
		case "chunk-rows":
			cfg.Ingest.ChunkRows = chunkRows
		case "pipeline":
			cfg.Ingest.Pipelined = pipeline
		case "upload-raw":
			cfg.Ingest.UploadRaw = uploadRaw
		}
	})

	a, err := app.New(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	report, err := a.RunIngest(ctx)
	if err != nil {
		a.Logger().Error("ingest failed", "error", err)
		stop()
		os.Exit(1)
	}
	fmt.Printf("ingested %d rows in %d chunks (%d malformed lines skipped) in %s\n",
		report.Rows, report.Chunks, report.MalformedLines, report.Elapsed.Round(1e6))
}
