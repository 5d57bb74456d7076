package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nutrisage/nutrisage/internal/clean"
	"github.com/nutrisage/nutrisage/internal/errors"
	"github.com/nutrisage/nutrisage/internal/ingest"
	"github.com/nutrisage/nutrisage/internal/manifest"
	"github.com/nutrisage/nutrisage/internal/metadata"
	"github.com/nutrisage/nutrisage/internal/sink"
	"github.com/nutrisage/nutrisage/internal/storage"
	"github.com/nutrisage/nutrisage/internal/validate"
)

// RunIngest ingests the configured input file into the processed bucket.
// The report is returned even when the run fails part way.
func (a *App) RunIngest(ctx context.Context) (*ingest.Report, error) {
	cfg := a.cfg.Ingest
	if cfg.Input == "" {
		return nil, errors.NewConfigError(errors.CodeInvalidSetting, "ingest input is required")
	}

	proc, err := a.OpenStore(ctx, cfg.ProcBucket)
	if err != nil {
		return nil, err
	}

	if cfg.UploadRaw {
		raw, err := a.OpenStore(ctx, cfg.RawBucket)
		if err != nil {
			return nil, err
		}
		objectPath, err := ingest.UploadRaw(ctx, raw, cfg.Input)
		if err != nil {
			return nil, err
		}
		a.logger.Info("archived raw input", "bucket", cfg.RawBucket, "object", objectPath)
	}

	if err := a.seedCatalog(ctx, proc, cfg.Manifest, cfg.Prefix); err != nil {
		return nil, err
	}
	catalog, err := manifest.NewCatalog(cfg.Manifest)
	if err != nil {
		return nil, err
	}
	defer catalog.Close()

	drift, err := manifest.Reconcile(ctx, catalog, proc, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	if drift.HasIssues() {
		a.logger.Warn("catalog out of sync with storage",
			"dangling", len(drift.DanglingEntries),
			"orphaned", len(drift.OrphanedObjects),
			"fragments", drift.TotalCatalogEntries)
	}

	runID, err := catalog.BeginRun(ctx, filepath.Base(cfg.Input))
	if err != nil {
		return nil, err
	}

	input, err := ingest.OpenInput(cfg.Input)
	if err != nil {
		return nil, err
	}
	defer input.Close()

	ds := sink.NewDatasetSink(proc, catalog, a.contract, cfg.WorkDir,
		sink.WithPrefix(cfg.Prefix),
		sink.WithRunID(runID),
		sink.WithLogger(a.logger))

	a.logger.Info("starting ingest",
		"input", cfg.Input,
		"bucket", cfg.ProcBucket,
		"prefix", cfg.Prefix,
		"chunk_rows", cfg.ChunkRows,
		"pipelined", cfg.Pipelined,
		"run_id", runID)

	in := ingest.New(a.contract, ds,
		ingest.WithChunkRows(cfg.ChunkRows),
		ingest.WithPipelining(cfg.Pipelined),
		ingest.WithLogger(a.logger),
		ingest.WithMetrics(a.metrics))
	report, runErr := in.Run(ctx, input)

	status := manifest.RunSucceeded
	if runErr != nil {
		status = manifest.RunFailed
	}
	// The run record is written even after cancellation.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := catalog.FinishRun(finishCtx, runID, manifest.RunResult{
		Rows:           report.Rows,
		MalformedLines: report.MalformedLines,
		Status:         status,
	}); err != nil {
		a.logger.Warn("failed to record run", "run_id", runID, "error", err)
	}

	// Fragments written before a failure are registered, so the snapshot is
	// published either way.
	if err := ds.Close(finishCtx); err != nil && runErr == nil {
		runErr = err
	}
	a.PushMetrics(finishCtx)
	return report, runErr
}

// seedCatalog downloads the published catalog snapshot when no local
// catalog exists yet, so that repeated runs from fresh machines keep the
// fragment registry complete.
func (a *App) seedCatalog(ctx context.Context, store storage.ObjectStorage, path, prefix string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	objectPath := manifest.SnapshotObjectPath(prefix)
	exists, err := store.Exists(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("failed to check catalog snapshot: %w", err)
	}
	if !exists {
		return nil
	}
	if err := store.Download(ctx, objectPath, path); err != nil {
		return fmt.Errorf("failed to download catalog snapshot: %w", err)
	}
	a.logger.Info("seeded catalog from snapshot", "object", objectPath)
	return nil
}

// detailedOnly forces the per-fragment metadata path.
type detailedOnly struct {
	*metadata.Reader
}

func (d detailedOnly) Probe(ctx context.Context) (metadata.Metadata, error) {
	return d.ProbeDetailed(ctx)
}

// RunValidate validates the dataset in the configured bucket.
func (a *App) RunValidate(ctx context.Context) (*validate.Result, error) {
	cfg := a.cfg.Validation
	store, err := a.OpenStore(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}

	reader := metadata.NewReader(store, cfg.Prefix, cfg.DownloadDir,
		metadata.WithConcurrency(cfg.Concurrency),
		metadata.WithLogger(a.logger))

	var src validate.Source = reader
	if cfg.Detailed {
		src = detailedOnly{reader}
	}
	return validate.New(a.contract, validate.WithLogger(a.logger)).Validate(ctx, src)
}

// CleanReport summarises a clean run.
type CleanReport struct {
	RowsIn  int
	RowsOut int
	Out     string
}

// RunClean materialises the dataset in the configured bucket, cleans it and
// writes the result to the configured output file.
func (a *App) RunClean(ctx context.Context) (*CleanReport, error) {
	cfg := a.cfg.Clean
	if cfg.Out == "" {
		return nil, errors.NewConfigError(errors.CodeInvalidSetting, "clean output path is required")
	}
	store, err := a.OpenStore(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}

	workDir := filepath.Join(a.cfg.DataDir, "clean")
	batch, err := clean.LoadDataset(ctx, store, cfg.Prefix, workDir, a.cfg.Validation.Concurrency)
	if err != nil {
		return nil, err
	}

	opts := []clean.Option{clean.WithLogger(a.logger)}
	if cfg.WriteOutliers {
		opts = append(opts, clean.WithOutlierAudit(clean.NewStorageAuditSink(store, cfg.AuditPrefix, workDir)))
	}
	out, err := clean.New(a.contract, opts...).Clean(ctx, batch)
	if err != nil {
		return nil, err
	}
	if err := clean.WriteFile(cfg.Out, out); err != nil {
		return nil, err
	}

	a.logger.Info("wrote cleaned table", "path", cfg.Out, "rows", out.Len())
	return &CleanReport{RowsIn: batch.Len(), RowsOut: out.Len(), Out: cfg.Out}, nil
}
