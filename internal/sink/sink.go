// Package sink appends coerced batches to the partitioned dataset.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nutrisage/nutrisage/internal/manifest"
	"github.com/nutrisage/nutrisage/internal/partition"
	"github.com/nutrisage/nutrisage/internal/schema"
	"github.com/nutrisage/nutrisage/internal/storage"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// Sink receives coerced batches. Appends never modify data written by
// earlier appends.
type Sink interface {
	Append(ctx context.Context, batch *types.Batch) (AppendResult, error)
}

// AppendResult describes what one Append wrote.
type AppendResult struct {
	Rows int
	// Fragments are the object paths written, one per partition.
	Fragments []string
	// RowsByPartition counts rows per partition.
	RowsByPartition map[types.PartitionValues]int
}

// RowsByYear folds RowsByPartition by year.
func (r AppendResult) RowsByYear() map[string]int {
	out := make(map[string]int)
	for pv, n := range r.RowsByPartition {
		out[pv.Year] += n
	}
	return out
}

// DatasetSink writes one snappy Parquet fragment per partition of each
// batch, uploads it below prefix and registers it in the catalog.
type DatasetSink struct {
	store     storage.ObjectStorage
	catalog   *manifest.SQLiteCatalog
	contract  *schema.Contract
	builder   partition.FragmentBuilder
	prefix    string
	workDir   string
	tableName string
	runID     string
	logger    *slog.Logger

	mu              sync.Mutex
	tableRegistered bool
}

// Option configures a DatasetSink.
type Option func(*DatasetSink)

// WithPrefix sets the dataset key prefix.
func WithPrefix(prefix string) Option {
	return func(s *DatasetSink) { s.prefix = prefix }
}

// WithRunID tags registered fragments with an ingest run.
func WithRunID(runID string) Option {
	return func(s *DatasetSink) { s.runID = runID }
}

// WithTableName sets the table name recorded in the catalog.
func WithTableName(name string) Option {
	return func(s *DatasetSink) { s.tableName = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *DatasetSink) { s.logger = l }
}

// NewDatasetSink creates a sink staging fragment files in workDir. catalog
// may be nil, in which case fragments are written but not registered.
func NewDatasetSink(store storage.ObjectStorage, catalog *manifest.SQLiteCatalog, contract *schema.Contract, workDir string, opts ...Option) *DatasetSink {
	s := &DatasetSink{
		store:     store,
		catalog:   catalog,
		contract:  contract,
		builder:   partition.NewBuilder(workDir),
		prefix:    "processed",
		workDir:   workDir,
		tableName: "products",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prefix returns the dataset key prefix.
func (s *DatasetSink) Prefix() string {
	return s.prefix
}

// Append writes batch. An error leaves fragments of earlier partitions of
// the same batch in place; they are complete files and registered.
func (s *DatasetSink) Append(ctx context.Context, batch *types.Batch) (AppendResult, error) {
	result := AppendResult{RowsByPartition: make(map[types.PartitionValues]int)}
	if batch == nil || batch.Len() == 0 {
		return result, nil
	}

	if err := s.ensureTable(ctx); err != nil {
		return result, err
	}

	for _, group := range batch.SplitByPartition() {
		objectPath, err := s.writeFragment(ctx, group)
		if err != nil {
			return result, err
		}
		n := group.Batch.Len()
		result.Rows += n
		result.RowsByPartition[group.Values] += n
		result.Fragments = append(result.Fragments, objectPath)
	}

	s.logger.Debug("appended batch",
		"rows", result.Rows,
		"fragments", len(result.Fragments))
	return result, nil
}

func (s *DatasetSink) writeFragment(ctx context.Context, group types.PartitionGroup) (string, error) {
	info, err := s.builder.Build(ctx, group.Batch, group.Values)
	if err != nil {
		return "", fmt.Errorf("sink: failed to build fragment for %s: %w", group.Values, err)
	}
	defer os.Remove(info.LocalPath)

	objectPath := info.ObjectPath(s.prefix)
	if err := s.store.Upload(ctx, info.LocalPath, objectPath); err != nil {
		return "", fmt.Errorf("sink: failed to upload %s: %w", objectPath, err)
	}

	if s.catalog != nil {
		if err := s.catalog.RegisterFragment(ctx, info, objectPath, s.runID); err != nil {
			return "", fmt.Errorf("sink: failed to register %s: %w", objectPath, err)
		}
	}
	return objectPath, nil
}

func (s *DatasetSink) ensureTable(ctx context.Context) error {
	if s.catalog == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tableRegistered {
		return nil
	}

	if err := s.catalog.RegisterTable(ctx, TableDefinitionFor(s.tableName, s.contract)); err != nil {
		return fmt.Errorf("sink: failed to register table: %w", err)
	}
	s.tableRegistered = true
	return nil
}

// TableDefinitionFor builds the catalog table definition of contract.
func TableDefinitionFor(name string, contract *schema.Contract) *manifest.TableDefinition {
	def := &manifest.TableDefinition{
		Name:          name,
		SchemaVersion: contract.Version(),
	}
	for _, col := range contract.Columns() {
		def.Columns = append(def.Columns, manifest.ColumnType{Name: col.Name, Type: col.Kind.Physical()})
	}
	for _, name := range contract.PartitionColumns() {
		def.PartitionKeys = append(def.PartitionKeys, manifest.ColumnType{Name: name, Type: types.PhysicalString})
	}
	return def
}

// Close publishes a snapshot of the catalog next to the dataset. The
// catalog itself stays open and owned by the caller.
func (s *DatasetSink) Close(ctx context.Context) error {
	if s.catalog == nil {
		return nil
	}

	if err := os.MkdirAll(s.workDir, 0755); err != nil {
		return fmt.Errorf("sink: failed to create work dir: %w", err)
	}
	snapshot := filepath.Join(s.workDir, "manifest-snapshot.db")
	if err := s.catalog.Snapshot(ctx, snapshot); err != nil {
		return err
	}
	defer os.Remove(snapshot)

	objectPath := manifest.SnapshotObjectPath(s.prefix)
	if err := s.store.Upload(ctx, snapshot, objectPath); err != nil {
		return fmt.Errorf("sink: failed to publish catalog snapshot: %w", err)
	}
	s.logger.Info("published catalog snapshot", "object", objectPath)
	return nil
}
