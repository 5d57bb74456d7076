package clean

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/nutrisage/nutrisage/internal/partition"
	"github.com/nutrisage/nutrisage/internal/storage"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// DefaultAuditPrefix is the key prefix of outlier audit files.
const DefaultAuditPrefix = "logs/outliers"

// StorageAuditSink writes outlier rows as one Parquet file per UTC day to
// <prefix>/<YYYY-MM-DD>.parquet. A later write on the same day replaces
// the file.
type StorageAuditSink struct {
	store   storage.ObjectStorage
	prefix  string
	workDir string
}

// NewStorageAuditSink creates an audit sink staging files in workDir.
func NewStorageAuditSink(store storage.ObjectStorage, prefix, workDir string) *StorageAuditSink {
	if prefix == "" {
		prefix = DefaultAuditPrefix
	}
	return &StorageAuditSink{store: store, prefix: prefix, workDir: workDir}
}

// ObjectPath returns the audit object path for day.
func (s *StorageAuditSink) ObjectPath(day time.Time) string {
	return storage.JoinKey(s.prefix, day.UTC().Format("2006-01-02")+".parquet")
}

// WriteOutliers uploads outliers and returns the object path.
func (s *StorageAuditSink) WriteOutliers(ctx context.Context, day time.Time, outliers *types.Batch) (string, error) {
	if err := os.MkdirAll(s.workDir, 0755); err != nil {
		return "", fmt.Errorf("clean: failed to create work dir: %w", err)
	}
	f, err := os.CreateTemp(s.workDir, "outliers-*.parquet")
	if err != nil {
		return "", fmt.Errorf("clean: failed to create audit file: %w", err)
	}
	local := f.Name()
	defer os.Remove(local)

	if err := partition.WriteParquet(f, outliers, memory.DefaultAllocator); err != nil {
		f.Close()
		return "", fmt.Errorf("clean: failed to encode outliers: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("clean: failed to close audit file: %w", err)
	}

	objectPath := s.ObjectPath(day)
	if err := s.store.Upload(ctx, filepath.Clean(local), objectPath); err != nil {
		return "", fmt.Errorf("clean: failed to upload %s: %w", objectPath, err)
	}
	return objectPath, nil
}
