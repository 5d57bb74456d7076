package clean

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/nutrisage/nutrisage/internal/partition"
	"github.com/nutrisage/nutrisage/internal/storage"
	"github.com/nutrisage/nutrisage/pkg/types"
)

// LoadDataset materialises every fragment below prefix as one batch. Rows
// are tagged with the partition values of their fragment path.
func LoadDataset(ctx context.Context, store storage.ObjectStorage, prefix, workDir string, concurrency int) (*types.Batch, error) {
	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("clean: failed to list dataset: %w", err)
	}
	var paths []string
	for _, obj := range objects {
		if strings.HasSuffix(obj, ".parquet") {
			paths = append(paths, obj)
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("clean: no fragments below %q", prefix)
	}

	downloader := storage.NewBatchDownloader(store, concurrency, filepath.Join(workDir, "fragments"))
	result, err := downloader.Download(ctx, paths)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	batches := make([]*types.Batch, 0, len(paths))
	for _, p := range paths {
		var pv *types.PartitionValues
		if parsed, ok := types.ParsePartitionPath(p); ok {
			pv = &parsed
		}
		b, err := partition.ReadFragment(ctx, result.LocalPaths[p], pv)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return types.Concat(batches...)
}

// WriteFile writes batch as a snappy Parquet file at path.
func WriteFile(path string, batch *types.Batch) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("clean: failed to create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("clean: failed to create %s: %w", path, err)
	}
	if err := partition.WriteParquet(f, batch, memory.DefaultAllocator); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
