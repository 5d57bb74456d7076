package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchDownloader fetches many objects in parallel into a local directory.
// Objects already present in the directory are not fetched again.
type BatchDownloader struct {
	storage     ObjectStorage
	concurrency int
	cacheDir    string
}

// BatchResult contains the outcome of a batch download.
type BatchResult struct {
	// LocalPaths maps object path to the downloaded file.
	LocalPaths map[string]string
	// Errors maps object path to the failure for that object.
	Errors    map[string]error
	CacheHits int
	Downloads int
}

// Err returns one of the per-object errors, or nil.
func (r *BatchResult) Err() error {
	for path, err := range r.Errors {
		return fmt.Errorf("storage: failed to download %s: %w", path, err)
	}
	return nil
}

// NewBatchDownloader creates a downloader writing below cacheDir with at
// most concurrency transfers in flight.
func NewBatchDownloader(storage ObjectStorage, concurrency int, cacheDir string) *BatchDownloader {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchDownloader{
		storage:     storage,
		concurrency: concurrency,
		cacheDir:    cacheDir,
	}
}

// Download fetches objectPaths. Per-object failures are reported in the
// result; the returned error is non-nil only when the batch could not run.
func (b *BatchDownloader) Download(ctx context.Context, objectPaths []string) (*BatchResult, error) {
	result := &BatchResult{
		LocalPaths: make(map[string]string, len(objectPaths)),
		Errors:     make(map[string]error),
	}
	if len(objectPaths) == 0 {
		return result, nil
	}
	if b.cacheDir != "" {
		if err := os.MkdirAll(b.cacheDir, 0755); err != nil {
			return nil, fmt.Errorf("storage: failed to create cache dir: %w", err)
		}
	}

	var queue []string
	seen := make(map[string]bool, len(objectPaths))
	for _, p := range objectPaths {
		if seen[p] {
			continue
		}
		seen[p] = true

		local := b.LocalPath(p)
		if _, err := os.Stat(local); err == nil {
			result.LocalPaths[p] = local
			result.CacheHits++
			continue
		}
		queue = append(queue, p)
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range queue {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[p] = err
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(path, local string) {
			defer sem.Release(1)
			defer wg.Done()

			err := b.storage.Download(ctx, path, local)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				os.Remove(local)
				result.Errors[path] = err
				return
			}
			result.LocalPaths[path] = local
			result.Downloads++
		}(p, b.LocalPath(p))
	}

	wg.Wait()
	return result, nil
}

// LocalPath returns where objectPath is stored locally. The whole object
// path is flattened into one file name so that fragments with the same base
// name in different partitions do not collide.
func (b *BatchDownloader) LocalPath(objectPath string) string {
	name := strings.ReplaceAll(strings.Trim(objectPath, "/"), "/", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if b.cacheDir == "" {
		return name
	}
	return filepath.Join(b.cacheDir, name)
}
