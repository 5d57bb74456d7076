package storage

import (
	"context"
	"errors"
	"os"
	"testing"
)

func seedStore(t *testing.T, paths ...string) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	for _, p := range paths {
		src := writeTemp(t, "src", []byte("content of "+p))
		if err := store.Upload(context.Background(), src, p); err != nil {
			t.Fatalf("failed to upload %s: %v", p, err)
		}
	}
	return store
}

func TestBatchDownloader_DownloadsAll(t *testing.T) {
	paths := []string{
		"processed/year=2020/country=france/part-a.snappy.parquet",
		"processed/year=2020/country=spain/part-a.snappy.parquet",
		"processed/year=2021/country=france/part-b.snappy.parquet",
	}
	store := seedStore(t, paths...)
	downloader := NewBatchDownloader(store, 2, t.TempDir())

	result, err := downloader.Download(context.Background(), paths)
	if err != nil {
		t.Fatalf("failed to download: %v", err)
	}
	if result.Err() != nil {
		t.Fatalf("unexpected per-object error: %v", result.Err())
	}
	if result.Downloads != len(paths) || result.CacheHits != 0 {
		t.Errorf("expected %d downloads and no cache hits, got %d/%d", len(paths), result.Downloads, result.CacheHits)
	}

	// Same base name in two partitions must land in distinct files.
	if result.LocalPaths[paths[0]] == result.LocalPaths[paths[1]] {
		t.Fatal("distinct objects share a local path")
	}
	for _, p := range paths {
		got, err := os.ReadFile(result.LocalPaths[p])
		if err != nil {
			t.Fatalf("failed to read %s: %v", p, err)
		}
		if string(got) != "content of "+p {
			t.Errorf("content mismatch for %s: %q", p, got)
		}
	}
}

func TestBatchDownloader_CacheHit(t *testing.T) {
	path := "processed/year=2020/country=italy/part.snappy.parquet"
	store := seedStore(t, path)
	downloader := NewBatchDownloader(store, 3, t.TempDir())
	ctx := context.Background()

	if _, err := downloader.Download(ctx, []string{path}); err != nil {
		t.Fatalf("failed to download: %v", err)
	}
	result, err := downloader.Download(ctx, []string{path, path})
	if err != nil {
		t.Fatalf("failed to download: %v", err)
	}
	if result.CacheHits != 1 || result.Downloads != 0 {
		t.Errorf("expected a single cache hit, got hits=%d downloads=%d", result.CacheHits, result.Downloads)
	}
}

func TestBatchDownloader_PartialFailure(t *testing.T) {
	store := seedStore(t, "a.parquet", "b.parquet")
	downloader := NewBatchDownloader(store, 3, t.TempDir())

	result, err := downloader.Download(context.Background(), []string{"a.parquet", "missing.parquet", "b.parquet"})
	if err != nil {
		t.Fatalf("failed to download: %v", err)
	}
	if len(result.LocalPaths) != 2 {
		t.Errorf("expected 2 successful downloads, got %d", len(result.LocalPaths))
	}
	if !errors.Is(result.Errors["missing.parquet"], ErrObjectNotFound) {
		t.Errorf("expected not-found for missing object, got %v", result.Errors)
	}
	if result.Err() == nil {
		t.Error("expected aggregated error")
	}
	if _, err := os.Stat(downloader.LocalPath("missing.parquet")); !os.IsNotExist(err) {
		t.Error("failed download must not leave a cached file")
	}
}

func TestBatchDownloader_EmptyRequest(t *testing.T) {
	downloader := NewBatchDownloader(seedStore(t), 3, t.TempDir())

	result, err := downloader.Download(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to download: %v", err)
	}
	if len(result.LocalPaths) != 0 || len(result.Errors) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}
