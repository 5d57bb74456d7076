package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()
	content := []byte("hello world")
	src := writeTemp(t, "src.txt", content)

	objectPath := "processed/year=2020/country=france/part-1.snappy.parquet"
	if err := store.Upload(ctx, src, objectPath); err != nil {
		t.Fatalf("failed to upload: %v", err)
	}

	exists, err := store.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("failed to check existence: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	dst := filepath.Join(t.TempDir(), "nested", "downloaded.txt")
	if err := store.Download(ctx, objectPath, dst); err != nil {
		t.Fatalf("failed to download: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	if err := store.Delete(ctx, objectPath); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if exists, _ := store.Exists(ctx, objectPath); exists {
		t.Error("expected object to be gone after delete")
	}
	if err := store.Delete(ctx, objectPath); err != nil {
		t.Errorf("deleting a missing object should succeed, got %v", err)
	}
}

func TestLocalStorage_UploadMultipartETag(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	src := writeTemp(t, "src.txt", []byte("abc"))

	etag, err := store.UploadMultipart(context.Background(), src, "raw/products.jsonl")
	if err != nil {
		t.Fatalf("failed to upload: %v", err)
	}
	if etag != "900150983cd24fb0d6963f7d28e17f72" {
		t.Errorf("unexpected etag %q", etag)
	}
}

func TestLocalStorage_DownloadNotFound(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	err = store.Download(context.Background(), "missing/object", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()
	src := writeTemp(t, "src.txt", []byte("x"))

	for _, p := range []string{
		"processed/year=2021/country=spain/b.parquet",
		"processed/year=2020/country=france/a.parquet",
		"raw/products.jsonl",
	} {
		if err := store.Upload(ctx, src, p); err != nil {
			t.Fatalf("failed to upload %s: %v", p, err)
		}
	}

	got, err := store.ListObjects(ctx, "processed")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	want := []string{
		"processed/year=2020/country=france/a.parquet",
		"processed/year=2021/country=spain/b.parquet",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected listing: %v", got)
	}

	none, err := store.ListObjects(ctx, "nothing-here")
	if err != nil {
		t.Fatalf("failed to list missing prefix: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected empty listing, got %v", none)
	}
}

func TestLocalStorage_Clear(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()
	src := writeTemp(t, "src.txt", []byte("test"))

	if err := store.Upload(ctx, src, "obj1.txt"); err != nil {
		t.Fatalf("failed to upload: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	if exists, _ := store.Exists(ctx, "obj1.txt"); exists {
		t.Error("expected obj1.txt to be gone after clear")
	}
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"processed", "year=2020/country=france", "part.parquet"}, "processed/year=2020/country=france/part.parquet"},
		{[]string{"", "/logs/", "outliers/", "2024-01-02.parquet"}, "logs/outliers/2024-01-02.parquet"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := JoinKey(tt.parts...); got != tt.want {
			t.Errorf("JoinKey(%q) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}

func TestLocalStorage_Open(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()
	src := writeTemp(t, "src.txt", []byte("0123456789"))
	if err := store.Upload(ctx, src, "a/b.bin"); err != nil {
		t.Fatalf("failed to upload: %v", err)
	}

	obj, err := store.Open(ctx, "a/b.bin")
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	defer obj.Close()

	if obj.Size() != 10 {
		t.Errorf("expected size 10, got %d", obj.Size())
	}
	end, err := obj.Seek(0, io.SeekEnd)
	if err != nil || end != 10 {
		t.Errorf("Seek(0, SeekEnd) = %d, %v", end, err)
	}
	buf := make([]byte, 4)
	if _, err := obj.ReadAt(buf, 6); err != nil {
		t.Fatalf("failed to read range: %v", err)
	}
	if string(buf) != "6789" {
		t.Errorf("unexpected range %q", buf)
	}

	if _, err := store.Open(ctx, "a/missing.bin"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}
