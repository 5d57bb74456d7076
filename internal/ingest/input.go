// Package ingest reads JSON-lines product records in chunks and appends
// them to the dataset.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/nutrisage/nutrisage/internal/storage"
)

// MaxLineBytes is the longest input line accepted.
const MaxLineBytes = 64 << 20

// RawPrefix is the key prefix of archived input files.
const RawPrefix = "raw"

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenInput opens path, decompressing by extension: .gz (gzip), .zst
// (zstd), .sz or .snappy (snappy framing format). Anything else is read as
// is.
func OpenInput(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: failed to open input: %w", err)
	}
	buffered := bufio.NewReaderSize(f, 1<<20)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("ingest: failed to open gzip stream: %w", err)
		}
		return &multiCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".zst":
		zr, err := zstd.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("ingest: failed to open zstd stream: %w", err)
		}
		rc := zr.IOReadCloser()
		return &multiCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
	case ".sz", ".snappy":
		return &multiCloser{Reader: snappy.NewReader(buffered), closers: []io.Closer{f}}, nil
	default:
		return &multiCloser{Reader: buffered, closers: []io.Closer{f}}, nil
	}
}

// UploadRaw archives the input file unchanged under raw/<basename> and
// returns the object path.
func UploadRaw(ctx context.Context, store storage.ObjectStorage, path string) (string, error) {
	objectPath := storage.JoinKey(RawPrefix, filepath.Base(path))
	if _, err := store.UploadMultipart(ctx, path, objectPath); err != nil {
		return "", fmt.Errorf("ingest: failed to archive input: %w", err)
	}
	return objectPath, nil
}

// ChunkReader yields non-empty input lines in chunks.
type ChunkReader struct {
	sc *bufio.Scanner
}

// NewChunkReader wraps r.
func NewChunkReader(r io.Reader) *ChunkReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return &ChunkReader{sc: sc}
}

// Next returns up to n non-empty lines. Fewer than n lines means the input
// is exhausted.
func (c *ChunkReader) Next(n int) ([][]byte, error) {
	lines := make([][]byte, 0, n)
	for len(lines) < n && c.sc.Scan() {
		line := c.sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := c.sc.Err(); err != nil {
		return lines, fmt.Errorf("ingest: failed to read input: %w", err)
	}
	return lines, nil
}
