// Package storage provides the object storage abstraction the dataset,
// raw archive and audit outputs are written to.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations are S3 and the local filesystem.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// UploadMultipart uploads a large file in parts and returns its ETag.
	UploadMultipart(ctx context.Context, localPath, objectPath string) (string, error)

	// Download copies objectPath to the local file at localPath.
	// Returns ErrObjectNotFound when the object does not exist.
	Download(ctx context.Context, objectPath, localPath string) error

	// Open returns random access to an object. Only the byte ranges that
	// are read are fetched. Returns ErrObjectNotFound when the object does
	// not exist.
	Open(ctx context.Context, objectPath string) (ObjectReader, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under prefix, using forward
	// slashes, in lexical order.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// ObjectReader reads byte ranges of one object.
type ObjectReader interface {
	io.ReaderAt
	io.Seeker
	io.Closer
	// Size returns the object size in bytes.
	Size() int64
}

// MultipartUploadConfig holds configuration for multipart uploads.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes (default: 8MB).
	PartSize int64
	// Concurrency bounds the parts in flight (default: 4).
	Concurrency int
}

// DefaultMultipartConfig returns the default multipart upload configuration.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize:    8 * 1024 * 1024,
		Concurrency: 4,
	}
}

// JoinKey joins object key segments with forward slashes, ignoring empty
// segments.
func JoinKey(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}
