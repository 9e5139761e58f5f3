// Package storage keeps synthesized chunk audio on local disk and, when
// configured, publishes it to S3 or an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"io"
)

// Static errors for storage operations.
var (
	// ErrUploadNotConfigured is returned when an upload is attempted without
	// object storage configuration.
	ErrUploadNotConfigured = errors.New("storage: object storage is not configured")
	// ErrOutsideTempDir is returned when a path does not belong to the
	// storage directory.
	ErrOutsideTempDir = errors.New("storage: path is outside the storage directory")
)

// Storage defines the port for chunk audio persistence.
type Storage interface {
	// SaveTemp writes data to a new file and returns its path. The name is
	// used as a hint; its extension is preserved.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp opens a file previously returned by SaveTemp.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the given files, continuing past failures.
	CleanupTemp(ctx context.Context, paths []string) error

	// Upload stores data under key and returns its URL.
	// Returns ErrUploadNotConfigured if no object store is configured.
	Upload(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)

	// DeleteUploads removes previously uploaded objects.
	DeleteUploads(ctx context.Context, keys []string) error
}
