package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements Storage on local disk. It cannot upload.
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates a LocalStorage rooted at tempDir, creating the
// directory if needed. An empty tempDir uses a directory under os.TempDir().
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "chatterbox")
	}

	abs, err := filepath.Abs(tempDir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve temp directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("storage: create temp directory: %w", err)
	}

	return &LocalStorage{tempDir: abs}, nil
}

// TempDir returns the storage directory.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// SaveTemp writes data to a uniquely named file. "job-1_003.wav" becomes
// something like "job-1_003_123456.wav".
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("storage: context cancelled: %w", err)
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(filepath.Base(name), ext)

	f, err := os.CreateTemp(s.tempDir, base+"_*"+ext)
	if err != nil {
		return "", fmt.Errorf("storage: create file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("storage: close file: %w", err)
	}

	return fileName, nil
}

// LoadTemp opens a file inside the storage directory.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("storage: context cancelled: %w", err)
	}
	if !s.contains(path) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideTempDir, path)
	}

	f, err := os.Open(path) // #nosec G304 - confined to tempDir above
	if err != nil {
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	return f, nil
}

// CleanupTemp removes the given files and returns the first error
// encountered. Missing files are ignored.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("storage: context cancelled: %w", err)
		}
		if p == "" {
			continue
		}
		if !s.contains(p) {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s", ErrOutsideTempDir, p)
			}
			continue
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("storage: remove file %s: %w", p, err)
		}
	}
	return firstErr
}

// Upload is not supported by LocalStorage.
func (s *LocalStorage) Upload(_ context.Context, _, _ string, _ io.Reader) (string, error) {
	return "", ErrUploadNotConfigured
}

// DeleteUploads is a no-op for an empty key list and otherwise fails, since
// LocalStorage never uploads.
func (s *LocalStorage) DeleteUploads(_ context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return ErrUploadNotConfigured
}

func (s *LocalStorage) contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(s.tempDir, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
