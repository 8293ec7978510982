package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nis-portal/portal-api/internal/logging"
)

// LocalStore keeps blobs under a directory on the local filesystem.
type LocalStore struct {
	root   string
	logger *logging.SafeLogger
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string, logger *logging.SafeLogger) (*LocalStore, error) {
	if root == "" {
		root = "uploads"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{root: root, logger: logger}, nil
}

// Root returns the directory blobs are written to.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	written, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: %d of %d bytes", written, size)
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("write blob: %w", err)
	}

	s.logger.Debug("blob stored", zap.String("key", key), zap.Int64("size", written))
	return filepath.ToSlash(dest), nil
}

// Delete removes the blob. A missing blob is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
