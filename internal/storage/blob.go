// Package storage writes uploaded document bytes to a blob backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned for keys that are empty, absolute or escape the
// backend root.
var ErrInvalidKey = errors.New("invalid blob key")

// BlobStore stores and removes opaque blobs by key.
type BlobStore interface {
	// Put writes body under key and returns the location recorded as the
	// document's file path.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// DocumentKey builds the key for a new file attached to a request. The
// original extension is kept, lowercased.
func DocumentKey(requestID int64, fileName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(fileName)))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return fmt.Sprintf("requests/%d/%s%s", requestID, uuid.NewString(), ext)
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
