// Package media stores uploaded menu images on local disk.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/model"
)

// allowedTypes maps accepted image content types to the file extension used on disk.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ErrInvalidImage is wrapped by Save when the upload itself is unacceptable.
var ErrInvalidImage = errors.New("invalid image")

// MaxImageBytes caps a single upload.
const MaxImageBytes = 5 << 20

// DiskStore writes images under Dir and returns URLs rooted at BaseURL.
type DiskStore struct {
	Dir     string
	BaseURL string
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes img under a fresh name and returns its public URL.
func (s *DiskStore) Save(_ context.Context, img model.ImageUpload) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("%w: %q is empty", ErrInvalidImage, img.Filename)
	}
	if len(img.Data) > MaxImageBytes {
		return "", fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidImage, img.Filename, MaxImageBytes)
	}
	ext, ok := allowedTypes[contentType(img)]
	if !ok {
		return "", fmt.Errorf("%w: %q has unsupported content type %q", ErrInvalidImage, img.Filename, img.ContentType)
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.Dir, name), img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return s.BaseURL + "/" + name, nil
}

// contentType falls back to the file extension when the client sent none.
func contentType(img model.ImageUpload) string {
	if ct := strings.ToLower(strings.TrimSpace(strings.Split(img.ContentType, ";")[0])); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	switch strings.ToLower(filepath.Ext(img.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	return ""
}
