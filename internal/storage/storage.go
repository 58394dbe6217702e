// Package storage keeps uploaded event images on local disk and hands back
// their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"trackhub/internal/logger"
)

var (
	ErrEmptyUpload   = errors.New("upload is empty")
	ErrTooLarge      = errors.New("upload exceeds size limit")
	ErrNotAnImage    = errors.New("upload is not an image")
	allowedImageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
)

type LocalStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewLocalStore serves files written under dir at baseURL + "/uploads/".
func NewLocalStore(dir, baseURL string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &LocalStore{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
	}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

// Upload stores data under a fresh name keeping filename's extension and
// returns the public URL.
func (s *LocalStore) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyUpload
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %s is over %s", ErrTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(s.maxBytes)))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedImageExts[ext] {
		return "", fmt.Errorf("%w: extension %q", ErrNotAnImage, ext)
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotAnImage, ct)
	}

	name := uuid.New().String() + ext
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	os.Chmod(filepath.Join(s.dir, name), 0644)

	logger.LogInfo("Stored image %s (%s) as %s", filename, humanize.Bytes(uint64(len(data))), name)
	return s.baseURL + "/uploads/" + name, nil
}
