package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// LocalPublicPrefix is the URL prefix the API serves the upload directory under
const LocalPublicPrefix = "/uploads/"

// LocalStore writes images below a directory
type LocalStore struct {
	dir      string
	maxBytes int64
	logger   *zap.Logger
}

func NewLocalStore(dir string, maxBytes int64, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "images"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

// Dir is the root the API serves read-only
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(ctx context.Context, r io.Reader) (*Image, error) {
	data, contentType, err := readImage(r, s.maxBytes)
	if err != nil {
		return nil, err
	}

	key := newKey(contentType)
	path := filepath.Join(s.dir, filepath.FromSlash(key))

	// Write then rename so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	s.logger.Info("Image stored",
		zap.String("key", key),
		zap.String("content_type", contentType),
		zap.Int("size", len(data)),
	)

	return &Image{
		Ref:         LocalPublicPrefix + key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *LocalStore) Presign(ctx context.Context, contentType string) (*PresignedUpload, error) {
	return nil, ErrPresignUnsupported
}
