// Package storage keeps listing images and hands out stable references to them.
package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"campus-marketplace/internal/config"
	apperrors "campus-marketplace/pkg/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"

	defaultMaxBytes = 5 << 20
	presignTTL      = 15 * time.Minute
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AvatarTypes are the image types accepted for profile pictures
var AvatarTypes = []string{"image/jpeg", "image/png", "image/webp"}

// sniffLen covers mimetype's default read limit
const sniffLen = 3072

var ErrPresignUnsupported = apperrors.NewInvalidRequest("presigned uploads are not supported", "configure the s3 storage backend")

// Image is a stored upload
type Image struct {
	Ref         string `json:"ref"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// PresignedUpload lets a client PUT an image directly to the bucket
type PresignedUpload struct {
	URL       string              `json:"url"`
	Method    string              `json:"method"`
	Headers   map[string][]string `json:"headers"`
	Ref       string              `json:"ref"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Store persists images
type Store interface {
	Put(ctx context.Context, r io.Reader) (*Image, error)
	Presign(ctx context.Context, contentType string) (*PresignedUpload, error)
}

// NewFromConfig creates the configured image store
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.StorageBackend {
	case BackendS3:
		return NewS3Store(ctx, S3Options{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.AWSRegion,
			Endpoint:       cfg.S3Endpoint,
			ForcePathStyle: cfg.S3ForcePathStyle,
			MaxBytes:       cfg.StorageMaxBytes,
		}, logger)
	case BackendLocal, "":
		return NewLocalStore(cfg.StorageLocalDir, cfg.StorageMaxBytes, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// readImage reads at most maxBytes and checks the detected content type
func readImage(r io.Reader, maxBytes int64) ([]byte, string, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, "", apperrors.NewInvalidRequest("failed to read upload", err.Error())
	}
	if len(data) == 0 {
		return nil, "", apperrors.NewValidationError("image is empty", "file")
	}
	if int64(len(data)) > maxBytes {
		return nil, "", apperrors.NewValidationError(fmt.Sprintf("image exceeds %d bytes", maxBytes), "file")
	}

	contentType := baseType(mimetype.Detect(data))
	if _, ok := allowedTypes[contentType]; !ok {
		return nil, "", apperrors.NewValidationError("unsupported image type "+contentType, "file")
	}
	return data, contentType, nil
}

// RestrictTypes rejects uploads whose detected type is not in allowed before
// anything is stored. The returned reader yields the complete upload.
func RestrictTypes(r io.Reader, allowed []string) (io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, apperrors.NewInvalidRequest("failed to read upload", err.Error())
	}
	if len(head) == 0 {
		return nil, apperrors.NewValidationError("image is empty", "file")
	}
	contentType := baseType(mimetype.Detect(head))
	for _, t := range allowed {
		if t == contentType {
			return br, nil
		}
	}
	return nil, apperrors.NewValidationError("unsupported image type "+contentType, "file")
}

// baseType strips parameters such as charset
func baseType(mtype *mimetype.MIME) string {
	base, _, _ := strings.Cut(mtype.String(), ";")
	return base
}

func newKey(contentType string) string {
	return "images/" + uuid.NewString() + allowedTypes[contentType]
}
