package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "campus-marketplace/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client used for uploads
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignAPI signs direct-upload requests
type PresignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures the S3 image store
type S3Options struct {
	Bucket         string
	Region         string
	Endpoint       string // for LocalStack or other S3 compatible services
	ForcePathStyle bool
	MaxBytes       int64
	RequestTimeout time.Duration
}

// S3Store stores images in a bucket
type S3Store struct {
	client    S3API
	presigner PresignAPI
	opts      S3Options
	logger    *zap.Logger
}

// NewS3Store loads AWS credentials from the default chain
func NewS3Store(ctx context.Context, opts S3Options, logger *zap.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required for the s3 storage backend")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return NewS3StoreWithClient(client, s3.NewPresignClient(client), opts, logger), nil
}

// NewS3StoreWithClient allows injecting the S3 client
func NewS3StoreWithClient(client S3API, presigner PresignAPI, opts S3Options, logger *zap.Logger) *S3Store {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &S3Store{client: client, presigner: presigner, opts: opts, logger: logger}
}

func (s *S3Store) Put(ctx context.Context, r io.Reader) (*Image, error) {
	data, contentType, err := readImage(r, s.opts.MaxBytes)
	if err != nil {
		return nil, err
	}
	key := newKey(contentType)

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		s.logger.Error("Failed to upload image", zap.String("key", key), zap.Error(err))
		return nil, apperrors.NewDependencyUnavailable("object storage", err)
	}

	s.logger.Info("Image uploaded",
		zap.String("bucket", s.opts.Bucket),
		zap.String("key", key),
		zap.String("content_type", contentType),
	)

	return &Image{Ref: s.objectURL(key), ContentType: contentType, Size: int64(len(data))}, nil
}

// Presign returns a URL the browser can PUT the image to directly
func (s *S3Store) Presign(ctx context.Context, contentType string) (*PresignedUpload, error) {
	if _, ok := allowedTypes[contentType]; !ok {
		return nil, apperrors.NewValidationError("unsupported image type "+contentType, "content_type")
	}
	key := newKey(contentType)

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return nil, apperrors.NewDependencyUnavailable("object storage", err)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPut
	}
	return &PresignedUpload{
		URL:       req.URL,
		Method:    method,
		Headers:   req.SignedHeader,
		Ref:       s.objectURL(key),
		ExpiresAt: time.Now().Add(presignTTL).UTC(),
	}, nil
}

func (s *S3Store) objectURL(key string) string {
	if s.opts.Endpoint != "" || s.opts.ForcePathStyle {
		endpoint := strings.TrimRight(s.opts.Endpoint, "/")
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", s.opts.Region)
		}
		return fmt.Sprintf("%s/%s/%s", endpoint, s.opts.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, key)
}
