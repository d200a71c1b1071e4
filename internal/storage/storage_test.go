package storage

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"campus-marketplace/internal/config"
	apperrors "campus-marketplace/pkg/errors"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	pngImage  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	jpegImage = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
	gifImage  = append([]byte("GIF89a"), make([]byte, 32)...)
	webpImage = append([]byte("RIFF\x24\x00\x00\x00WEBPVP8 "), make([]byte, 32)...)
)

func TestReadImage(t *testing.T) {
	testCases := []struct {
		name        string
		data        []byte
		contentType string
		code        string
	}{
		{"png", pngImage, "image/png", ""},
		{"jpeg", jpegImage, "image/jpeg", ""},
		{"gif", gifImage, "image/gif", ""},
		{"webp", webpImage, "image/webp", ""},
		{"text", []byte("just some text, not an image"), "", apperrors.CodeValidation},
		{"pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), "", apperrors.CodeValidation},
		{"empty", nil, "", apperrors.CodeValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, contentType, err := readImage(bytes.NewReader(tc.data), 1024)
			if tc.code != "" {
				assert.True(t, apperrors.HasCode(err, tc.code), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.contentType, contentType)
			assert.Equal(t, tc.data, data)
		})
	}
}

func TestReadImage_TooLarge(t *testing.T) {
	big := append(append([]byte{}, pngImage...), make([]byte, 2048)...)

	_, _, err := readImage(bytes.NewReader(big), 1024)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestLocalStore_Put(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, 1024, zap.NewNop())
	require.NoError(t, err)

	img, err := store.Put(context.Background(), bytes.NewReader(pngImage))
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, int64(len(pngImage)), img.Size)
	assert.True(t, strings.HasPrefix(img.Ref, "/uploads/images/"))
	assert.True(t, strings.HasSuffix(img.Ref, ".png"))

	written, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(img.Ref, LocalPublicPrefix)))
	require.NoError(t, err)
	assert.Equal(t, pngImage, written)

	other, err := store.Put(context.Background(), bytes.NewReader(pngImage))
	require.NoError(t, err)
	assert.NotEqual(t, img.Ref, other.Ref)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "images"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLocalStore_RejectsAndPresign(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 1024, zap.NewNop())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), strings.NewReader("<html></html>"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = store.Presign(context.Background(), "image/png")
	assert.ErrorIs(t, err, ErrPresignUnsupported)
}

// MockS3 is a mock implementation of the S3 client
type MockS3 struct {
	mock.Mock
}

func (m *MockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*v4.PresignedHTTPRequest), args.Error(1)
}

func TestS3Store_Put(t *testing.T) {
	client := new(MockS3)
	store := NewS3StoreWithClient(client, client, S3Options{Bucket: "listings", Region: "us-east-1", MaxBytes: 1024}, zap.NewNop())

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "listings" &&
			strings.HasPrefix(*in.Key, "images/") &&
			*in.ContentType == "image/jpeg" &&
			*in.ContentLength == int64(len(jpegImage))
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	img, err := store.Put(context.Background(), bytes.NewReader(jpegImage))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(img.Ref, "https://listings.s3.us-east-1.amazonaws.com/images/"))
	assert.True(t, strings.HasSuffix(img.Ref, ".jpg"))
	client.AssertExpectations(t)
}

func TestS3Store_PutFailure(t *testing.T) {
	client := new(MockS3)
	store := NewS3StoreWithClient(client, client, S3Options{Bucket: "listings", Region: "us-east-1"}, zap.NewNop())
	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	_, err := store.Put(context.Background(), bytes.NewReader(pngImage))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDependencyUnavailable))

	// Rejected uploads never reach the bucket
	_, err = store.Put(context.Background(), strings.NewReader("plain text"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	client.AssertNumberOfCalls(t, "PutObject", 1)
}

func TestS3Store_Presign(t *testing.T) {
	client := new(MockS3)
	store := NewS3StoreWithClient(client, client, S3Options{
		Bucket:         "listings",
		Region:         "us-east-1",
		Endpoint:       "http://localhost:4566/",
		ForcePathStyle: true,
	}, zap.NewNop())

	client.On("PresignPutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.ContentType == "image/webp" && strings.HasSuffix(*in.Key, ".webp")
	})).Return(&v4.PresignedHTTPRequest{
		URL:          "http://localhost:4566/listings/images/x.webp?X-Amz-Signature=abc",
		Method:       http.MethodPut,
		SignedHeader: http.Header{"Content-Type": []string{"image/webp"}},
	}, nil).Once()

	upload, err := store.Presign(context.Background(), "image/webp")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, upload.Method)
	assert.Contains(t, upload.URL, "X-Amz-Signature")
	assert.Equal(t, []string{"image/webp"}, upload.Headers["Content-Type"])
	assert.True(t, strings.HasPrefix(upload.Ref, "http://localhost:4566/listings/images/"))

	_, err = store.Presign(context.Background(), "application/pdf")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	client.AssertExpectations(t)
}

func TestNewFromConfig(t *testing.T) {
	local, err := NewFromConfig(context.Background(), &config.Config{
		StorageBackend:  BackendLocal,
		StorageLocalDir: t.TempDir(),
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, local)

	_, err = NewFromConfig(context.Background(), &config.Config{StorageBackend: BackendS3}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewFromConfig(context.Background(), &config.Config{StorageBackend: "ftp"}, zap.NewNop())
	assert.Error(t, err)
}

func TestRestrictTypes(t *testing.T) {
	large := append(append([]byte{}, pngImage...), bytes.Repeat([]byte{0x42}, 2*sniffLen)...)

	testCases := []struct {
		name    string
		content []byte
		ok      bool
	}{
		{"png", pngImage, true},
		{"jpeg", jpegImage, true},
		{"webp", webpImage, true},
		{"larger than the sniffed prefix", large, true},
		{"gif", gifImage, false},
		{"text", []byte("hello"), false},
		{"empty", nil, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := RestrictTypes(bytes.NewReader(tc.content), AvatarTypes)
			if !tc.ok {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "got %v", err)
				return
			}
			require.NoError(t, err)
			// The sniffed bytes are not lost
			data, _, err := readImage(r, int64(len(tc.content)))
			require.NoError(t, err)
			assert.Equal(t, tc.content, data)
		})
	}
}
