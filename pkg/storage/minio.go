// Package storage keeps report photos in a MinIO bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	MaxPhotoSize  = 5 << 20
	presignExpiry = time.Hour
)

var (
	ErrUnsupportedType = errors.New("unsupported photo type")
	ErrPhotoTooLarge   = errors.New("photo exceeds 5MB")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type PhotoStore struct {
	client *minio.Client
	bucket string
}

func NewPhotoStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*PhotoStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &PhotoStore{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket on first start.
func (s *PhotoStore) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Upload stores one photo and returns its object key.
func (s *PhotoStore) Upload(ctx context.Context, userID int64, fileName, contentType string, r io.Reader, size int64) (string, error) {
	if err := ValidatePhoto(contentType, size); err != nil {
		return "", err
	}
	key := PhotoKey(userID, fileName, contentType, time.Now())
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	return key, nil
}

func (s *PhotoStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

// URL returns a presigned download URL valid for one hour.
func (s *PhotoStore) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign photo: %w", err)
	}
	return u.String(), nil
}

func ValidatePhoto(contentType string, size int64) error {
	if _, ok := allowedTypes[strings.ToLower(contentType)]; !ok {
		return ErrUnsupportedType
	}
	if size <= 0 || size > MaxPhotoSize {
		return ErrPhotoTooLarge
	}
	return nil
}

// PhotoKey builds reports/{userID}/{unix}_{uuid}{ext}. The extension follows
// the content type when the file name carries none.
func PhotoKey(userID int64, fileName, contentType string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = allowedTypes[strings.ToLower(contentType)]
	}
	return fmt.Sprintf("reports/%d/%d_%s%s", userID, at.Unix(), uuid.New().String(), ext)
}
