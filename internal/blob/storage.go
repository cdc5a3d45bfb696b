package blob

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"asset-ledger-backend/config"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-]`)

// Storage wraps the object store holding attachment binaries. The core only
// tracks paths and display URLs; content never passes through the record store.
type Storage struct {
	client *minio.Client
	bucket string
}

// UploadResult is what the caller needs to record and display an attachment.
type UploadResult struct {
	Path      string
	PublicURL string
}

// New creates an object store client from the attachment configuration.
func New(cfg *config.BlobConfig) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &Storage{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket makes sure the attachment bucket exists before first use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Upload stores one attachment under its owning asset. Object keys get a
// random prefix so two uploads of the same filename never collide.
func (s *Storage) Upload(ctx context.Context, assetID string, r io.Reader, size int64, contentType, fileName string) (UploadResult, error) {
	sanitized := unsafeChars.ReplaceAllString(fileName, "_")
	path := fmt.Sprintf("%s/%s_%s", assetID, uuid.New().String(), sanitized)

	opts := minio.PutObjectOptions{ContentType: contentType, CacheControl: "max-age=3600"}
	if _, err := s.client.PutObject(ctx, s.bucket, path, r, size, opts); err != nil {
		return UploadResult{}, fmt.Errorf("upload attachment %s: %w", path, err)
	}
	return UploadResult{Path: path, PublicURL: s.URL(path)}, nil
}

// Delete removes a stored object.
func (s *Storage) Delete(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete attachment %s: %w", path, err)
	}
	return nil
}

// URL returns the public display URL for a stored object path.
func (s *Storage) URL(path string) string {
	base := strings.TrimRight(s.client.EndpointURL().String(), "/")
	return fmt.Sprintf("%s/%s/%s", base, s.bucket, path)
}
