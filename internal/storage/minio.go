package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"genstudio/internal/domain"
)

// MinioConfig configures an S3 compatible bucket.
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	PublicURL  string
	PresignTTL time.Duration
}

// MinioStore keeps objects in an S3 compatible bucket through minio-go.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicURL  string
	presignTTL time.Duration
	http       *http.Client
	now        func() time.Time
}

// NewMinioStore connects to the bucket described by cfg, creating it if needed.
func NewMinioStore(ctx context.Context, cfg MinioConfig, httpClient *http.Client) (*MinioStore, error) {
	store, err := newMinioStore(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	exists, err := store.client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := store.client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}
	return store, nil
}

func newMinioStore(cfg MinioConfig, httpClient *http.Client) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(client.EndpointURL().String(), "/") + "/" + cfg.Bucket
	}
	return &MinioStore{
		client:     client,
		bucket:     cfg.Bucket,
		publicURL:  publicURL,
		presignTTL: ttl,
		http:       httpClient,
		now:        time.Now,
	}, nil
}

// UploadFromURL streams the source into the bucket. Metadata values are
// query-escaped because S3 user metadata must be ASCII.
func (s *MinioStore) UploadFromURL(ctx context.Context, sourceURL, key string, meta Metadata) (*Object, error) {
	body, contentType, size, err := fetchSource(ctx, s.http, sourceURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	if size <= 0 {
		size = -1
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: escapeMetadata(meta),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: put object %q: %w", key, err)
	}
	return &Object{Key: key, URL: s.URL(key), ContentType: contentType, Size: info.Size}, nil
}

// PresignUpload issues a PUT URL under the uploads/ prefix.
func (s *MinioStore) PresignUpload(ctx context.Context, req UploadRequest) (*PresignedUpload, error) {
	now := s.now()
	key, err := UploadKey(now, req)
	if err != nil {
		return nil, err
	}
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("storage: presign upload: %w", err)
	}
	return &PresignedUpload{UploadURL: u.String(), FileKey: key, ExpiresAt: now.Add(s.presignTTL)}, nil
}

// ConfirmUpload checks that the uploaded object exists and is an allowed image.
func (s *MinioStore) ConfirmUpload(ctx context.Context, fileKey string) (*Object, error) {
	info, err := s.client.StatObject(ctx, s.bucket, fileKey, minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, fmt.Errorf("storage: object %q: %w", fileKey, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: stat object: %w", err)
	}
	if _, err := uploadExtension(info.ContentType); err != nil {
		return nil, err
	}
	return &Object{Key: fileKey, URL: s.URL(fileKey), ContentType: info.ContentType, Size: info.Size}, nil
}

// Open returns a reader for key. Existence is checked up front so a missing
// object reports domain.ErrNotFound instead of failing on first read.
func (s *MinioStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: get object: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isMinioNotFound(err) {
			return nil, fmt.Errorf("storage: object %q: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: stat object: %w", err)
	}
	return obj, nil
}

// URL resolves the public URL of key.
func (s *MinioStore) URL(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(key, "/")
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

func escapeMetadata(meta Metadata) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = url.QueryEscape(v)
	}
	return out
}

var _ ObjectStore = (*MinioStore)(nil)
