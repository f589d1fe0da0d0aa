package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"animaldetect/internal/config"
)

var (
	ErrStorage       = errors.New("object storage failure")
	ErrNotConfigured = errors.New("object storage endpoint not configured")
)

const publicReadPolicy = `{
	"Version": "2012-10-17",
	"Statement": [{
		"Effect": "Allow",
		"Principal": {"AWS": ["*"]},
		"Action": ["s3:GetObject"],
		"Resource": ["arn:aws:s3:::%s/*"]
	}]
}`

type ObjectStore struct {
	client  *minio.Client
	initErr error
	cfg     config.StorageConfig
	now     func() time.Time
}

// NewObjectStore never fails. A missing or unusable endpoint is kept and
// returned from every call that needs the bucket.
func NewObjectStore(cfg config.StorageConfig) *ObjectStore {
	store := &ObjectStore{cfg: cfg, now: time.Now}
	store.client, store.initErr = newMinioClient(cfg)
	return store
}

func newMinioClient(cfg config.StorageConfig) (*minio.Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	useSSL := cfg.UseSSL

	if endpoint == "" {
		return nil, ErrNotConfigured
	}

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return client, nil
}

// EnsureBuckets creates missing buckets and opens them for anonymous reads so
// the URLs handed out by Store resolve.
func (s *ObjectStore) EnsureBuckets(ctx context.Context) error {
	if s.initErr != nil {
		return fmt.Errorf("%w: %w", ErrStorage, s.initErr)
	}
	for _, bucket := range []string{s.cfg.BucketLabeled, s.cfg.BucketCaptured} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("bucket exists %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		if err := s.client.SetBucketPolicy(ctx, bucket, fmt.Sprintf(publicReadPolicy, bucket)); err != nil {
			return fmt.Errorf("set policy %s: %w", bucket, err)
		}
	}
	return nil
}

// Store uploads data once under a timestamped key and returns its public URL.
func (s *ObjectStore) Store(ctx context.Context, bucket, filename string, data []byte, contentType string) (string, error) {
	if s.initErr != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, s.initErr)
	}

	key := ObjectKey(s.now(), filename)

	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%w: put object %s/%s: %w", ErrStorage, bucket, key, err)
	}

	return s.PublicURL(bucket, key), nil
}

func (s *ObjectStore) PublicURL(bucket, key string) string {
	base := s.cfg.PublicURL
	if base == "" {
		base = s.cfg.Endpoint
	}
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return fmt.Sprintf("%s/%s/%s", base, bucket, url.PathEscape(key))
}

// ObjectKey is "{unix seconds}_{base name}". Two uploads of the same name in
// the same second collide.
func ObjectKey(at time.Time, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "image"
	}
	return fmt.Sprintf("%d_%s", at.Unix(), name)
}
