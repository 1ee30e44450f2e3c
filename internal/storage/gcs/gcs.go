// Package gcs implements the Google Cloud Storage backend. Reads outside the API
// use V4 signed URLs. Supports Application Default Credentials, service account
// JSON keys, and Workload Identity Federation.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/aragroup/ara-platform/internal/config"
	appstorage "github.com/aragroup/ara-platform/internal/storage"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Storage, error) {
		return New(&cfg.Storage.GCS)
	})
}

// GCSStorage implements the Storage interface for Google Cloud Storage
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// New creates a new Google Cloud Storage backend
//
// Authentication methods:
//   - "default" or empty: Application Default Credentials (env var, metadata
//     service, gcloud login)
//   - "service_account": a service account key file or inline JSON
//   - "workload_identity": Workload Identity Federation, resolved through ADC
func New(cfg *appconfig.GCSStorageConfig, extra ...option.ClientOption) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		switch {
		case cfg.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}

	case "workload_identity", "default":
		// ADC needs no extra options.

	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", authMethod)
	}

	client, err := storage.NewClient(context.Background(), append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Close closes the GCS client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// Put implements appstorage.Storage.
func (s *GCSStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*appstorage.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch for %s: expected %d, got %d", key, size, len(data))
	}
	checksum := appstorage.Checksum(data)

	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = map[string]string{appstorage.ChecksumMetadataKey: checksum}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	obj := &appstorage.Object{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
		Checksum:    checksum,
		ModTime:     time.Now().UTC(),
	}
	if attrs := writer.Attrs(); attrs != nil {
		obj.ModTime = attrs.Updated
	}
	return obj, nil
}

// Open implements appstorage.Storage.
func (s *GCSStorage) Open(ctx context.Context, key string) (io.ReadCloser, *appstorage.Object, error) {
	attrs, err := s.attrs(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(key).Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, appstorage.ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return reader, object(attrs), nil
}

// Stat implements appstorage.Storage.
func (s *GCSStorage) Stat(ctx context.Context, key string) (*appstorage.Object, error) {
	attrs, err := s.attrs(ctx, key)
	if err != nil {
		return nil, err
	}
	return object(attrs), nil
}

func (s *GCSStorage) attrs(ctx context.Context, key string) (*storage.ObjectAttrs, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, appstorage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object attributes: %w", err)
	}
	return attrs, nil
}

func object(attrs *storage.ObjectAttrs) *appstorage.Object {
	return &appstorage.Object{
		Key:         attrs.Name,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Checksum:    attrs.Metadata[appstorage.ChecksumMetadataKey],
		ModTime:     attrs.Updated,
	}
}

// Delete implements appstorage.Storage. Missing objects are not an error.
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// SignedURL implements appstorage.Storage. Signing with ADC needs the
// iam.serviceAccountTokenCreator role or signBlob permission.
func (s *GCSStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.attrs(ctx, key); err != nil {
		return "", err
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}

// Ping implements appstorage.Storage by reading the bucket attributes.
func (s *GCSStorage) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %s unreachable: %w", s.bucket, err)
	}
	return nil
}
