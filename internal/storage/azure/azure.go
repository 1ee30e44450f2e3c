// Package azure implements the Azure Blob Storage backend. Objects are written
// with their content type and a sha256 metadata entry; reads outside the API
// go through short-lived SAS URLs, or the configured CDN when one fronts the
// container.
package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/aragroup/ara-platform/internal/config"
	"github.com/aragroup/ara-platform/internal/storage"
)

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Azure)
	})
}

// sasClockSkew backdates SAS start times so slightly fast clocks still accept them.
const sasClockSkew = 5 * time.Minute

// AzureStorage implements storage.Storage on one blob container.
type AzureStorage struct {
	client        *azblob.Client
	credential    *azblob.SharedKeyCredential
	serviceURL    string
	containerName string
	cdnURL        string
}

// New creates a new Azure Blob Storage backend
func New(cfg *config.AzureStorageConfig) (*AzureStorage, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL+"/", credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureStorage{
		client:        client,
		credential:    credential,
		serviceURL:    serviceURL,
		containerName: cfg.ContainerName,
		cdnURL:        strings.TrimSuffix(cfg.CDNURL, "/"),
	}, nil
}

func (s *AzureStorage) container() *container.Client {
	return s.client.ServiceClient().NewContainerClient(s.containerName)
}

func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// Put implements storage.Storage. The body is buffered so the checksum can be
// written as blob metadata in the same request.
func (s *AzureStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*storage.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch for %s: expected %d, got %d", key, size, len(data))
	}

	checksum := storage.Checksum(data)
	_, err = s.container().NewBlockBlobClient(key).Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		Metadata:    map[string]*string{storage.ChecksumMetadataKey: &checksum},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return &storage.Object{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
		Checksum:    checksum,
		ModTime:     time.Now().UTC(),
	}, nil
}

// Open implements storage.Storage.
func (s *AzureStorage) Open(ctx context.Context, key string) (io.ReadCloser, *storage.Object, error) {
	resp, err := s.container().NewBlobClient(key).DownloadStream(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, storage.ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}
	return resp.Body, object(key, resp.ContentLength, resp.ContentType, resp.LastModified, resp.Metadata), nil
}

// Stat implements storage.Storage.
func (s *AzureStorage) Stat(ctx context.Context, key string) (*storage.Object, error) {
	props, err := s.container().NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get blob properties: %w", err)
	}
	return object(key, props.ContentLength, props.ContentType, props.LastModified, props.Metadata), nil
}

func object(key string, size *int64, contentType *string, modTime *time.Time, metadata map[string]*string) *storage.Object {
	obj := &storage.Object{Key: key}
	if size != nil {
		obj.Size = *size
	}
	if contentType != nil {
		obj.ContentType = *contentType
	}
	if modTime != nil {
		obj.ModTime = *modTime
	}
	// Metadata keys come back in canonical header case.
	for k, v := range metadata {
		if strings.EqualFold(k, storage.ChecksumMetadataKey) && v != nil {
			obj.Checksum = *v
		}
	}
	return obj
}

// Delete implements storage.Storage. Missing blobs are not an error.
func (s *AzureStorage) Delete(ctx context.Context, key string) error {
	_, err := s.container().NewBlobClient(key).Delete(ctx, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}
	return nil
}

// SignedURL implements storage.Storage. A configured CDN URL takes precedence
// over a SAS link.
func (s *AzureStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		return "", err
	}

	if s.cdnURL != "" {
		return fmt.Sprintf("%s/%s", s.cdnURL, key), nil
	}

	now := time.Now().UTC()
	params, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     now.Add(-sasClockSkew),
		ExpiryTime:    now.Add(ttl),
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: s.containerName,
		BlobName:      key,
	}.SignWithSharedKey(s.credential)
	if err != nil {
		return "", fmt.Errorf("failed to generate SAS token: %w", err)
	}

	escaped := (&url.URL{Path: key}).EscapedPath()
	return fmt.Sprintf("%s/%s/%s?%s", s.serviceURL, s.containerName, escaped, params.Encode()), nil
}

// Ping implements storage.Storage by reading the container properties.
func (s *AzureStorage) Ping(ctx context.Context) error {
	if _, err := s.container().GetProperties(ctx, nil); err != nil {
		return fmt.Errorf("azure container %s unreachable: %w", s.containerName, err)
	}
	return nil
}
