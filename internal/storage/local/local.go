// Package local implements the filesystem storage backend. It is intended for
// development and single-node deployments; replicas would need a shared
// filesystem. Objects are served by the API under /files/.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aragroup/ara-platform/internal/config"
	"github.com/aragroup/ara-platform/internal/storage"
)

// FilesRoute is the URL prefix under which the API serves local objects.
const FilesRoute = "/files/"

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local, cfg.Server.GetPublicURL())
	})
}

// LocalStorage stores objects as files below a base directory.
type LocalStorage struct {
	basePath string
	baseURL  string
}

// New creates a local backend rooted at cfg.BasePath, creating it if needed.
func New(cfg *config.LocalStorageConfig, publicURL string) (*LocalStorage, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local storage base_path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{
		basePath: filepath.Clean(cfg.BasePath),
		baseURL:  strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// fullPath maps key into the base directory, rejecting keys that escape it.
func (s *LocalStorage) fullPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}

// Put writes the object atomically through a temp file in the same directory.
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*storage.Object, error) {
	full, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	return &storage.Object{
		Key:         key,
		Size:        written,
		ContentType: contentTypeFor(key, contentType),
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		ModTime:     time.Now(),
	}, nil
}

// Open returns the file for key.
func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, *storage.Object, error) {
	full, err := s.fullPath(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, storage.ErrObjectNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return f, objectFromInfo(key, info), nil
}

// Delete removes the file and any parent directories left empty.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	full, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	for dir := filepath.Dir(full); dir != s.basePath; dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// SignedURL returns the API URL serving key. Local URLs do not expire.
func (s *LocalStorage) SignedURL(ctx context.Context, key string, _ time.Duration) (string, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		return "", err
	}
	return s.baseURL + FilesRoute + strings.TrimPrefix(key, "/"), nil
}

// Stat returns the file's attributes. The checksum is not computed.
func (s *LocalStorage) Stat(ctx context.Context, key string) (*storage.Object, error) {
	full, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return objectFromInfo(key, info), nil
}

// Ping checks that the base directory is still a directory.
func (s *LocalStorage) Ping(ctx context.Context) error {
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("storage directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", s.basePath)
	}
	return nil
}

func objectFromInfo(key string, info fs.FileInfo) *storage.Object {
	return &storage.Object{
		Key:         key,
		Size:        info.Size(),
		ContentType: contentTypeFor(key, ""),
		ModTime:     info.ModTime(),
	}
}

// contentTypeFor prefers the declared type and falls back to the extension.
func contentTypeFor(key, declared string) string {
	if declared != "" {
		return declared
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
