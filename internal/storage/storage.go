// Package storage defines the object store that holds organization branding
// assets (logos).
//
// Backends register themselves with the factory from an init() function in
// their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// cmd/server blank-imports every backend package to trigger registration.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by Open, Stat and SignedURL for missing keys.
var ErrObjectNotFound = errors.New("object not found")

// ChecksumMetadataKey is the object metadata key holding the SHA-256 of the content.
const ChecksumMetadataKey = "sha256"

// Storage is an object store addressed by slash-separated keys.
type Storage interface {
	// Put stores the content of r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*Object, error)

	// Open returns a reader for the object and its attributes.
	Open(ctx context.Context, key string) (io.ReadCloser, *Object, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// SignedURL returns a URL the browser can fetch the object from directly,
	// valid for at least ttl where the backend supports expiry.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Stat returns the object's attributes without reading its content.
	Stat(ctx context.Context, key string) (*Object, error)

	// Ping checks that the backing bucket or directory is reachable.
	Ping(ctx context.Context) error
}

// Object describes a stored object.
type Object struct {
	Key         string
	Size        int64
	ContentType string
	Checksum    string // hex SHA-256, empty when the backend did not record it
	ModTime     time.Time
}

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
