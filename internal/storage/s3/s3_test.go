package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	appconfig "github.com/aragroup/ara-platform/internal/config"
	"github.com/aragroup/ara-platform/internal/storage"
)

// ---------------------------------------------------------------------------
// New() — constructor validation (no AWS connection required)
// ---------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  appconfig.S3StorageConfig
	}{
		{"missing bucket", appconfig.S3StorageConfig{Region: "ap-southeast-2"}},
		{"missing region", appconfig.S3StorageConfig{Bucket: "logos"}},
		{"static without keys", appconfig.S3StorageConfig{Bucket: "logos", Region: "ap-southeast-2", AuthMethod: "static"}},
		{"unsupported method", appconfig.S3StorageConfig{Bucket: "logos", Region: "ap-southeast-2", AuthMethod: "kerberos"}},
		{"oidc without role", appconfig.S3StorageConfig{Bucket: "logos", Region: "ap-southeast-2", AuthMethod: "oidc"}},
		{"oidc without token file", appconfig.S3StorageConfig{
			Bucket: "logos", Region: "ap-southeast-2", AuthMethod: "oidc",
			RoleARN: "arn:aws:iam::123456789012:role/logos",
		}},
		{"assume_role without role", appconfig.S3StorageConfig{Bucket: "logos", Region: "ap-southeast-2", AuthMethod: "assume_role"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(&tt.cfg); err == nil {
				t.Error("New() = nil error, want validation error")
			}
		})
	}
}

func TestNew_StaticKeysInferAuthMethod(t *testing.T) {
	s, err := New(&appconfig.S3StorageConfig{
		Bucket:          "logos",
		Region:          "ap-southeast-2",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "secret",
		Endpoint:        "http://localhost:9000",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s.bucket != "logos" {
		t.Errorf("bucket = %q", s.bucket)
	}
}

func TestNew_AssumeRoleIsLazy(t *testing.T) {
	_, err := New(&appconfig.S3StorageConfig{
		Bucket:     "logos",
		Region:     "ap-southeast-2",
		AuthMethod: "assume_role",
		RoleARN:    "arn:aws:iam::123456789012:role/logos",
		ExternalID: "ext-123",
	})
	if err != nil {
		t.Errorf("New() error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Mock S3-compatible HTTP server for operations tests
// ---------------------------------------------------------------------------

type s3Object struct {
	data        []byte
	contentType string
	meta        map[string]string // amz-meta headers, lowercase, no prefix
}

type s3MockStore struct {
	mu      sync.Mutex
	objects map[string]s3Object
}

// newS3TestStorage creates an S3Storage backed by a mock server speaking the
// path-style object API.
func newS3TestStorage(t *testing.T) (*S3Storage, *s3MockStore) {
	t.Helper()

	ms := &s3MockStore{objects: map[string]s3Object{}}
	const bucket = "test-bucket"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		idx := strings.IndexByte(path, '/')
		if idx < 0 {
			// Bucket-level HEAD
			if path == bucket && r.Method == http.MethodHead {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}
		key := path[idx+1:]

		ms.mu.Lock()
		defer ms.mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			obj := s3Object{data: data, contentType: r.Header.Get("Content-Type"), meta: map[string]string{}}
			for hk, hv := range r.Header {
				lk := strings.ToLower(hk)
				if strings.HasPrefix(lk, "x-amz-meta-") && len(hv) > 0 {
					obj.meta[strings.TrimPrefix(lk, "x-amz-meta-")] = hv[0]
				}
			}
			ms.objects[key] = obj
			w.Header().Set("ETag", `"test-etag"`)
			w.WriteHeader(http.StatusOK)

		case http.MethodGet, http.MethodHead:
			obj, ok := ms.objects[key]
			if !ok {
				if r.Method == http.MethodGet {
					w.Header().Set("Content-Type", "application/xml")
					w.WriteHeader(http.StatusNotFound)
					fmt.Fprint(w, `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
					return
				}
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(obj.data)))
			w.Header().Set("Content-Type", obj.contentType)
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			w.Header().Set("ETag", `"test-etag"`)
			for mk, mv := range obj.meta {
				w.Header().Set("x-amz-meta-"+mk, mv)
			}
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				w.Write(obj.data)
			}

		case http.MethodDelete:
			delete(ms.objects, key)
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	s, err := New(&appconfig.S3StorageConfig{
		Bucket:          bucket,
		Region:          "us-east-1",
		AuthMethod:      "static",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		Endpoint:        srv.URL,
	})
	if err != nil {
		t.Fatalf("New() for mock S3: %v", err)
	}
	return s, ms
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

func TestS3_Put(t *testing.T) {
	s, ms := newS3TestStorage(t)
	data := []byte("png bytes")

	obj, err := s.Put(context.Background(), "organizations/org-1/logo-1a2b3c4d.png", bytes.NewReader(data), int64(len(data)), "image/png")
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if obj.Checksum != storage.Checksum(data) {
		t.Errorf("Checksum = %q", obj.Checksum)
	}

	stored := ms.objects["organizations/org-1/logo-1a2b3c4d.png"]
	if stored.contentType != "image/png" {
		t.Errorf("stored Content-Type = %q, want image/png", stored.contentType)
	}
	if stored.meta[storage.ChecksumMetadataKey] != obj.Checksum {
		t.Errorf("stored checksum metadata = %q", stored.meta[storage.ChecksumMetadataKey])
	}
}

func TestS3_Open(t *testing.T) {
	s, _ := newS3TestStorage(t)
	ctx := context.Background()
	want := []byte("<svg/>")
	if _, err := s.Put(ctx, "logo.svg", bytes.NewReader(want), int64(len(want)), "image/svg+xml"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, obj, err := s.Open(ctx, "logo.svg")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()

	if !bytes.Equal(got, want) {
		t.Errorf("content = %q, want %q", got, want)
	}
	if obj.ContentType != "image/svg+xml" {
		t.Errorf("ContentType = %q", obj.ContentType)
	}
	if obj.Checksum != storage.Checksum(want) {
		t.Errorf("Checksum = %q", obj.Checksum)
	}
}

func TestS3_NotFound(t *testing.T) {
	s, _ := newS3TestStorage(t)
	ctx := context.Background()

	if _, _, err := s.Open(ctx, "missing.png"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("Open err = %v, want ErrObjectNotFound", err)
	}
	if _, err := s.Stat(ctx, "missing.png"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("Stat err = %v, want ErrObjectNotFound", err)
	}
	if _, err := s.SignedURL(ctx, "missing.png", time.Hour); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("SignedURL err = %v, want ErrObjectNotFound", err)
	}
}

func TestS3_Delete(t *testing.T) {
	s, ms := newS3TestStorage(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "gone.png", strings.NewReader("x"), 1, "image/png"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, "gone.png"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, ok := ms.objects["gone.png"]; ok {
		t.Error("object still stored after Delete")
	}
	if err := s.Delete(ctx, "gone.png"); err != nil {
		t.Errorf("second Delete() error: %v", err)
	}
}

func TestS3_Stat(t *testing.T) {
	s, _ := newS3TestStorage(t)
	ctx := context.Background()
	data := []byte("12345")
	if _, err := s.Put(ctx, "stat.webp", bytes.NewReader(data), 5, "image/webp"); err != nil {
		t.Fatal(err)
	}

	obj, err := s.Stat(ctx, "stat.webp")
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if obj.Size != 5 || obj.ContentType != "image/webp" {
		t.Errorf("Stat() = %+v", obj)
	}
}

func TestS3_SignedURL(t *testing.T) {
	s, _ := newS3TestStorage(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "organizations/org-1/logo.png", strings.NewReader("x"), 1, "image/png"); err != nil {
		t.Fatal(err)
	}

	url, err := s.SignedURL(ctx, "organizations/org-1/logo.png", 15*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL() error: %v", err)
	}
	if !strings.Contains(url, "X-Amz-Signature=") || !strings.Contains(url, "X-Amz-Expires=900") {
		t.Errorf("url = %q, want a presigned URL expiring in 900s", url)
	}
}

func TestS3_Ping(t *testing.T) {
	s, _ := newS3TestStorage(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}

	s.bucket = "other-bucket"
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping() on a missing bucket should fail")
	}
}
