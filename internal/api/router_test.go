package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/config"
	"github.com/aragroup/ara-platform/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeStorage struct {
	pingErr error
	objects map[string]string
}

func (f *fakeStorage) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (*storage.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[key] = string(data)
	return &storage.Object{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (f *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, *storage.Object, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(data)), &storage.Object{Key: key, Size: int64(len(data)), ContentType: "image/png"}, nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://localhost/files/" + key, nil
}

func (f *fakeStorage) Stat(_ context.Context, key string) (*storage.Object, error) {
	if _, ok := f.objects[key]; !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.Object{Key: key}, nil
}

func (f *fakeStorage) Ping(context.Context) error { return f.pingErr }

type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }

func (fakeProvider) AuthorizationURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (fakeProvider) AuthenticateWithCode(context.Context, string) (*auth.Identity, error) {
	return nil, errors.New("not used")
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return body
}

// ---------------------------------------------------------------------------
// healthCheckHandler
// ---------------------------------------------------------------------------

func TestHealthCheckHandler(t *testing.T) {
	tests := []struct {
		name   string
		pingOK bool
		want   int
		status string
	}{
		{"healthy", true, http.StatusOK, "healthy"},
		{"database down", false, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			if tt.pingOK {
				mock.ExpectPing()
			} else {
				mock.ExpectPing().WillReturnError(sql.ErrConnDone)
			}

			r := gin.New()
			r.GET("/health", healthCheckHandler(db))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if got := decode(t, w)["status"]; got != tt.status {
				t.Errorf("status field = %v, want %s", got, tt.status)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// readinessHandler
// ---------------------------------------------------------------------------

func TestReadinessHandler(t *testing.T) {
	t.Run("ready with redis", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing()
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })

		r := gin.New()
		r.GET("/ready", readinessHandler(db, rdb, &fakeStorage{}))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
		}
		checks, _ := decode(t, w)["checks"].(map[string]interface{})
		for _, component := range []string{"database", "redis", "storage"} {
			if checks[component] != "healthy" {
				t.Errorf("checks[%s] = %v, want healthy", component, checks[component])
			}
		}
	})

	t.Run("ready without redis", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing()

		r := gin.New()
		r.GET("/ready", readinessHandler(db, nil, &fakeStorage{}))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		checks, _ := decode(t, w)["checks"].(map[string]interface{})
		if _, ok := checks["redis"]; ok {
			t.Error("redis check reported although redis is not configured")
		}
	})

	t.Run("redis down", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing()
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		t.Cleanup(func() { rdb.Close() })
		mr.Close()

		r := gin.New()
		r.GET("/ready", readinessHandler(db, rdb, &fakeStorage{}))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
		if got := decode(t, w)["error"]; got != "redis not ready" {
			t.Errorf("error = %v", got)
		}
	})

	t.Run("storage down", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing()

		r := gin.New()
		r.GET("/ready", readinessHandler(db, nil, &fakeStorage{pingErr: errors.New("bucket gone")}))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
		checks, _ := decode(t, w)["checks"].(map[string]interface{})
		if checks["storage"] != "unhealthy" {
			t.Errorf("checks[storage] = %v, want unhealthy", checks["storage"])
		}
	})

	t.Run("database down", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)

		r := gin.New()
		r.GET("/ready", readinessHandler(db, nil, &fakeStorage{}))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// versionHandler / filesHandler
// ---------------------------------------------------------------------------

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := decode(t, w)["version"]; got != Version {
		t.Errorf("version = %v, want %s", got, Version)
	}
}

func TestFilesHandler(t *testing.T) {
	store := &fakeStorage{objects: map[string]string{"organizations/org-1/logo": "png-bytes"}}
	r := gin.New()
	r.GET("/files/*key", filesHandler(store))

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/organizations/org-1/logo", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if w.Body.String() != "png-bytes" {
			t.Errorf("body = %q", w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("Content-Type = %q", ct)
		}
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/organizations/org-2/logo", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

// ---------------------------------------------------------------------------
// CORSMiddleware
// ---------------------------------------------------------------------------

func TestCORSMiddleware(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"https://fire.aragroup.com.au"}
	cfg.Security.CORS.AllowedMethods = []string{"GET", "PATCH"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{"allowed origin", http.MethodGet, "https://fire.aragroup.com.au", http.StatusOK, "https://fire.aragroup.com.au"},
		{"disallowed origin", http.MethodGet, "https://evil.example.com", http.StatusOK, ""},
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://fire.aragroup.com.au", http.StatusNoContent, "https://fire.aragroup.com.au"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/x", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin != "" && w.Header().Get("Access-Control-Allow-Methods") != "GET, PATCH" {
				t.Errorf("Allow-Methods = %q", w.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}

func TestCORSMiddleware_Credentials(t *testing.T) {
	tests := []struct {
		name      string
		origins   []string
		origin    string
		wantAllow string
		wantCreds string
	}{
		{"wildcard never sends credentials", []string{"*"}, "https://evil.aragroup.com.au", "*", ""},
		{"explicit entry beats wildcard", []string{"*", "https://fire.aragroup.com.au"}, "https://fire.aragroup.com.au", "https://fire.aragroup.com.au", "true"},
		{"explicit entry", []string{"https://fire.aragroup.com.au"}, "https://fire.aragroup.com.au", "https://fire.aragroup.com.au", "true"},
		{"empty list allows nothing", nil, "https://fire.aragroup.com.au", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Security.CORS.AllowedOrigins = tt.origins

			r := gin.New()
			r.Use(CORSMiddleware(cfg))
			r.GET("/api/auth/me", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Allow-Credentials = %q, want %q", got, tt.wantCreds)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// NewRouter
// ---------------------------------------------------------------------------

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.Provider = config.ProviderWorkOS
	cfg.Auth.SignInPath = "/sign-in"
	cfg.Auth.WorkOS.WebhookSecret = "whsec_test"
	cfg.Auth.WorkOS.WebhookTolerance = 5 * time.Minute
	cfg.Auth.Session.CookieName = "workos_session"
	cfg.Auth.Session.TTL = 720 * time.Hour
	cfg.Auth.Session.ReapInterval = time.Hour
	cfg.Auth.Invitations.SigningSecret = strings.Repeat("s", auth.MinSigningSecretLength)
	cfg.Storage.DefaultBackend = "local"
	cfg.Storage.MaxLogoBytes = 1 << 20
	cfg.Subdomains.ParentDomains = config.DefaultParentDomains
	cfg.Subdomains.Labels = config.DefaultSubdomainLabels
	cfg.Security.RateLimiting.Enabled = true
	cfg.Security.RateLimiting.Backend = "redis"
	cfg.Security.RateLimiting.RequestsPerMinute = 60
	cfg.Security.RateLimiting.Burst = 10
	return cfg
}

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	db, mock := newMockDB(t)
	mock.MatchExpectationsInOrder(false)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	router, bg, err := NewRouter(ctx, cfg, Deps{
		DB:       db,
		Redis:    rdb,
		Storage:  &fakeStorage{},
		Provider: fakeProvider{},
	})
	if err != nil {
		cancel()
		t.Fatalf("NewRouter: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		bg.Shutdown()
	})
	return router
}

func TestNewRouter_RequiresDatabase(t *testing.T) {
	if _, _, err := NewRouter(context.Background(), testConfig(), Deps{}); err == nil {
		t.Fatal("expected error without a database")
	}
}

func TestNewRouter_RejectsShortSigningSecret(t *testing.T) {
	db, _ := newMockDB(t)
	cfg := testConfig()
	cfg.Auth.Invitations.SigningSecret = "short"
	_, _, err := NewRouter(context.Background(), cfg, Deps{DB: db, Storage: &fakeStorage{}, Provider: fakeProvider{}})
	if err == nil {
		t.Fatal("expected error for a short signing secret")
	}
}

func TestNewRouter_Routes(t *testing.T) {
	router := newTestRouter(t, testConfig())

	t.Run("sign-in redirects to provider", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/sign-in", nil))
		if w.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", w.Code)
		}
		if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "https://idp.example.com/authorize") {
			t.Errorf("Location = %q", loc)
		}
		if w.Header().Get("X-RateLimit-Limit") == "" {
			t.Error("sign-in is not rate limited")
		}
	})

	t.Run("callback without code", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/callback", nil))
		if w.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", w.Code)
		}
		if loc := w.Header().Get("Location"); loc != "/sign-in?error=no_code" {
			t.Errorf("Location = %q", loc)
		}
	})

	anonymous := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodPost, "/api/auth/organization"},
		{http.MethodGet, "/api/organizations"},
		{http.MethodGet, "/api/organizations/org-1"},
		{http.MethodGet, "/api/invitations"},
		{http.MethodGet, "/api/admin/stats"},
	}
	for _, tt := range anonymous {
		t.Run("anonymous "+tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}

	t.Run("webhook requires signature", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/workos", strings.NewReader(`{"event":"user.deleted"}`))
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "" {
			t.Error("webhook went through the general rate limiter")
		}
	})

	t.Run("sign-out without session", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/sign-out", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("security headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
		if w.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("X-Content-Type-Options = %q", w.Header().Get("X-Content-Type-Options"))
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
	})
}

func TestNewRouter_WebhookDisabledWithoutSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.WorkOS.WebhookSecret = ""
	router := newTestRouter(t, cfg)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/workos", strings.NewReader(`{}`)))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
