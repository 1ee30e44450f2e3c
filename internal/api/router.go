// Package api wires together all HTTP routes for the ARA platform backend.
//
// Route grouping:
//   - /health, /ready and /version are public probes.
//   - /api/auth carries the browser sign-in flow and the signed-in user's
//     account endpoints. Sign-in and callback sit behind the stricter auth
//     rate limiter.
//   - /api/organizations and /api/invitations require a session; role checks
//     run per route.
//   - /api/admin is the platform administration surface.
//   - /api/webhooks/workos is authenticated by its signature header only and is
//     kept outside the general rate limiter.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aragroup/ara-platform/internal/api/account"
	"github.com/aragroup/ara-platform/internal/api/admin"
	"github.com/aragroup/ara-platform/internal/api/organizations"
	"github.com/aragroup/ara-platform/internal/api/webhooks"
	"github.com/aragroup/ara-platform/internal/audit"
	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/auth/oidc"
	"github.com/aragroup/ara-platform/internal/auth/workos"
	"github.com/aragroup/ara-platform/internal/config"
	"github.com/aragroup/ara-platform/internal/crypto"
	"github.com/aragroup/ara-platform/internal/db/repositories"
	"github.com/aragroup/ara-platform/internal/jobs"
	"github.com/aragroup/ara-platform/internal/middleware"
	"github.com/aragroup/ara-platform/internal/safego"
	"github.com/aragroup/ara-platform/internal/services"
	"github.com/aragroup/ara-platform/internal/sessions"
	"github.com/aragroup/ara-platform/internal/storage"
	"github.com/aragroup/ara-platform/internal/storage/local"
	"github.com/aragroup/ara-platform/internal/tenancy"
	"github.com/aragroup/ara-platform/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Version is reported by /version and the version command.
var Version = "0.1.0"

// Deps are the external resources the router is built on. DB is required.
// Storage and Provider are constructed from the config when nil; Redis is
// optional and enables the shared session cache and rate limiter.
type Deps struct {
	DB       *sql.DB
	Redis    redis.UniversalClient
	Storage  storage.Storage
	Provider auth.Provider
}

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	sessionReaper *jobs.SessionReaper
	rateLimiters  []*middleware.RateLimiter
	webhookGuard  *middleware.WebhookFailureLimiter
	shipper       *audit.MultiShipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.sessionReaper != nil {
		bg.sessionReaper.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.webhookGuard != nil {
		bg.webhookGuard.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. Background jobs are started
// on ctx.
func NewRouter(ctx context.Context, cfg *config.Config, deps Deps) (*gin.Engine, *BackgroundServices, error) {
	if deps.DB == nil {
		return nil, nil, errors.New("database is required")
	}
	db := deps.DB
	bg := &BackgroundServices{}

	storageBackend := deps.Storage
	if storageBackend == nil {
		var err error
		storageBackend, err = storage.NewStorage(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage backend: %w", err)
		}
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	provider := deps.Provider
	if provider == nil {
		var err error
		provider, err = newProvider(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
	}
	slog.Info("initialized identity provider", "provider", provider.Name())

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	sqlxDB := sqlx.NewDb(db, "postgres")
	auditRepo := repositories.NewAuditRepository(sqlxDB)
	invitationRepo := repositories.NewInvitationRepository(sqlxDB)

	// Provider tokens are only kept when an encryption key is configured.
	var tokenCipher *crypto.TokenCipher
	if cfg.EncryptionKey != "" {
		var err error
		tokenCipher, err = crypto.FromSecret(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize token cipher: %w", err)
		}
	}

	var cache sessions.Cache = sessions.NoopCache{}
	if deps.Redis != nil {
		cache = sessions.NewRedisCache(deps.Redis)
	}
	sessionManager := sessions.NewManager(sessionRepo, userRepo, orgRepo, cache, sessions.Options{
		TTL:             cfg.Auth.Session.TTL,
		CacheTTL:        cfg.Auth.Session.CacheTTL,
		ReplaceExisting: cfg.Auth.Session.ReplaceExisting,
		Cipher:          tokenCipher,
	})

	signer, err := auth.NewInvitationSigner(cfg.Auth.Invitations.SigningSecret)
	if err != nil {
		return nil, nil, err
	}

	var shipper audit.Shipper
	if cfg.Audit.Enabled && len(cfg.Audit.Shippers) > 0 {
		ms, err := audit.NewMultiShipper(cfg.Audit.Shippers, deps.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
		}
		bg.shipper = ms
		shipper = ms
	}
	recorder := audit.NewRecorder(auditRepo, shipper)

	// Initialize services
	accountService := services.NewAccountService(userRepo, orgRepo, sessionManager, recorder, cfg.Auth.AdminEmails)
	orgService := services.NewOrganizationService(orgRepo, storageBackend, sessionManager, recorder, services.OrganizationOptions{
		MaxLogoBytes: cfg.Storage.MaxLogoBytes,
		LogoURLTTL:   cfg.Storage.URLTTL,
	})
	invitationService := services.NewInvitationService(invitationRepo, orgRepo, userRepo, signer, sessionManager, recorder)
	directoryService := services.NewDirectoryService(userRepo, orgRepo, sessionManager, recorder)
	adminService := services.NewAdminService(orgRepo, repositories.NewStatsRepository(sqlxDB), sessionManager, recorder)

	validation.Register()

	// Rate limiters
	apiLimitCfg := middleware.DefaultRateLimitConfig()
	if rl := cfg.Security.RateLimiting; rl.RequestsPerMinute > 0 {
		apiLimitCfg.RequestsPerMinute = rl.RequestsPerMinute
		if rl.Burst > 0 {
			apiLimitCfg.BurstSize = rl.Burst
		}
	}
	var apiLimit, authLimit, uploadLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		backend := cfg.Security.RateLimiting.Backend
		newLimit := func(rc middleware.RateLimitConfig) gin.HandlerFunc {
			l := middleware.NewLimiter(backend, deps.Redis, rc)
			if rl, ok := l.(*middleware.RateLimiter); ok {
				bg.rateLimiters = append(bg.rateLimiters, rl)
			}
			return middleware.RateLimitMiddleware(l)
		}
		apiLimit = newLimit(apiLimitCfg)
		authLimit = newLimit(middleware.AuthRateLimitConfig())
		uploadLimit = newLimit(middleware.UploadRateLimitConfig())
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.MetricsMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.SubdomainMiddleware(tenancy.NewResolver(cfg.Subdomains.ParentDomains, cfg.Subdomains.Labels)))
	router.Use(middleware.SessionMiddleware(sessionManager, cfg.Auth.Session.CookieName))
	if cfg.Audit.Enabled {
		router.Use(middleware.AuditMiddleware(recorder, &cfg.Audit))
	}

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, deps.Redis, storageBackend))
	router.GET("/version", versionHandler())

	if cfg.Storage.DefaultBackend == "local" {
		router.GET(local.FilesRoute+"*key", filesHandler(storageBackend))
	}

	// Webhook endpoints (public, authentication via signature validation)
	if cfg.Auth.WorkOS.WebhookSecret != "" {
		webhookHandler := webhooks.NewWorkOSWebhookHandler(directoryService)
		bg.webhookGuard = middleware.NewWebhookFailureLimiter(time.Minute)
		router.POST("/api/webhooks/workos",
			middleware.WebhookSignatureMiddleware(cfg.Auth.WorkOS.WebhookSecret, cfg.Auth.WorkOS.WebhookTolerance, bg.webhookGuard),
			webhookHandler.HandleWebhook(),
		)
	} else {
		slog.Warn("workos webhook secret not configured, directory webhook disabled")
	}

	api := router.Group("/api")
	if apiLimit != nil {
		api.Use(apiLimit)
	}

	accountHandlers := account.NewHandlers(accountService, provider, account.Options{
		SignInPath: cfg.Auth.SignInPath,
		Cookie: account.CookieOptions{
			Name:   cfg.Auth.Session.CookieName,
			Secure: cfg.Server.IsProduction(),
			MaxAge: cfg.Auth.Session.TTL,
		},
	})
	authGroup := api.Group("/auth")
	{
		signIn := []gin.HandlerFunc{}
		if authLimit != nil {
			signIn = append(signIn, authLimit)
		}
		authGroup.GET("/sign-in", append(signIn, accountHandlers.SignInHandler())...)
		authGroup.GET("/callback", append(signIn, accountHandlers.CallbackHandler())...)
		authGroup.GET("/sign-out", accountHandlers.SignOutHandler())
		authGroup.POST("/sign-out", accountHandlers.SignOutHandler())
		authGroup.GET("/me", middleware.RequireSession(), accountHandlers.MeHandler())
		authGroup.POST("/organization", middleware.RequireSession(), accountHandlers.SwitchOrganizationHandler())
	}

	orgHandlers := organizations.NewHandlers(orgService, invitationService, auditRepo, cfg.Storage.MaxLogoBytes)
	orgHandlers.Register(api, orgRepo, uploadLimit)
	admin.NewHandlers(adminService).Register(api)

	// Session reaper
	reaper := jobs.NewSessionReaper(sessionRepo, cfg.Auth.Session.ReapInterval, cfg.Auth.Session.ReapGrace)
	safego.Go("session-reaper", func() { reaper.Start(ctx) })
	bg.sessionReaper = reaper

	return router, bg, nil
}

// newProvider builds the identity provider selected by auth.provider.
func newProvider(ctx context.Context, cfg *config.Config) (auth.Provider, error) {
	switch cfg.Auth.Provider {
	case config.ProviderOIDC:
		p, err := oidc.NewOIDCProvider(ctx, &cfg.Auth.OIDC)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OIDC provider: %w", err)
		}
		return p, nil
	default:
		w := cfg.Auth.WorkOS
		p, err := workos.New(w.APIKey, w.ClientID, w.RedirectURI, workos.WithBaseURL(w.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize WorkOS client: %w", err)
		}
		return p, nil
	}
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks Redis and the storage
// backend so that a readiness gate fails when sessions or logos would error.
func readinessHandler(db *sql.DB, rdb redis.UniversalClient, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}

		notReady := func(component, msg string) {
			checks[component] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  msg,
			})
		}

		if err := db.PingContext(ctx); err != nil {
			notReady("database", "database not ready")
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				notReady("redis", "redis not ready")
				return
			}
			checks["redis"] = "healthy"
		}

		if err := storageBackend.Ping(ctx); err != nil {
			notReady("storage", "storage backend not ready")
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// filesHandler streams objects from the local storage backend.
func filesHandler(store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if key == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}

		rc, obj, err := store.Open(c.Request.Context(), key)
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		if err != nil {
			slog.Error("failed to open stored file", "key", key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
			return
		}
		defer rc.Close()

		c.Header("Content-Type", obj.ContentType)
		c.Header("Content-Length", strconv.FormatInt(obj.Size, 10))
		c.Header("Cache-Control", "public, max-age=300")
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, rc); err != nil {
			slog.Warn("failed to stream stored file", "key", key, "error", err)
		}
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest logs a request as a structured slog record. The output format
// follows the handler installed by telemetry.SetupLogger.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", c.GetString(middleware.RequestIDKey)),
		slog.String("user_agent", c.Request.UserAgent()),
	}
	if label := c.GetString(middleware.ContextKeySubdomain); label != "" {
		attrs = append(attrs, slog.String("subdomain", label))
	}
	slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
}

// CORSMiddleware handles CORS. Only origins listed explicitly receive
// Access-Control-Allow-Credentials; a "*" entry allows anonymous reads.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		exact, wildcard := false, false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == origin {
				exact = true
				break
			}
			if allowedOrigin == "*" {
				wildcard = true
			}
		}

		if origin != "" && (exact || wildcard) {
			if exact {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Credentials", "true")
			} else {
				c.Header("Access-Control-Allow-Origin", "*")
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
