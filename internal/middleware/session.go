// Package middleware provides Gin HTTP middleware for session resolution, authorization,
// rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	RequestID → Logger → Metrics → Security → Subdomain → Session → RateLimit → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Session resolution runs before rate limiting so signed-in callers are limited
// per user rather than per IP. Session never rejects a request; handlers that
// need a caller chain RequireSession or RequireOrgRole.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aragroup/ara-platform/internal/apperrors"
	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/gin-gonic/gin"
)

// Gin context keys set by the middleware in this package.
const (
	ContextKeyPrincipal      = "principal"
	ContextKeyUserID         = "user_id"
	ContextKeyOrganizationID = "organization_id"
	ContextKeyRole           = "role"
	ContextKeySubdomain      = "subdomain"
	ContextKeyMembership     = "membership"
)

// Response headers mirroring the resolved principal.
const (
	HeaderUserID         = "X-User-Id"
	HeaderOrganizationID = "X-Organization-Id"
	HeaderUserRole       = "X-User-Role"
)

// SessionValidator resolves a session token. *sessions.Manager satisfies it.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*models.Principal, error)
}

// SessionMiddleware resolves the caller from the session cookie, falling back to
// an "Authorization: Bearer" token. Unknown and expired tokens leave the request
// anonymous.
func SessionMiddleware(validator SessionValidator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c, cookieName)
		if token == "" {
			c.Next()
			return
		}

		principal, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrExpired) {
				slog.Error("session validation failed", "error", err, "request_id", c.GetString(RequestIDKey))
			}
			c.Next()
			return
		}

		SetPrincipal(c, principal)
		c.Next()
	}
}

// SessionToken returns the request's session token: the cookie when present,
// otherwise the bearer token.
func SessionToken(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	return auth.BearerToken(c.GetHeader("Authorization"))
}

// SetPrincipal stores p in the context and mirrors it into response headers.
func SetPrincipal(c *gin.Context, p *models.Principal) {
	c.Set(ContextKeyPrincipal, p)
	c.Set(ContextKeyUserID, p.User.ID)
	c.Header(HeaderUserID, p.User.ID)
	if p.HasOrganization() {
		c.Set(ContextKeyOrganizationID, p.OrganizationID)
		c.Set(ContextKeyRole, string(p.Role))
		c.Header(HeaderOrganizationID, p.OrganizationID)
		c.Header(HeaderUserRole, string(p.Role))
	}
}

// GetPrincipal returns the resolved caller, or nil for anonymous requests.
func GetPrincipal(c *gin.Context) *models.Principal {
	v, ok := c.Get(ContextKeyPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Principal)
	return p
}

// RequireSession rejects anonymous requests with 401.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetPrincipal(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		c.Next()
	}
}
