// Package account implements the browser sign-in flow and the signed-in
// user's account endpoints under /api/auth.
package account

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/middleware"
	"github.com/aragroup/ara-platform/internal/services"
	"github.com/aragroup/ara-platform/internal/sessions"
	"github.com/aragroup/ara-platform/internal/telemetry"
	"github.com/aragroup/ara-platform/internal/validation"
	"github.com/gin-gonic/gin"
)

// Sign-in error codes appended to the sign-in page URL.
const (
	ErrorNoCode     = "no_code"
	ErrorAuthFailed = "auth_failed"
)

// DefaultSignInPath is where failed sign-ins are sent when none is configured.
const DefaultSignInPath = "/sign-in"

// Accounts is the account logic behind the handlers. *services.AccountService
// satisfies it.
type Accounts interface {
	CompleteSignIn(ctx context.Context, identity *auth.Identity, meta sessions.Metadata) (*services.SignIn, error)
	SignOut(ctx context.Context, p *models.Principal, token string) error
	Profile(ctx context.Context, p *models.Principal) (*services.Profile, error)
	SwitchOrganization(ctx context.Context, p *models.Principal, orgID string) (*models.Principal, error)
}

var _ Accounts = (*services.AccountService)(nil)

// Options configures Handlers.
type Options struct {
	SignInPath string
	Cookie     CookieOptions
}

// Handlers serves the /api/auth endpoints.
type Handlers struct {
	accounts Accounts
	provider auth.Provider
	opts     Options
}

// NewHandlers creates account handlers that sign users in through provider.
func NewHandlers(accounts Accounts, provider auth.Provider, opts Options) *Handlers {
	if opts.SignInPath == "" {
		opts.SignInPath = DefaultSignInPath
	}
	return &Handlers{accounts: accounts, provider: provider, opts: opts}
}

// SignInHandler redirects the browser to the identity provider. The optional
// returnTo query parameter is carried through the OAuth state.
// GET /api/auth/sign-in?returnTo=/dashboard
func (h *Handlers) SignInHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := auth.EncodeState(c.Query("returnTo"))
		c.Redirect(http.StatusFound, h.provider.AuthorizationURL(state))
	}
}

// CallbackHandler completes the OAuth flow: it exchanges the code, reconciles
// the user, sets the session cookie and redirects to the return path.
// GET /api/auth/callback?code=&state=
func (h *Handlers) CallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if providerErr := c.Query("error"); providerErr != "" {
			slog.Warn("sign-in: provider returned error",
				"provider", h.provider.Name(),
				"error", providerErr,
				"description", c.Query("error_description"),
			)
			telemetry.SignInsTotal.WithLabelValues("provider_error").Inc()
			h.signInError(c, providerErr)
			return
		}

		code := c.Query("code")
		if code == "" {
			telemetry.SignInsTotal.WithLabelValues("no_code").Inc()
			h.signInError(c, ErrorNoCode)
			return
		}

		returnTo := auth.ReturnToFromState(c.Query("state"))

		ctx := c.Request.Context()
		identity, err := h.provider.AuthenticateWithCode(ctx, code)
		if err != nil {
			slog.Warn("sign-in: code exchange failed", "provider", h.provider.Name(), "error", err)
			telemetry.SignInsTotal.WithLabelValues("exchange_failed").Inc()
			h.signInError(c, ErrorAuthFailed)
			return
		}

		signIn, err := h.accounts.CompleteSignIn(ctx, identity, sessions.Metadata{
			UserAgent:            c.Request.UserAgent(),
			IPAddress:            c.ClientIP(),
			ProviderAccessToken:  identity.AccessToken,
			ProviderRefreshToken: identity.RefreshToken,
		})
		if err != nil {
			slog.Error("sign-in: failed to complete",
				"provider", h.provider.Name(),
				"external_id", identity.ExternalID,
				"error", err,
			)
			h.signInError(c, ErrorAuthFailed)
			return
		}

		slog.Info("user signed in",
			"user_id", signIn.User.ID,
			"first_time", signIn.FirstTime,
			"request_id", c.GetString(middleware.RequestIDKey),
		)
		h.opts.Cookie.set(c, signIn.Token)
		c.Redirect(http.StatusFound, returnTo)
	}
}

func (h *Handlers) signInError(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, h.opts.SignInPath+"?error="+url.QueryEscape(code))
}

// SignOutHandler revokes the caller's session and expires the cookie. POST
// answers with JSON; GET redirects home so it can be used as a plain link.
// POST|GET /api/auth/sign-out
func (h *Handlers) SignOutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := middleware.SessionToken(c, h.opts.Cookie.Name)
		h.opts.Cookie.clear(c)

		if token != "" {
			if err := h.accounts.SignOut(c.Request.Context(), middleware.GetPrincipal(c), token); err != nil {
				middleware.RespondError(c, err)
				return
			}
		}

		if c.Request.Method == http.MethodGet {
			c.Redirect(http.StatusFound, auth.DefaultReturnTo)
			return
		}
		c.JSON(http.StatusOK, gin.H{"signed_out": true})
	}
}

// MeHandler returns the caller's user, active organization, role and memberships.
// GET /api/auth/me
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := h.accounts.Profile(c.Request.Context(), middleware.GetPrincipal(c))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

type switchOrganizationRequest struct {
	OrganizationID string `json:"organization_id" binding:"required"`
}

// SwitchOrganizationHandler changes the session's active organization.
// POST /api/auth/organization
func (h *Handlers) SwitchOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req switchOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		principal, err := h.accounts.SwitchOrganization(c.Request.Context(), middleware.GetPrincipal(c), req.OrganizationID)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"organization_id": principal.OrganizationID,
			"role":            principal.Role,
		})
	}
}
