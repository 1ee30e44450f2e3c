// Package sessions issues and validates server-side login sessions.
//
// A session token is an opaque random string handed to the browser in the
// session cookie. Only its SHA-256 hash is stored, so a database leak does not
// leak usable tokens. Validation resolves the token into a models.Principal:
// the user, the session's active organization and the user's role in it.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aragroup/ara-platform/internal/apperrors"
	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/crypto"
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/telemetry"
)

// DefaultTTL is the session lifetime used when Options.TTL is zero.
const DefaultTTL = 30 * 24 * time.Hour

var (
	// ErrSessionNotFound is returned for empty or unknown tokens and for
	// sessions whose user has been deleted.
	ErrSessionNotFound = apperrors.NotFound("session not found")
	// ErrSessionExpired is returned when every session stored under the token
	// is past its expiry.
	ErrSessionExpired = apperrors.Expired("session expired")
	// ErrNotMember is returned when switching to an organization the user
	// does not belong to.
	ErrNotMember = apperrors.Unauthorized("not a member of this organization")
)

// SessionStore is the persistence the manager needs. *repositories.SessionRepository
// satisfies it.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	ListByTokenHash(ctx context.Context, tokenHash string) ([]*models.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteByUserID(ctx context.Context, userID string) ([]string, error)
	ListTokenHashesByUser(ctx context.Context, userID string) ([]string, error)
	SetActiveOrganization(ctx context.Context, sessionID string, orgID *string) error
}

// UserStore loads the session owner.
type UserStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// MembershipStore loads the owner's role in the active organization.
type MembershipStore interface {
	GetMember(ctx context.Context, orgID, userID string) (*models.Membership, error)
}

// Options configures a Manager.
type Options struct {
	TTL      time.Duration
	CacheTTL time.Duration
	// ReplaceExisting deletes a user's earlier sessions when a new one is created.
	ReplaceExisting bool
	// Cipher seals provider tokens before they are stored. Provider tokens are
	// dropped when nil.
	Cipher *crypto.TokenCipher
}

// Metadata describes the client a session is created for.
type Metadata struct {
	UserAgent            string
	IPAddress            string
	ProviderAccessToken  string
	ProviderRefreshToken string
}

// Manager creates, validates and revokes sessions.
type Manager struct {
	sessions SessionStore
	users    UserStore
	members  MembershipStore
	cache    Cache
	opts     Options
	now      func() time.Time
}

// NewManager creates a Manager. A nil cache disables caching.
func NewManager(sessions SessionStore, users UserStore, members MembershipStore, cache Cache, opts Options) *Manager {
	if cache == nil {
		cache = NoopCache{}
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Manager{
		sessions: sessions,
		users:    users,
		members:  members,
		cache:    cache,
		opts:     opts,
		now:      time.Now,
	}
}

// TTL returns the lifetime given to new sessions.
func (m *Manager) TTL() time.Duration {
	return m.opts.TTL
}

// Create issues a session for userID and returns the raw token. The token is
// never stored; callers must hand it to the client immediately.
func (m *Manager) Create(ctx context.Context, userID string, activeOrgID *string, meta Metadata) (string, *models.Session, error) {
	if m.opts.ReplaceExisting {
		if _, err := m.RevokeUser(ctx, userID); err != nil {
			return "", nil, err
		}
	}

	token, err := auth.NewSessionToken()
	if err != nil {
		return "", nil, err
	}

	s := &models.Session{
		TokenHash:            auth.HashToken(token),
		UserID:               userID,
		ActiveOrganizationID: activeOrgID,
		ExpiresAt:            m.now().Add(m.opts.TTL),
		UserAgent:            optional(meta.UserAgent),
		IPAddress:            optional(meta.IPAddress),
	}
	if m.opts.Cipher != nil {
		if s.ProviderAccessToken, err = m.opts.Cipher.SealOptional(meta.ProviderAccessToken); err != nil {
			return "", nil, fmt.Errorf("failed to seal provider access token: %w", err)
		}
		if s.ProviderRefreshToken, err = m.opts.Cipher.SealOptional(meta.ProviderRefreshToken); err != nil {
			return "", nil, fmt.Errorf("failed to seal provider refresh token: %w", err)
		}
	}

	if err := m.sessions.CreateSession(ctx, s); err != nil {
		return "", nil, err
	}
	return token, s, nil
}

// Validate resolves token into the caller's principal. It returns
// ErrSessionNotFound or ErrSessionExpired when the token does not identify a
// live session; callers treat both as an anonymous request.
func (m *Manager) Validate(ctx context.Context, token string) (*models.Principal, error) {
	p, err := m.validate(ctx, token)
	telemetry.SessionValidationsTotal.WithLabelValues(validationResult(err)).Inc()
	return p, err
}

func (m *Manager) validate(ctx context.Context, token string) (*models.Principal, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	hash := auth.HashToken(token)
	now := m.now()

	cached, err := m.cache.Get(ctx, hash)
	switch {
	case err == nil && now.Before(cached.ExpiresAt):
		return cached, nil
	case err != nil && !errors.Is(err, ErrCacheMiss):
		slog.Warn("session cache read failed", "error", err)
	}

	rows, err := m.sessions.ListByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	var session *models.Session
	for _, s := range rows {
		if !s.IsExpired(now) {
			session = s
			break
		}
	}
	if session == nil {
		if len(rows) > 0 {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionNotFound
	}

	user, err := m.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.IsDeleted() {
		return nil, ErrSessionNotFound
	}

	p := &models.Principal{
		User:      *user,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}
	if session.ActiveOrganizationID != nil {
		member, err := m.members.GetMember(ctx, *session.ActiveOrganizationID, user.ID)
		if err != nil {
			return nil, err
		}
		if member != nil {
			p.OrganizationID = member.OrganizationID
			p.Role = member.Role
		}
	}

	ttl := session.ExpiresAt.Sub(now)
	if m.opts.CacheTTL < ttl {
		ttl = m.opts.CacheTTL
	}
	if err := m.cache.Set(ctx, hash, p, ttl); err != nil {
		slog.Warn("session cache write failed", "error", err)
	}
	return p, nil
}

// Revoke deletes the session behind token. Unknown tokens are not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash := auth.HashToken(token)
	if _, err := m.sessions.DeleteByTokenHash(ctx, hash); err != nil {
		return err
	}
	m.evict(ctx, hash)
	return nil
}

// RevokeUser deletes every session of userID and returns how many were removed.
func (m *Manager) RevokeUser(ctx context.Context, userID string) (int, error) {
	hashes, err := m.sessions.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	m.evict(ctx, hashes...)
	return len(hashes), nil
}

// InvalidateUser drops cached principals of userID so the next request
// re-reads memberships. Sessions stay valid.
func (m *Manager) InvalidateUser(ctx context.Context, userID string) error {
	hashes, err := m.sessions.ListTokenHashesByUser(ctx, userID)
	if err != nil {
		return err
	}
	m.evict(ctx, hashes...)
	return nil
}

// SwitchOrganization makes orgID the active organization of the principal's
// session. The user must be a member of orgID.
func (m *Manager) SwitchOrganization(ctx context.Context, p *models.Principal, orgID string) (*models.Principal, error) {
	member, err := m.members.GetMember(ctx, orgID, p.User.ID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotMember
	}
	if err := m.sessions.SetActiveOrganization(ctx, p.SessionID, &orgID); err != nil {
		return nil, err
	}
	if err := m.InvalidateUser(ctx, p.User.ID); err != nil {
		slog.Warn("session cache eviction failed", "user_id", p.User.ID, "error", err)
	}

	next := *p
	next.OrganizationID = member.OrganizationID
	next.Role = member.Role
	return &next, nil
}

func (m *Manager) evict(ctx context.Context, hashes ...string) {
	if len(hashes) == 0 {
		return
	}
	if err := m.cache.Delete(ctx, hashes...); err != nil {
		slog.Warn("session cache eviction failed", "count", len(hashes), "error", err)
	}
}

func validationResult(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, ErrSessionExpired):
		return "expired"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	}
	return "error"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
