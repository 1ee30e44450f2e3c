// Package models - session.go defines the server-side Session record and the
// Principal resolved from it for each request.
package models

import "time"

// Session is a server-side login session. Only the SHA-256 hash of the bearer
// token is stored.
type Session struct {
	ID                   string
	TokenHash            string
	UserID               string
	ActiveOrganizationID *string
	ExpiresAt            time.Time
	UserAgent            *string
	IPAddress            *string
	ProviderAccessToken  *string // sealed with crypto.TokenCipher
	ProviderRefreshToken *string // sealed with crypto.TokenCipher
	CreatedAt            time.Time
}

// IsExpired reports whether the session is past its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Principal is the authenticated caller: the user plus their active
// organization and role in it. OrganizationID and Role are empty when the
// session has no active organization.
type Principal struct {
	User           User      `json:"user"`
	SessionID      string    `json:"-"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Role           Role      `json:"role,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// HasOrganization reports whether an active organization is resolved.
func (p *Principal) HasOrganization() bool {
	return p.OrganizationID != ""
}
