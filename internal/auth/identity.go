// Package auth holds the identity provider abstraction and the token
// primitives used by the sign-in flow: session tokens, the OAuth state
// parameter, webhook signatures and invitation tokens.
package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrAuthenticationFailed is returned by providers when an authorization code
// cannot be exchanged for a user.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Identity is the user returned by an identity provider after a successful
// code exchange.
type Identity struct {
	ExternalID      string
	Email           string
	FirstName       string
	LastName        string
	ProfileImageURL string
	EmailVerified   bool
	// OrganizationID is the provider organization the user signed in to, if any.
	OrganizationID string
	AccessToken    string
	RefreshToken   string
}

// Name returns the display name, falling back to the email address.
func (i *Identity) Name() string {
	name := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if name == "" {
		return i.Email
	}
	return name
}

// Provider is an OAuth identity provider. Implementations are injected into
// the handlers that need them.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// AuthorizationURL returns the URL the browser is sent to for sign-in.
	AuthorizationURL(state string) string
	// AuthenticateWithCode exchanges an authorization code for the user.
	AuthenticateWithCode(ctx context.Context, code string) (*Identity, error)
}
