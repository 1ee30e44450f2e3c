// Package oidc implements auth.Provider for any OpenID Connect issuer. It
// handles discovery, code exchange, ID token verification and claims mapping.
package oidc

import (
	"context"
	"fmt"

	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider wraps a discovered OIDC issuer
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	config   *oauth2.Config
	orgClaim string
}

var _ auth.Provider = (*OIDCProvider)(nil)

// NewOIDCProvider discovers the issuer and prepares the OAuth2 client. ctx
// bounds the discovery request.
func NewOIDCProvider(ctx context.Context, cfg *config.OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client secret is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	return &OIDCProvider{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		orgClaim: cfg.OrganizationClaim,
	}, nil
}

// Name implements auth.Provider.
func (p *OIDCProvider) Name() string { return "oidc" }

// AuthorizationURL implements auth.Provider.
func (p *OIDCProvider) AuthorizationURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// AuthenticateWithCode implements auth.Provider: it exchanges the code,
// verifies the returned ID token and maps its claims.
func (p *OIDCProvider) AuthenticateWithCode(ctx context.Context, code string) (*auth.Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange code for token: %w", auth.ErrAuthenticationFailed, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: token response has no id_token", auth.ErrAuthenticationFailed)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to verify ID token: %w", auth.ErrAuthenticationFailed, err)
	}

	identity, err := identityFromClaims(idToken, p.orgClaim)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrAuthenticationFailed, err)
	}
	identity.AccessToken = token.AccessToken
	identity.RefreshToken = token.RefreshToken
	return identity, nil
}

// identityFromClaims maps standard claims onto an Identity. orgClaim names an
// optional string claim holding the provider organization id.
func identityFromClaims(idToken *oidc.IDToken, orgClaim string) (*auth.Identity, error) {
	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("ID token missing 'sub' claim")
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("ID token missing 'email' claim")
	}

	identity := &auth.Identity{
		ExternalID:      claims.Sub,
		Email:           claims.Email,
		FirstName:       claims.GivenName,
		LastName:        claims.FamilyName,
		ProfileImageURL: claims.Picture,
		EmailVerified:   claims.EmailVerified,
	}
	// Issuers without given/family names still carry "name".
	if identity.FirstName == "" && identity.LastName == "" {
		identity.FirstName = claims.Name
	}

	if orgClaim != "" {
		var raw map[string]interface{}
		if err := idToken.Claims(&raw); err == nil {
			if s, ok := raw[orgClaim].(string); ok {
				identity.OrganizationID = s
			}
		}
	}
	return identity, nil
}
