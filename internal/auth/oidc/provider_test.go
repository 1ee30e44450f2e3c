package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const testIssuer = "https://issuer.example.com"

// newTestProvider builds an OIDCProvider whose verifier trusts key and whose
// token endpoint is tokenURL, without any discovery request.
func newTestProvider(key *rsa.PrivateKey, tokenURL string) *OIDCProvider {
	return &OIDCProvider{
		verifier: oidc.NewVerifier(testIssuer,
			&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
			&oidc.Config{ClientID: "test-client"}),
		config: &oauth2.Config{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			RedirectURL:  "http://localhost/api/auth/callback",
			Scopes:       []string{"openid"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://issuer.example.com/auth",
				TokenURL: tokenURL,
			},
		},
		orgClaim: "org_id",
	}
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	base := jwt.MapClaims{
		"iss": testIssuer,
		"aud": "test-client",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, base).SignedString(key)
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return signed
}

func tokenServer(t *testing.T, idToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{
			"access_token":  "provider-access",
			"refresh_token": "provider-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		}
		if idToken != "" {
			resp["id_token"] = idToken
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return key
}

func TestNewOIDCProvider_MissingFields(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.OIDCConfig
	}{
		{"issuer", config.OIDCConfig{ClientID: "c", ClientSecret: "s"}},
		{"client id", config.OIDCConfig{IssuerURL: "https://example.com", ClientSecret: "s"}},
		{"client secret", config.OIDCConfig{IssuerURL: "https://example.com", ClientID: "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewOIDCProvider(context.Background(), &tc.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestAuthorizationURL(t *testing.T) {
	p := newTestProvider(newKey(t), "http://127.0.0.1:1/token")
	u := p.AuthorizationURL("state-123")
	for _, want := range []string{"state=state-123", "client_id=test-client", "response_type=code"} {
		if !strings.Contains(u, want) {
			t.Errorf("AuthorizationURL = %q, want to contain %s", u, want)
		}
	}
}

func TestAuthenticateWithCode_Success(t *testing.T) {
	key := newKey(t)
	idToken := signIDToken(t, key, jwt.MapClaims{
		"sub":            "oidc|123",
		"email":          "ada@example.com",
		"email_verified": true,
		"given_name":     "Ada",
		"family_name":    "Lovelace",
		"picture":        "https://img.example/ada.png",
		"org_id":         "org_ext_1",
	})
	p := newTestProvider(key, tokenServer(t, idToken).URL)

	id, err := p.AuthenticateWithCode(context.Background(), "code")
	if err != nil {
		t.Fatalf("AuthenticateWithCode() error: %v", err)
	}
	if id.ExternalID != "oidc|123" || id.Email != "ada@example.com" || !id.EmailVerified {
		t.Errorf("identity = %+v", id)
	}
	if id.Name() != "Ada Lovelace" {
		t.Errorf("Name() = %q", id.Name())
	}
	if id.OrganizationID != "org_ext_1" {
		t.Errorf("OrganizationID = %q", id.OrganizationID)
	}
	if id.AccessToken != "provider-access" || id.RefreshToken != "provider-refresh" {
		t.Errorf("tokens = %q / %q", id.AccessToken, id.RefreshToken)
	}
}

func TestAuthenticateWithCode_NameFallback(t *testing.T) {
	key := newKey(t)
	idToken := signIDToken(t, key, jwt.MapClaims{"sub": "s", "email": "e@example.com", "name": "Grace Hopper"})
	p := newTestProvider(key, tokenServer(t, idToken).URL)

	id, err := p.AuthenticateWithCode(context.Background(), "code")
	if err != nil {
		t.Fatalf("AuthenticateWithCode() error: %v", err)
	}
	if id.Name() != "Grace Hopper" {
		t.Errorf("Name() = %q", id.Name())
	}
}

func TestAuthenticateWithCode_Failures(t *testing.T) {
	key := newKey(t)
	other := newKey(t)

	cases := []struct {
		name     string
		tokenURL func(t *testing.T) string
	}{
		{"unreachable token endpoint", func(t *testing.T) string { return "http://127.0.0.1:1/token" }},
		{"no id token", func(t *testing.T) string { return tokenServer(t, "").URL }},
		{"wrong signing key", func(t *testing.T) string {
			return tokenServer(t, signIDToken(t, other, jwt.MapClaims{"sub": "s", "email": "e@example.com"})).URL
		}},
		{"missing email", func(t *testing.T) string {
			return tokenServer(t, signIDToken(t, key, jwt.MapClaims{"sub": "s"})).URL
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(key, tc.tokenURL(t))
			_, err := p.AuthenticateWithCode(context.Background(), "code")
			if !errors.Is(err, auth.ErrAuthenticationFailed) {
				t.Errorf("error = %v, want ErrAuthenticationFailed", err)
			}
		})
	}
}
