// Package auth - jwt.go signs and verifies invitation acceptance tokens. An
// invitation token is an HS256 JWT naming the invitation and the invited email
// and expiring with the invitation itself.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const invitationIssuer = "ara-platform"

// MinSigningSecretLength is the shortest accepted signing secret.
const MinSigningSecretLength = 32

// Invitation token failures.
var (
	ErrInvitationTokenInvalid = errors.New("invalid invitation token")
	ErrInvitationTokenExpired = errors.New("invitation token expired")
)

// InvitationClaims represents the invitation token claims
type InvitationClaims struct {
	InvitationID string `json:"invitation_id"`
	Email        string `json:"email"`
	jwt.RegisteredClaims
}

// InvitationSigner issues and verifies invitation tokens.
type InvitationSigner struct {
	secret []byte
}

// NewInvitationSigner returns a signer for secret.
func NewInvitationSigner(secret string) (*InvitationSigner, error) {
	if len(secret) < MinSigningSecretLength {
		return nil, fmt.Errorf("invitation signing secret must be at least %d characters", MinSigningSecretLength)
	}
	return &InvitationSigner{secret: []byte(secret)}, nil
}

// Sign creates a token for the invitation valid until expiresAt.
func (s *InvitationSigner) Sign(invitationID, email string, expiresAt time.Time) (string, error) {
	claims := &InvitationClaims{
		InvitationID: invitationID,
		Email:        strings.ToLower(email),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    invitationIssuer,
			Subject:   invitationID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign invitation token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and returns its claims.
func (s *InvitationSigner) Verify(tokenString string) (*InvitationClaims, error) {
	claims := &InvitationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(invitationIssuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrInvitationTokenExpired
		}
		return nil, ErrInvitationTokenInvalid
	}
	if !token.Valid || claims.InvitationID == "" {
		return nil, ErrInvitationTokenInvalid
	}
	return claims, nil
}
