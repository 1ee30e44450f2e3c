// Package services implements the business rules that span several
// repositories: sign-in reconciliation, directory synchronisation, membership
// management and invitations. Every rule violation is returned as an
// apperrors kind so handlers can map it to a status code.
package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/aragroup/ara-platform/internal/apperrors"
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/google/uuid"
)

// Shared rule violations.
var (
	ErrOrganizationNotFound = apperrors.NotFound("organization not found")
	ErrInsufficientRole     = apperrors.Unauthorized("insufficient role")
)

// MembershipReader loads one membership. It returns nil, nil when the user is
// not a member.
type MembershipReader interface {
	GetMember(ctx context.Context, orgID, userID string) (*models.Membership, error)
}

// SessionInvalidator drops cached sessions so membership changes take effect
// on the next request. *sessions.Manager satisfies it.
type SessionInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// requireRole returns the caller's membership in orgID when it carries at
// least min. Non-members get ErrOrganizationNotFound so organization ids are
// not disclosed.
func requireRole(ctx context.Context, members MembershipReader, orgID, userID string, min models.Role) (*models.Membership, error) {
	m, err := members.GetMember(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrOrganizationNotFound
	}
	if !m.Role.AtLeast(min) {
		return nil, ErrInsufficientRole
	}
	return m, nil
}

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)
	slugPattern      = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)
)

const maxSlugLength = 48

// Slugify lower-cases s and collapses every run of characters outside
// [a-z0-9] into one hyphen. It returns fallback when nothing is left.
func Slugify(s, fallback string) string {
	slug := slugInvalidChars.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return fallback
	}
	return slug
}

// ValidSlug reports whether s is usable as an organization slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// slugSuffix returns a short random suffix for colliding slugs.
func slugSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
}

// maxSlugAttempts bounds the suffix retries when a derived slug is taken.
const maxSlugAttempts = 5

type slugChecker interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// availableSlug returns base when it is free, else base with a random suffix.
func availableSlug(ctx context.Context, orgs slugChecker, base string) (string, error) {
	candidate := base
	for range maxSlugAttempts {
		exists, err := orgs.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + slugSuffix()
	}
	return "", apperrors.Conflict("could not find a free organization slug")
}
