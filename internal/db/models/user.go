// Package models - user.go defines the User model mirrored from the identity
// provider, keyed locally by UUID and remotely by the provider's user id.
package models

import "time"

// User represents a person who can sign in to the platform
type User struct {
	ID                     string     `json:"id"`
	ExternalID             *string    `json:"-"` // identity provider user id, unique when set
	Email                  string     `json:"email"`
	Name                   string     `json:"name"`
	ProfileImageURL        *string    `json:"profile_image_url,omitempty"`
	EmailVerified          bool       `json:"email_verified"`
	IsPlatformAdmin        bool       `json:"is_platform_admin"`
	PersonalOrganizationID *string    `json:"personal_organization_id,omitempty"`
	DeletedAt              *time.Time `json:"-"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// IsDeleted reports whether the user has been soft-deleted.
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// ExternalProfile is the subset of user attributes owned by the identity
// provider. Sign-in and directory webhooks both upsert through it.
type ExternalProfile struct {
	ExternalID      string
	Email           string
	FirstName       string
	LastName        string
	ProfileImageURL string
	EmailVerified   bool
}

// DisplayName joins first and last name, falling back to the email address.
func (p ExternalProfile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	}
	return p.Email
}
