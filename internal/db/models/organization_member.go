// Package models - organization_member.go defines the closed Role enumeration and
// the membership records linking users to organizations.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Role is a member's role within an organization
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Roles lists every valid role, highest privilege first.
var Roles = []Role{RoleOwner, RoleAdmin, RoleMember}

// ParseRole validates s against the known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOwner, RoleAdmin, RoleMember:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q (must be owner, admin, or member)", s)
}

// Rank orders roles by privilege: owner 3, admin 2, member 1, anything else 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// AtLeast reports whether r carries at least the privilege of min.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// UnmarshalText rejects unknown roles during JSON decoding.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Scan implements sql.Scanner.
func (r *Role) Scan(src any) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	return r.UnmarshalText([]byte(v))
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	return string(r), nil
}

// Membership represents a user's membership in an organization
type Membership struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MembershipWithUser includes user details for member listings
type MembershipWithUser struct {
	Membership
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`
}

// UserMembership includes organization details for a user's membership
type UserMembership struct {
	OrganizationID   string    `json:"organization_id"`
	OrganizationName string    `json:"organization_name"`
	OrganizationSlug string    `json:"organization_slug"`
	IsPersonal       bool      `json:"is_personal"`
	Role             Role      `json:"role"`
	CreatedAt        time.Time `json:"created_at"`
}
