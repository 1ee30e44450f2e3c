// Package models - organization.go defines the Organization model representing a tenant
// with a URL-safe slug, optional division subdomain, branding and lifecycle status.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// OrganizationStatus is the lifecycle state of an organization
type OrganizationStatus string

const (
	OrganizationStatusActive    OrganizationStatus = "active"
	OrganizationStatusSuspended OrganizationStatus = "suspended"
	OrganizationStatusDeleted   OrganizationStatus = "deleted"
)

// ParseOrganizationStatus validates s against the known statuses.
func ParseOrganizationStatus(s string) (OrganizationStatus, error) {
	switch st := OrganizationStatus(s); st {
	case OrganizationStatusActive, OrganizationStatusSuspended, OrganizationStatusDeleted:
		return st, nil
	}
	return "", fmt.Errorf("invalid organization status %q", s)
}

// Scan implements sql.Scanner.
func (s *OrganizationStatus) Scan(src any) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	parsed, err := ParseOrganizationStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer.
func (s OrganizationStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Plan is the commercial tier of an organization
type Plan string

const (
	PlanFree       Plan = "free"
	PlanTeam       Plan = "team"
	PlanEnterprise Plan = "enterprise"
)

// ParsePlan validates s against the known plans.
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(s); p {
	case PlanFree, PlanTeam, PlanEnterprise:
		return p, nil
	}
	return "", fmt.Errorf("invalid plan %q", s)
}

// Scan implements sql.Scanner.
func (p *Plan) Scan(src any) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	parsed, err := ParsePlan(v)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Value implements driver.Valuer.
func (p Plan) Value() (driver.Value, error) {
	return string(p), nil
}

// Organization represents a tenant on the platform
type Organization struct {
	ID           string             `json:"id"`
	ExternalID   *string            `json:"-"` // identity provider organization id, unique when set
	Name         string             `json:"name"`
	Slug         string             `json:"slug"`
	Subdomain    *string            `json:"subdomain,omitempty"`
	LogoKey      *string            `json:"-"`
	PrimaryColor *string            `json:"primary_color,omitempty"`
	Status       OrganizationStatus `json:"status"`
	Plan         Plan               `json:"plan"`
	IsPersonal   bool               `json:"is_personal"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// IsActive reports whether the organization accepts sign-ins and changes.
func (o *Organization) IsActive() bool {
	return o.Status == OrganizationStatusActive
}

// HasLogo reports whether a branding logo has been uploaded.
func (o *Organization) HasLogo() bool {
	return o.LogoKey != nil && *o.LogoKey != ""
}

// ExternalOrganization is the subset of organization attributes owned by the
// identity provider, as delivered by directory webhooks.
type ExternalOrganization struct {
	ExternalID string
	Name       string
}

func scanString(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("unexpected NULL enum value")
	}
	return "", fmt.Errorf("unsupported enum source type %T", src)
}
