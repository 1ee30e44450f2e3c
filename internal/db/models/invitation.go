// Package models - invitation.go defines organization invitations and their
// one-way status transitions.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// InvitationTTL is the fixed lifetime of an invitation.
const InvitationTTL = 7 * 24 * time.Hour

// InvitationStatus represents the status of an invitation
type InvitationStatus string

const (
	InvitationStatusPending   InvitationStatus = "pending"
	InvitationStatusAccepted  InvitationStatus = "accepted"
	InvitationStatusRejected  InvitationStatus = "rejected"
	InvitationStatusCancelled InvitationStatus = "cancelled"
)

// ParseInvitationStatus validates s against the known statuses.
func ParseInvitationStatus(s string) (InvitationStatus, error) {
	switch st := InvitationStatus(s); st {
	case InvitationStatusPending, InvitationStatusAccepted, InvitationStatusRejected, InvitationStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("invalid invitation status %q", s)
}

// IsTerminal reports whether no further transition is allowed.
func (s InvitationStatus) IsTerminal() bool {
	return s != InvitationStatusPending
}

// CanTransition reports whether s may move to next. Only pending invitations
// move, and only to a terminal status.
func (s InvitationStatus) CanTransition(next InvitationStatus) bool {
	if s != InvitationStatusPending {
		return false
	}
	switch next {
	case InvitationStatusAccepted, InvitationStatusRejected, InvitationStatusCancelled:
		return true
	}
	return false
}

// UnmarshalText rejects unknown statuses during decoding.
func (s *InvitationStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseInvitationStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Scan implements sql.Scanner.
func (s *InvitationStatus) Scan(src any) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	return s.UnmarshalText([]byte(v))
}

// Value implements driver.Valuer.
func (s InvitationStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Invitation represents an invitation for an email address to join an organization
type Invitation struct {
	ID             string           `db:"id" json:"id"`
	OrganizationID string           `db:"organization_id" json:"organization_id"`
	Email          string           `db:"email" json:"email"`
	Role           Role             `db:"role" json:"role"`
	InviterID      *string          `db:"inviter_id" json:"inviter_id,omitempty"`
	Status         InvitationStatus `db:"status" json:"status"`
	ExpiresAt      time.Time        `db:"expires_at" json:"expires_at"`
	RespondedAt    *time.Time       `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`

	// Joined fields (not in DB)
	OrganizationName string `db:"organization_name" json:"organization_name,omitempty"`
}

// IsExpired reports whether the invitation is past its expiry at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
