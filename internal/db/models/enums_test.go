package models

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Role
// ---------------------------------------------------------------------------

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(string(r))
		if err != nil || got != r {
			t.Errorf("ParseRole(%q) = %q, %v", r, got, err)
		}
	}
	for _, bad := range []string{"", "Owner", "superadmin", "guest"} {
		if _, err := ParseRole(bad); err == nil {
			t.Errorf("ParseRole(%q) expected error", bad)
		}
	}
}

func TestRole_AtLeast(t *testing.T) {
	tests := []struct {
		role Role
		min  Role
		want bool
	}{
		{RoleOwner, RoleAdmin, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleMember, RoleAdmin, false},
		{RoleMember, RoleMember, true},
		{Role("bogus"), RoleMember, false},
	}
	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.min); got != tt.want {
			t.Errorf("%q.AtLeast(%q) = %v, want %v", tt.role, tt.min, got, tt.want)
		}
	}
}

func TestRole_JSONRejectsUnknown(t *testing.T) {
	var body struct {
		Role Role `json:"role"`
	}
	if err := json.Unmarshal([]byte(`{"role":"admin"}`), &body); err != nil {
		t.Fatalf("Unmarshal(admin) error: %v", err)
	}
	if body.Role != RoleAdmin {
		t.Errorf("Role = %q, want admin", body.Role)
	}
	if err := json.Unmarshal([]byte(`{"role":"root"}`), &body); err == nil {
		t.Error("Unmarshal(root) expected error")
	}
}

func TestRole_Scan(t *testing.T) {
	var r Role
	if err := r.Scan([]byte("member")); err != nil || r != RoleMember {
		t.Errorf("Scan([]byte) = %q, %v", r, err)
	}
	if err := r.Scan("owner"); err != nil || r != RoleOwner {
		t.Errorf("Scan(string) = %q, %v", r, err)
	}
	if err := r.Scan("viewer"); err == nil {
		t.Error("Scan(viewer) expected error")
	}
	if err := r.Scan(nil); err == nil {
		t.Error("Scan(nil) expected error")
	}
	if err := r.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}
}

// ---------------------------------------------------------------------------
// InvitationStatus
// ---------------------------------------------------------------------------

func TestInvitationStatus_CanTransition(t *testing.T) {
	all := []InvitationStatus{
		InvitationStatusPending,
		InvitationStatusAccepted,
		InvitationStatusRejected,
		InvitationStatusCancelled,
	}
	for _, from := range all {
		for _, to := range all {
			want := from == InvitationStatusPending && to != InvitationStatusPending
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestInvitationStatus_IsTerminal(t *testing.T) {
	if InvitationStatusPending.IsTerminal() {
		t.Error("pending reported terminal")
	}
	for _, s := range []InvitationStatus{InvitationStatusAccepted, InvitationStatusRejected, InvitationStatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s not reported terminal", s)
		}
	}
}

func TestParseInvitationStatus(t *testing.T) {
	if _, err := ParseInvitationStatus("expired"); err == nil {
		t.Error("ParseInvitationStatus(expired) expected error")
	}
	if s, err := ParseInvitationStatus("cancelled"); err != nil || s != InvitationStatusCancelled {
		t.Errorf("ParseInvitationStatus(cancelled) = %q, %v", s, err)
	}
}

// ---------------------------------------------------------------------------
// Organization enums
// ---------------------------------------------------------------------------

func TestOrganizationStatus_Scan(t *testing.T) {
	var s OrganizationStatus
	if err := s.Scan("deleted"); err != nil || s != OrganizationStatusDeleted {
		t.Errorf("Scan(deleted) = %q, %v", s, err)
	}
	if err := s.Scan("archived"); err == nil {
		t.Error("Scan(archived) expected error")
	}
	o := &Organization{Status: s}
	if o.IsActive() {
		t.Error("deleted organization reported active")
	}
}

func TestParsePlan(t *testing.T) {
	if _, err := ParsePlan("gold"); err == nil {
		t.Error("ParsePlan(gold) expected error")
	}
	if p, err := ParsePlan("team"); err != nil || p != PlanTeam {
		t.Errorf("ParsePlan(team) = %q, %v", p, err)
	}
}
