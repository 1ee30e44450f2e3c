package models

// PlatformStats are the platform-wide counts shown to platform administrators.
type PlatformStats struct {
	Users                  int64 `db:"users" json:"users"`
	DeletedUsers           int64 `db:"deleted_users" json:"deleted_users"`
	Organizations          int64 `db:"organizations" json:"organizations"`
	SuspendedOrganizations int64 `db:"suspended_organizations" json:"suspended_organizations"`
	Memberships            int64 `db:"memberships" json:"memberships"`
	ActiveSessions         int64 `db:"active_sessions" json:"active_sessions"`
	PendingInvitations     int64 `db:"pending_invitations" json:"pending_invitations"`
}
