package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aragroup/ara-platform/internal/db/models"
)

// Audit actions.
const (
	ActionSignedIn             = "user.signed_in"
	ActionSignedOut            = "user.signed_out"
	ActionOrganizationCreated  = "organization.created"
	ActionOrganizationUpdated  = "organization.updated"
	ActionOrganizationSwitched = "organization.switched"
	ActionOrganizationStatus   = "organization.status_changed"
	ActionOrganizationPlan     = "organization.plan_changed"
	ActionLogoUpdated          = "organization.logo_updated"
	ActionMemberRoleChanged    = "member.role_changed"
	ActionMemberRemoved        = "member.removed"
	ActionInvitationCreated    = "invitation.created"
	ActionInvitationAccepted   = "invitation.accepted"
	ActionInvitationRejected   = "invitation.rejected"
	ActionInvitationCancelled  = "invitation.cancelled"
	ActionDirectoryUserDeleted = "directory.user_deleted"
	ActionDirectoryOrgDeleted  = "directory.organization_deleted"
	ActionAccessDenied         = "access.denied"
)

const recordTimeout = 5 * time.Second

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	requestID string
}

// WithRequest attaches the client IP and request id to ctx. Record fills them
// into events that leave them empty.
func WithRequest(ctx context.Context, ip, requestID string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{ip: ip, requestID: requestID})
}

// Store persists audit rows. *repositories.AuditRepository satisfies it.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Event is one auditable occurrence.
type Event struct {
	Action         string
	UserID         string
	OrganizationID string
	ResourceType   string
	ResourceID     string
	IPAddress      string
	RequestID      string
	StatusCode     int
	Metadata       map[string]interface{}
}

// Recorder writes events to the store and ships them. A nil *Recorder
// discards events.
type Recorder struct {
	store   Store
	shipper Shipper
	now     func() time.Time
}

// NewRecorder creates a Recorder. shipper may be nil.
func NewRecorder(store Store, shipper Shipper) *Recorder {
	return &Recorder{store: store, shipper: shipper, now: time.Now}
}

// Record persists e. Failures are logged, never returned: an audit outage
// must not fail the audited operation. The write outlives ctx cancellation.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r == nil {
		return
	}
	if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		if e.IPAddress == "" {
			e.IPAddress = info.ip
		}
		if e.RequestID == "" {
			e.RequestID = info.requestID
		}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	row := &models.AuditLog{
		Action:         e.Action,
		UserID:         optional(e.UserID),
		OrganizationID: optional(e.OrganizationID),
		ResourceType:   optional(e.ResourceType),
		ResourceID:     optional(e.ResourceID),
		IPAddress:      optional(e.IPAddress),
		Metadata:       e.Metadata,
	}
	if r.store != nil {
		if err := r.store.CreateAuditLog(ctx, row); err != nil {
			slog.Error("failed to write audit log", "action", e.Action, "error", err)
		}
	}

	if r.shipper == nil {
		return
	}
	ts := row.CreatedAt
	if ts.IsZero() {
		ts = r.now()
	}
	entry := &LogEntry{
		Timestamp:      ts,
		Action:         e.Action,
		UserID:         e.UserID,
		OrganizationID: e.OrganizationID,
		ResourceType:   e.ResourceType,
		ResourceID:     e.ResourceID,
		IPAddress:      e.IPAddress,
		RequestID:      e.RequestID,
		StatusCode:     e.StatusCode,
		Metadata:       e.Metadata,
	}
	if err := r.shipper.Ship(ctx, entry); err != nil {
		slog.Warn("failed to ship audit log", "action", e.Action, "error", err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
