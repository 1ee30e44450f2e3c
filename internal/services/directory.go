package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aragroup/ara-platform/internal/apperrors"
	"github.com/aragroup/ara-platform/internal/audit"
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/telemetry"
)

// Directory event types delivered by the identity provider.
const (
	EventUserCreated         = "user.created"
	EventUserUpdated         = "user.updated"
	EventUserDeleted         = "user.deleted"
	EventOrganizationCreated = "organization.created"
	EventOrganizationUpdated = "organization.updated"
	EventOrganizationDeleted = "organization.deleted"
)

// DirectoryEvent is one webhook delivery.
type DirectoryEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type directoryUser struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	ProfilePictureURL string `json:"profile_picture_url"`
	EmailVerified     bool   `json:"email_verified"`
}

type directoryOrganization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DirectoryUserStore is the user persistence DirectoryService needs.
type DirectoryUserStore interface {
	UpsertUserByExternalID(ctx context.Context, profile models.ExternalProfile) (*models.User, bool, error)
	SoftDeleteUserByExternalID(ctx context.Context, externalID string) (string, error)
}

// DirectoryOrgStore is the organization persistence DirectoryService needs.
type DirectoryOrgStore interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpsertByExternalID(ctx context.Context, ext models.ExternalOrganization, slug string) (*models.Organization, bool, error)
	MarkDeletedByExternalID(ctx context.Context, externalID string) (bool, error)
}

// UserSessionRevoker deletes every session of a user.
type UserSessionRevoker interface {
	RevokeUser(ctx context.Context, userID string) (int, error)
}

// DirectoryService mirrors identity provider users and organizations into the
// local database.
type DirectoryService struct {
	users    DirectoryUserStore
	orgs     DirectoryOrgStore
	sessions UserSessionRevoker
	recorder *audit.Recorder
}

// NewDirectoryService creates a DirectoryService.
func NewDirectoryService(users DirectoryUserStore, orgs DirectoryOrgStore, sessions UserSessionRevoker, recorder *audit.Recorder) *DirectoryService {
	return &DirectoryService{users: users, orgs: orgs, sessions: sessions, recorder: recorder}
}

// Apply processes one event. It reports whether the event type is handled;
// unknown events are logged and ignored. Payloads that cannot be decoded
// return an Invalid error.
func (s *DirectoryService) Apply(ctx context.Context, evt DirectoryEvent) (bool, error) {
	handled, err := s.apply(ctx, evt)

	label, outcome := evt.Event, "applied"
	switch {
	case !handled:
		label, outcome = "unknown", "ignored"
	case err != nil:
		outcome = "failed"
	}
	telemetry.WebhookEventsTotal.WithLabelValues(label, outcome).Inc()
	return handled, err
}

func (s *DirectoryService) apply(ctx context.Context, evt DirectoryEvent) (bool, error) {
	switch evt.Event {
	case EventUserCreated, EventUserUpdated:
		u := &directoryUser{}
		if err := decodeData(evt, u); err != nil {
			return true, err
		}
		return true, s.upsertUser(ctx, u)

	case EventUserDeleted:
		u := &directoryUser{}
		if err := decodeData(evt, u); err != nil {
			return true, err
		}
		return true, s.deleteUser(ctx, u.ID)

	case EventOrganizationCreated, EventOrganizationUpdated:
		o := &directoryOrganization{}
		if err := decodeData(evt, o); err != nil {
			return true, err
		}
		return true, s.upsertOrganization(ctx, o)

	case EventOrganizationDeleted:
		o := &directoryOrganization{}
		if err := decodeData(evt, o); err != nil {
			return true, err
		}
		return true, s.deleteOrganization(ctx, o.ID)
	}

	slog.Info("ignoring directory event", "event", evt.Event)
	return false, nil
}

func (s *DirectoryService) upsertUser(ctx context.Context, u *directoryUser) error {
	if u.Email == "" {
		return apperrors.Invalid("user event is missing email")
	}
	user, inserted, err := s.users.UpsertUserByExternalID(ctx, models.ExternalProfile{
		ExternalID:      u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		ProfileImageURL: u.ProfilePictureURL,
		EmailVerified:   u.EmailVerified,
	})
	if err != nil {
		return err
	}
	slog.Info("synced directory user", "user_id", user.ID, "external_id", u.ID, "inserted", inserted)
	return nil
}

func (s *DirectoryService) deleteUser(ctx context.Context, externalID string) error {
	userID, err := s.users.SoftDeleteUserByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if userID == "" {
		slog.Info("directory user already absent", "external_id", externalID)
		return nil
	}
	revoked, err := s.sessions.RevokeUser(ctx, userID)
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.Event{
		Action:       audit.ActionDirectoryUserDeleted,
		ResourceType: "user",
		ResourceID:   userID,
		Metadata:     map[string]interface{}{"external_id": externalID, "sessions_revoked": revoked},
	})
	return nil
}

func (s *DirectoryService) upsertOrganization(ctx context.Context, o *directoryOrganization) error {
	if o.Name == "" {
		return apperrors.Invalid("organization event is missing name")
	}
	slug, err := availableSlug(ctx, s.orgs, Slugify(o.Name, "organization"))
	if err != nil {
		return err
	}
	org, inserted, err := s.orgs.UpsertByExternalID(ctx, models.ExternalOrganization{ExternalID: o.ID, Name: o.Name}, slug)
	if err != nil {
		return err
	}
	slog.Info("synced directory organization", "organization_id", org.ID, "external_id", o.ID, "inserted", inserted)
	return nil
}

func (s *DirectoryService) deleteOrganization(ctx context.Context, externalID string) error {
	found, err := s.orgs.MarkDeletedByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if !found {
		slog.Info("directory organization not found", "external_id", externalID)
		return nil
	}
	s.recorder.Record(ctx, audit.Event{
		Action:       audit.ActionDirectoryOrgDeleted,
		ResourceType: "organization",
		Metadata:     map[string]interface{}{"external_id": externalID},
	})
	return nil
}

type directoryRecord interface {
	externalID() string
}

func (u *directoryUser) externalID() string         { return u.ID }
func (o *directoryOrganization) externalID() string { return o.ID }

func decodeData(evt DirectoryEvent, v directoryRecord) error {
	if len(evt.Data) == 0 {
		return apperrors.Newf(apperrors.KindInvalid, "%s event has no data", evt.Event)
	}
	if err := json.Unmarshal(evt.Data, v); err != nil {
		return apperrors.Wrap(apperrors.KindInvalid, err, "malformed "+evt.Event+" data")
	}
	if v.externalID() == "" {
		return apperrors.Newf(apperrors.KindInvalid, "%s event is missing id", evt.Event)
	}
	return nil
}
