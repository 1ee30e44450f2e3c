package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/aragroup/ara-platform/internal/apperrors"
	"github.com/aragroup/ara-platform/internal/audit"
	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/db"
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/db/repositories"
)

// Invitation rule violations.
var (
	ErrInvitationNotFound   = apperrors.NotFound("invitation not found")
	ErrInvitationExpired    = apperrors.Expired("invitation has expired")
	ErrInvitationWrongEmail = apperrors.Unauthorized("invitation was sent to a different email address")
	ErrAlreadyMember        = apperrors.Conflict("user is already a member of this organization")
	ErrInvitationPending    = apperrors.Conflict("a pending invitation already exists for this email")
)

// InvitationStore is the persistence InvitationService needs.
// *repositories.InvitationRepository satisfies it.
type InvitationStore interface {
	Create(ctx context.Context, inv *models.Invitation) error
	GetByID(ctx context.Context, id string) (*models.Invitation, error)
	GetPendingByEmail(ctx context.Context, orgID, email string) (*models.Invitation, error)
	ListByOrganization(ctx context.Context, orgID string) ([]models.Invitation, error)
	ListPendingForEmail(ctx context.Context, email string, now time.Time) ([]models.Invitation, error)
	Transition(ctx context.Context, id string, to models.InvitationStatus) error
	Accept(ctx context.Context, inv *models.Invitation, userID string) error
}

// InvitationOrgStore is the organization persistence InvitationService needs.
// *repositories.OrganizationRepository satisfies it.
type InvitationOrgStore interface {
	MembershipReader
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

// UserLookup finds users by email.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// InvitationService issues and resolves organization invitations.
type InvitationService struct {
	invitations InvitationStore
	orgs        InvitationOrgStore
	users       UserLookup
	signer      *auth.InvitationSigner
	sessions    SessionInvalidator
	recorder    *audit.Recorder
	now         func() time.Time
}

// NewInvitationService creates an InvitationService.
func NewInvitationService(invitations InvitationStore, orgs InvitationOrgStore, users UserLookup, signer *auth.InvitationSigner, sessions SessionInvalidator, recorder *audit.Recorder) *InvitationService {
	return &InvitationService{
		invitations: invitations,
		orgs:        orgs,
		users:       users,
		signer:      signer,
		sessions:    sessions,
		recorder:    recorder,
		now:         time.Now,
	}
}

// Invite creates a pending invitation for email to join orgID with role and
// returns it with a signed acceptance token. The actor must be an admin; only
// owners may invite owners.
func (s *InvitationService) Invite(ctx context.Context, actor *models.User, orgID, email string, role models.Role) (*models.Invitation, string, error) {
	if role.Rank() == 0 {
		return nil, "", apperrors.Invalid("invalid role")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	actorMember, err := requireRole(ctx, s.orgs, orgID, actor.ID, models.RoleAdmin)
	if err != nil {
		return nil, "", err
	}
	if role == models.RoleOwner && actorMember.Role != models.RoleOwner {
		return nil, "", apperrors.Unauthorized("only owners can invite owners")
	}

	invitee, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if invitee != nil && !invitee.IsDeleted() {
		existing, err := s.orgs.GetMember(ctx, orgID, invitee.ID)
		if err != nil {
			return nil, "", err
		}
		if existing != nil {
			return nil, "", ErrAlreadyMember
		}
	}

	pending, err := s.invitations.GetPendingByEmail(ctx, orgID, email)
	if err != nil {
		return nil, "", err
	}
	if pending != nil {
		if !pending.IsExpired(s.now()) {
			return nil, "", ErrInvitationPending
		}
		// An expired invitation still holds the pending slot for this email.
		if err := s.invitations.Transition(ctx, pending.ID, models.InvitationStatusCancelled); err != nil && !errors.Is(err, repositories.ErrInvitationNotPending) {
			return nil, "", err
		}
	}

	inv := &models.Invitation{
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		InviterID:      &actor.ID,
		ExpiresAt:      s.now().Add(models.InvitationTTL),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		if db.IsUniqueViolation(err, "invitations_pending_email_key") {
			return nil, "", ErrInvitationPending
		}
		return nil, "", err
	}

	token, err := s.signer.Sign(inv.ID, inv.Email, inv.ExpiresAt)
	if err != nil {
		return nil, "", err
	}

	s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionInvitationCreated,
		UserID:         actor.ID,
		OrganizationID: orgID,
		ResourceType:   "invitation",
		ResourceID:     inv.ID,
		Metadata:       map[string]interface{}{"email": inv.Email, "role": string(role)},
	})
	return inv, token, nil
}

// ListForOrganization returns every invitation of orgID. Admins only.
func (s *InvitationService) ListForOrganization(ctx context.Context, actor *models.User, orgID string) ([]models.Invitation, error) {
	if _, err := requireRole(ctx, s.orgs, orgID, actor.ID, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.invitations.ListByOrganization(ctx, orgID)
}

// ListForUser returns the unexpired pending invitations addressed to user.
func (s *InvitationService) ListForUser(ctx context.Context, user *models.User) ([]models.Invitation, error) {
	return s.invitations.ListPendingForEmail(ctx, user.Email, s.now())
}

// Accept makes user a member through the invitation with id.
func (s *InvitationService) Accept(ctx context.Context, user *models.User, id string) (*models.Invitation, error) {
	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	if inv.Status != models.InvitationStatusPending {
		return nil, repositories.ErrInvitationNotPending
	}
	if inv.IsExpired(s.now()) {
		return nil, ErrInvitationExpired
	}
	if !strings.EqualFold(inv.Email, user.Email) {
		return nil, ErrInvitationWrongEmail
	}
	org, err := s.orgs.GetByID(ctx, inv.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org == nil || !org.IsActive() {
		return nil, ErrOrganizationNotFound
	}

	if err := s.invitations.Accept(ctx, inv, user.ID); err != nil {
		return nil, err
	}

	if s.sessions != nil {
		if err := s.sessions.InvalidateUser(ctx, user.ID); err != nil {
			slog.Warn("failed to invalidate cached sessions", "user_id", user.ID, "error", err)
		}
	}
	s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionInvitationAccepted,
		UserID:         user.ID,
		OrganizationID: inv.OrganizationID,
		ResourceType:   "invitation",
		ResourceID:     inv.ID,
		Metadata:       map[string]interface{}{"role": string(inv.Role)},
	})
	return inv, nil
}

// AcceptToken accepts the invitation named by a signed acceptance token.
func (s *InvitationService) AcceptToken(ctx context.Context, user *models.User, token string) (*models.Invitation, error) {
	claims, err := s.signer.Verify(token)
	switch {
	case errors.Is(err, auth.ErrInvitationTokenExpired):
		return nil, ErrInvitationExpired
	case err != nil:
		return nil, apperrors.Wrap(apperrors.KindInvalid, err, "invalid invitation token")
	}
	if !strings.EqualFold(claims.Email, user.Email) {
		return nil, ErrInvitationWrongEmail
	}
	return s.Accept(ctx, user, claims.InvitationID)
}

// Reject declines the invitation with id. Only the addressee may reject.
func (s *InvitationService) Reject(ctx context.Context, user *models.User, id string) (*models.Invitation, error) {
	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	if !strings.EqualFold(inv.Email, user.Email) {
		return nil, ErrInvitationWrongEmail
	}
	if err := s.transition(ctx, inv, models.InvitationStatusRejected); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionInvitationRejected,
		UserID:         user.ID,
		OrganizationID: inv.OrganizationID,
		ResourceType:   "invitation",
		ResourceID:     inv.ID,
	})
	return inv, nil
}

// Cancel withdraws a pending invitation of orgID. Admins only.
func (s *InvitationService) Cancel(ctx context.Context, actor *models.User, orgID, id string) (*models.Invitation, error) {
	if _, err := requireRole(ctx, s.orgs, orgID, actor.ID, models.RoleAdmin); err != nil {
		return nil, err
	}
	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.OrganizationID != orgID {
		return nil, ErrInvitationNotFound
	}
	if err := s.transition(ctx, inv, models.InvitationStatusCancelled); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionInvitationCancelled,
		UserID:         actor.ID,
		OrganizationID: orgID,
		ResourceType:   "invitation",
		ResourceID:     inv.ID,
	})
	return inv, nil
}

func (s *InvitationService) transition(ctx context.Context, inv *models.Invitation, to models.InvitationStatus) error {
	if !inv.Status.CanTransition(to) {
		return repositories.ErrInvitationNotPending
	}
	if err := s.invitations.Transition(ctx, inv.ID, to); err != nil {
		return err
	}
	now := s.now()
	inv.Status = to
	inv.RespondedAt = &now
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.Invalid("a valid email address is required")
	}
	return email, nil
}
