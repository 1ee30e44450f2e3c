// invitation_repository.go implements InvitationRepository, providing database queries
// for organization invitations and their guarded status transitions.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aragroup/ara-platform/internal/apperrors"
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrInvitationNotPending is returned when a transition targets an invitation
// that already reached a terminal status.
var ErrInvitationNotPending = apperrors.Conflict("invitation is no longer pending")

const invitationSelect = `
	SELECT i.id, i.organization_id, i.email, i.role, i.inviter_id, i.status,
		i.expires_at, i.responded_at, i.created_at, o.name AS organization_name
	FROM invitations i
	JOIN organizations o ON o.id = i.organization_id
`

// InvitationRepository handles database operations for invitations
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create inserts a pending invitation, assigning ID and timestamps
func (r *InvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	inv.ID = uuid.New().String()
	inv.Email = strings.ToLower(inv.Email)
	inv.Status = models.InvitationStatusPending
	inv.CreatedAt = time.Now()
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = inv.CreatedAt.Add(models.InvitationTTL)
	}

	query := `
		INSERT INTO invitations (id, organization_id, email, role, inviter_id, status, expires_at, created_at)
		VALUES (:id, :organization_id, :email, :role, :inviter_id, :status, :expires_at, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, inv); err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetByID retrieves an invitation by ID
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*models.Invitation, error) {
	var inv models.Invitation
	err := r.db.GetContext(ctx, &inv, invitationSelect+`WHERE i.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

// GetPendingByEmail retrieves the pending invitation for email in an organization
func (r *InvitationRepository) GetPendingByEmail(ctx context.Context, orgID, email string) (*models.Invitation, error) {
	var inv models.Invitation
	err := r.db.GetContext(ctx, &inv,
		invitationSelect+`WHERE i.organization_id = $1 AND LOWER(i.email) = LOWER($2) AND i.status = 'pending'`,
		orgID, email,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending invitation: %w", err)
	}
	return &inv, nil
}

// ListByOrganization lists an organization's invitations, newest first
func (r *InvitationRepository) ListByOrganization(ctx context.Context, orgID string) ([]models.Invitation, error) {
	invitations := make([]models.Invitation, 0)
	err := r.db.SelectContext(ctx, &invitations,
		invitationSelect+`WHERE i.organization_id = $1 ORDER BY i.created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invitations, nil
}

// ListPendingForEmail lists unexpired pending invitations addressed to email
func (r *InvitationRepository) ListPendingForEmail(ctx context.Context, email string, now time.Time) ([]models.Invitation, error) {
	invitations := make([]models.Invitation, 0)
	err := r.db.SelectContext(ctx, &invitations,
		invitationSelect+`WHERE LOWER(i.email) = LOWER($1) AND i.status = 'pending' AND i.expires_at > $2 AND o.status = 'active'
		ORDER BY i.created_at DESC`,
		email, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invitations, nil
}

// Transition moves a pending invitation to a terminal status. It returns
// ErrInvitationNotPending when the invitation is no longer pending.
func (r *InvitationRepository) Transition(ctx context.Context, id string, to models.InvitationStatus) error {
	if !models.InvitationStatusPending.CanTransition(to) {
		return fmt.Errorf("invalid invitation transition to %q", to)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET status = $2, responded_at = $3 WHERE id = $1 AND status = 'pending'`,
		id, to, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	if n == 0 {
		return ErrInvitationNotPending
	}
	return nil
}

// Accept marks the invitation accepted and adds userID to the organization
// with the invited role in one transaction. An existing membership is kept.
func (r *InvitationRepository) Accept(ctx context.Context, inv *models.Invitation, userID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE invitations SET status = 'accepted', responded_at = $2 WHERE id = $1 AND status = 'pending'`,
		inv.ID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to accept invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to accept invitation: %w", err)
	}
	if n == 0 {
		return ErrInvitationNotPending
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_memberships (organization_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (organization_id, user_id) DO NOTHING`,
		inv.OrganizationID, userID, inv.Role, now,
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invitation: %w", err)
	}
	inv.Status = models.InvitationStatusAccepted
	inv.RespondedAt = &now
	return nil
}
