// organization_repository.go implements OrganizationRepository, providing database queries
// for organizations, the external-id index used by directory sync, and memberships.
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
)

// Membership rule violations returned by the guarded membership mutations.
var (
	ErrLastOwner          = apperrors.Conflict("an organization must keep at least one owner")
	ErrMembershipNotFound = apperrors.NotFound("membership not found")
)

const organizationColumns = `id, external_id, name, slug, subdomain, logo_key, primary_color,
	status, plan, is_personal, created_at, updated_at`

func scanOrganization(row rowScanner) (*models.Organization, error) {
	org := &models.Organization{}
	err := row.Scan(
		&org.ID,
		&org.ExternalID,
		&org.Name,
		&org.Slug,
		&org.Subdomain,
		&org.LogoKey,
		&org.PrimaryColor,
		&org.Status,
		&org.Plan,
		&org.IsPersonal,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return org, nil
}

// OrganizationRepository handles database operations for organizations and memberships
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) getOne(ctx context.Context, where string, arg any) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE ` + where
	org, err := scanOrganization(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetBySlug retrieves an organization by slug
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return r.getOne(ctx, "slug = $1", slug)
}

// GetByExternalID retrieves an organization through the external-id index
func (r *OrganizationRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Organization, error) {
	return r.getOne(ctx, "external_id = $1", externalID)
}

// GetBySubdomain retrieves the active organization mapped to a division subdomain
func (r *OrganizationRepository) GetBySubdomain(ctx context.Context, subdomain string) (*models.Organization, error) {
	return r.getOne(ctx, "subdomain = $1 AND status = 'active'", subdomain)
}

// OrganizationFilters narrows List. Zero values match everything except
// deleted organizations, which only match an explicit Status.
type OrganizationFilters struct {
	Search string
	Status *models.OrganizationStatus
}

// List returns one page of organizations and the total matching count.
func (r *OrganizationRepository) List(ctx context.Context, filters OrganizationFilters, limit, offset int) ([]*models.Organization, int64, error) {
	var conds []string
	var args []any
	if filters.Status != nil {
		args = append(args, string(*filters.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	} else {
		conds = append(conds, "status <> 'deleted'")
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		args = append(args, "%"+search+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR slug ILIKE $%d)", len(args), len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count organizations: %w", err)
	}

	args = append(args, limit, offset)
	query := `SELECT ` + organizationColumns + ` FROM organizations` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*models.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, total, rows.Err()
}

// SlugExists reports whether any organization, deleted or not, holds slug.
func (r *OrganizationRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// CreateWithOwner inserts an organization and makes ownerID its owner in one transaction.
func (r *OrganizationRepository) CreateWithOwner(ctx context.Context, org *models.Organization, ownerID string) error {
	now := time.Now()
	org.ID = uuid.New().String()
	org.Status = models.OrganizationStatusActive
	if org.Plan == "" {
		org.Plan = models.PlanFree
	}
	org.CreatedAt, org.UpdatedAt = now, now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organizations (id, external_id, name, slug, subdomain, primary_color, status, plan, is_personal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		org.ID, org.ExternalID, org.Name, org.Slug, org.Subdomain, org.PrimaryColor, org.Status, org.Plan, org.IsPersonal, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_memberships (organization_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		org.ID, ownerID, models.RoleOwner, now,
	)
	if err != nil {
		return fmt.Errorf("failed to add owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit organization: %w", err)
	}
	return nil
}

// Update writes the mutable organization attributes
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations
		SET name = $2, subdomain = $3, primary_color = $4, plan = $5, status = $6, updated_at = $7
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.Subdomain,
		org.PrimaryColor,
		org.Plan,
		org.Status,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return nil
}

// SetLogoKey records the storage key of the organization's logo; nil clears it.
func (r *OrganizationRepository) SetLogoKey(ctx context.Context, orgID string, key *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET logo_key = $2, updated_at = $3 WHERE id = $1`,
		orgID, key, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set logo: %w", err)
	}
	return nil
}

// UpsertByExternalID inserts an organization or refreshes the row holding the
// same external id. A deleted row is restored to active; a suspended row stays
// suspended. slug is only used on insert.
func (r *OrganizationRepository) UpsertByExternalID(ctx context.Context, ext models.ExternalOrganization, slug string) (*models.Organization, bool, error) {
	query := `
		INSERT INTO organizations (id, external_id, name, slug, status, plan, is_personal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', 'free', FALSE, $5, $5)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = CASE WHEN organizations.status = 'deleted' THEN 'active' ELSE organizations.status END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + organizationColumns + `, (xmax = 0) AS inserted
	`

	org := &models.Organization{}
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		uuid.New().String(),
		ext.ExternalID,
		ext.Name,
		slug,
		time.Now(),
	).Scan(
		&org.ID,
		&org.ExternalID,
		&org.Name,
		&org.Slug,
		&org.Subdomain,
		&org.LogoKey,
		&org.PrimaryColor,
		&org.Status,
		&org.Plan,
		&org.IsPersonal,
		&org.CreatedAt,
		&org.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert organization: %w", err)
	}
	return org, inserted, nil
}

// MarkDeletedByExternalID soft-deletes the organization holding externalID.
// It returns false when no such organization exists.
func (r *OrganizationRepository) MarkDeletedByExternalID(ctx context.Context, externalID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET status = 'deleted', updated_at = $2 WHERE external_id = $1`,
		externalID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete organization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete organization: %w", err)
	}
	return n > 0, nil
}

// GetUserMemberships lists the active organizations a user belongs to
func (r *OrganizationRepository) GetUserMemberships(ctx context.Context, userID string) ([]*models.UserMembership, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.is_personal, m.role, m.created_at
		FROM organization_memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1 AND o.status = 'active'
		ORDER BY o.is_personal DESC, o.name
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]*models.UserMembership, 0)
	for rows.Next() {
		m := &models.UserMembership{}
		if err := rows.Scan(&m.OrganizationID, &m.OrganizationName, &m.OrganizationSlug, &m.IsPersonal, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// GetMember retrieves a membership in an active organization
func (r *OrganizationRepository) GetMember(ctx context.Context, orgID, userID string) (*models.Membership, error) {
	query := `
		SELECT m.organization_id, m.user_id, m.role, m.created_at, m.updated_at
		FROM organization_memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.organization_id = $1 AND m.user_id = $2 AND o.status = 'active'
	`

	m := &models.Membership{}
	err := r.db.QueryRowContext(ctx, query, orgID, userID).Scan(
		&m.OrganizationID,
		&m.UserID,
		&m.Role,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListMembers lists an organization's members with their user details
func (r *OrganizationRepository) ListMembers(ctx context.Context, orgID string) ([]*models.MembershipWithUser, error) {
	query := `
		SELECT m.organization_id, m.user_id, m.role, m.created_at, m.updated_at, u.email, u.name
		FROM organization_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND u.deleted_at IS NULL
		ORDER BY m.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]*models.MembershipWithUser, 0)
	for rows.Next() {
		m := &models.MembershipWithUser{}
		if err := rows.Scan(&m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt, &m.UserEmail, &m.UserName); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember inserts a membership. An existing membership is left unchanged
// and reported with false.
func (r *OrganizationRepository) AddMember(ctx context.Context, orgID, userID string, role models.Role) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO organization_memberships (organization_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (organization_id, user_id) DO NOTHING`,
		orgID, userID, role, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add member: %w", err)
	}
	return n > 0, nil
}

// lockOwnerChange locks the target membership and, when it is an owner
// membership about to lose owner status, the organization's owner rows. It
// returns ErrLastOwner when the target is the only owner.
func lockOwnerChange(ctx context.Context, tx *sql.Tx, orgID, userID string, keepsOwner bool) error {
	var current models.Role
	err := tx.QueryRowContext(ctx, `
		SELECT role FROM organization_memberships
		WHERE organization_id = $1 AND user_id = $2
		FOR UPDATE`,
		orgID, userID,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrMembershipNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock membership: %w", err)
	}
	if current != models.RoleOwner || keepsOwner {
		return nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT user_id FROM organization_memberships
		WHERE organization_id = $1 AND role = 'owner'
		FOR UPDATE`,
		orgID,
	)
	if err != nil {
		return fmt.Errorf("failed to lock owners: %w", err)
	}
	owners := 0
	for rows.Next() {
		owners++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to count owners: %w", err)
	}
	if owners <= 1 {
		return ErrLastOwner
	}
	return nil
}

// RemoveMember deletes a membership. Removing the last owner fails with ErrLastOwner.
func (r *OrganizationRepository) RemoveMember(ctx context.Context, orgID, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockOwnerChange(ctx, tx, orgID, userID, false); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM organization_memberships WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit member removal: %w", err)
	}
	return nil
}

// UpdateMemberRole changes a member's role. Demoting the last owner fails with ErrLastOwner.
func (r *OrganizationRepository) UpdateMemberRole(ctx context.Context, orgID, userID string, role models.Role) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockOwnerChange(ctx, tx, orgID, userID, role == models.RoleOwner); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE organization_memberships SET role = $3, updated_at = $4
		WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID, role, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role change: %w", err)
	}
	return nil
}
