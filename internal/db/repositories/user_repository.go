// Package repositories implements the data access layer for the platform.
// Each repository type encapsulates all database queries for a domain entity;
// handlers and services never issue SQL directly.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/google/uuid"
)

const userColumns = `id, external_id, email, name, profile_image_url, email_verified,
	is_platform_admin, personal_organization_id, deleted_at, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.Email,
		&user.Name,
		&user.ProfileImageURL,
		&user.EmailVerified,
		&user.IsPlatformAdmin,
		&user.PersonalOrganizationID,
		&user.DeletedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID, including soft-deleted users
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return r.getOne(ctx, "id = $1", userID)
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "LOWER(email) = LOWER($1)", email)
}

// GetUserByExternalID retrieves a user by identity provider user id
func (r *UserRepository) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.getOne(ctx, "external_id = $1", externalID)
}

// UpdateUser writes the provider-owned attributes and clears any soft delete.
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	user.DeletedAt = nil

	query := `
		UPDATE users
		SET external_id = $2, email = $3, name = $4, profile_image_url = $5,
			email_verified = $6, deleted_at = NULL, updated_at = $7
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.ExternalID,
		user.Email,
		user.Name,
		user.ProfileImageURL,
		user.EmailVerified,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// UpsertUserByExternalID inserts a user or refreshes the row holding the same
// external id. A previously soft-deleted user is restored. The returned bool
// is true when a new row was inserted.
func (r *UserRepository) UpsertUserByExternalID(ctx context.Context, profile models.ExternalProfile) (*models.User, bool, error) {
	now := time.Now()
	query := `
		INSERT INTO users (id, external_id, email, name, profile_image_url, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			profile_image_url = EXCLUDED.profile_image_url,
			email_verified = EXCLUDED.email_verified,
			deleted_at = NULL,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns + `, (xmax = 0) AS inserted
	`

	user := &models.User{}
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		uuid.New().String(),
		profile.ExternalID,
		strings.ToLower(profile.Email),
		profile.DisplayName(),
		nullString(profile.ProfileImageURL),
		profile.EmailVerified,
		now,
	).Scan(
		&user.ID,
		&user.ExternalID,
		&user.Email,
		&user.Name,
		&user.ProfileImageURL,
		&user.EmailVerified,
		&user.IsPlatformAdmin,
		&user.PersonalOrganizationID,
		&user.DeletedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, inserted, nil
}

// SoftDeleteUserByExternalID marks the user deleted. It returns the local user
// id, or "" when no live user holds the external id.
func (r *UserRepository) SoftDeleteUserByExternalID(ctx context.Context, externalID string) (string, error) {
	query := `
		UPDATE users SET deleted_at = $2, updated_at = $2
		WHERE external_id = $1 AND deleted_at IS NULL
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query, externalID, time.Now()).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to soft delete user: %w", err)
	}
	return id, nil
}

// CreateUserWithPersonalOrganization inserts the user, their personal
// organization and the owner membership in one transaction. IDs and
// timestamps are assigned on the passed structs.
func (r *UserRepository) CreateUserWithPersonalOrganization(ctx context.Context, user *models.User, org *models.Organization) error {
	now := time.Now()
	user.ID = uuid.New().String()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt, user.UpdatedAt = now, now
	org.ID = uuid.New().String()
	org.IsPersonal = true
	org.Status = models.OrganizationStatusActive
	if org.Plan == "" {
		org.Plan = models.PlanFree
	}
	org.CreatedAt, org.UpdatedAt = now, now
	user.PersonalOrganizationID = &org.ID

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, status, plan, is_personal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		org.ID, org.Name, org.Slug, org.Status, org.Plan, org.IsPersonal, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create personal organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, external_id, email, name, profile_image_url, email_verified, is_platform_admin, personal_organization_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		user.ID, user.ExternalID, user.Email, user.Name, user.ProfileImageURL, user.EmailVerified, user.IsPlatformAdmin, org.ID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_memberships (organization_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		org.ID, user.ID, models.RoleOwner, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user creation: %w", err)
	}
	return nil
}

// CreatePersonalOrganization inserts a personal organization owned by userID
// and records it on the user in one transaction. It returns false, and writes
// nothing, when the user already has a personal organization.
func (r *UserRepository) CreatePersonalOrganization(ctx context.Context, userID string, org *models.Organization) (bool, error) {
	now := time.Now()
	org.ID = uuid.New().String()
	org.IsPersonal = true
	org.Status = models.OrganizationStatusActive
	if org.Plan == "" {
		org.Plan = models.PlanFree
	}
	org.CreatedAt, org.UpdatedAt = now, now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, status, plan, is_personal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		org.ID, org.Name, org.Slug, org.Status, org.Plan, org.IsPersonal, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create personal organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_memberships (organization_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		org.ID, userID, models.RoleOwner, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create owner membership: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET personal_organization_id = $2, updated_at = $3
		WHERE id = $1 AND personal_organization_id IS NULL`,
		userID, org.ID, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set personal organization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to set personal organization: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit personal organization: %w", err)
	}
	return true, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
