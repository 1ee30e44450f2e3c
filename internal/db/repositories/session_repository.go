// session_repository.go implements SessionRepository, the store behind the
// session validator. Sessions are addressed by the SHA-256 hash of their token.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/google/uuid"
)

const sessionColumns = `id, token_hash, user_id, active_organization_id, expires_at,
	user_agent, ip_address, provider_access_token, provider_refresh_token, created_at`

// SessionRepository handles session database operations
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession inserts a session, assigning its ID and creation time
func (r *SessionRepository) CreateSession(ctx context.Context, s *models.Session) error {
	s.ID = uuid.New().String()
	s.CreatedAt = time.Now()

	query := `
		INSERT INTO sessions (id, token_hash, user_id, active_organization_id, expires_at,
			user_agent, ip_address, provider_access_token, provider_refresh_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.TokenHash,
		s.UserID,
		s.ActiveOrganizationID,
		s.ExpiresAt,
		s.UserAgent,
		s.IPAddress,
		s.ProviderAccessToken,
		s.ProviderRefreshToken,
		s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// ListByTokenHash returns every session stored under tokenHash, newest first.
// Expired rows are included; callers decide validity.
func (r *SessionRepository) ListByTokenHash(ctx context.Context, tokenHash string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0, 1)
	for rows.Next() {
		s := &models.Session{}
		err := rows.Scan(
			&s.ID,
			&s.TokenHash,
			&s.UserID,
			&s.ActiveOrganizationID,
			&s.ExpiresAt,
			&s.UserAgent,
			&s.IPAddress,
			&s.ProviderAccessToken,
			&s.ProviderRefreshToken,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteByTokenHash deletes every session stored under tokenHash
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session: %w", err)
	}
	return res.RowsAffected()
}

// DeleteByUserID deletes all of a user's sessions and returns their token hashes
func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `DELETE FROM sessions WHERE user_id = $1 RETURNING token_hash`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	defer rows.Close()
	return scanHashes(rows)
}

// ListTokenHashesByUser returns the token hashes of a user's sessions
func (r *SessionRepository) ListTokenHashesByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT token_hash FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}
	defer rows.Close()
	return scanHashes(rows)
}

// SetActiveOrganization switches the session's active organization
func (r *SessionRepository) SetActiveOrganization(ctx context.Context, sessionID string, orgID *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET active_organization_id = $2 WHERE id = $1`,
		sessionID, orgID,
	)
	if err != nil {
		return fmt.Errorf("failed to set active organization: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before cutoff
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func scanHashes(rows *sql.Rows) ([]string, error) {
	hashes := make([]string, 0)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan token hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
