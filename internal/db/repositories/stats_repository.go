package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// StatsRepository computes platform-wide counts.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new StatsRepository
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// PlatformStats returns the counts in a single round-trip. Sessions and
// invitations count as live relative to now.
func (r *StatsRepository) PlatformStats(ctx context.Context, now time.Time) (*models.PlatformStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users WHERE deleted_at IS NULL) AS users,
			(SELECT COUNT(*) FROM users WHERE deleted_at IS NOT NULL) AS deleted_users,
			(SELECT COUNT(*) FROM organizations WHERE status <> 'deleted') AS organizations,
			(SELECT COUNT(*) FROM organizations WHERE status = 'suspended') AS suspended_organizations,
			(SELECT COUNT(*) FROM organization_memberships) AS memberships,
			(SELECT COUNT(*) FROM sessions WHERE expires_at > $1) AS active_sessions,
			(SELECT COUNT(*) FROM invitations WHERE status = 'pending' AND expires_at > $1) AS pending_invitations
	`

	stats := &models.PlatformStats{}
	if err := r.db.GetContext(ctx, stats, query, now); err != nil {
		return nil, fmt.Errorf("failed to load platform stats: %w", err)
	}
	return stats, nil
}
