// audit_repository.go implements AuditRepository, providing database queries for writing
// and retrieving audit log entries with optional filters.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	UserID         *string
	OrganizationID *string
	Action         *string
	Since          *time.Time
}

// CreateAuditLog creates a new audit log entry
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()

	var metadataJSON []byte
	if log.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (id, user_id, organization_id, action, resource_type, resource_id, metadata, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.OrganizationID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		metadataJSON,
		log.IPAddress,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// auditLogRow carries the raw JSONB metadata next to the scanned columns.
type auditLogRow struct {
	models.AuditLog
	MetadataJSON []byte `db:"metadata"`
}

// ListAuditLogs retrieves audit logs with optional filters, newest first
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, user_id, organization_id, action, resource_type, resource_id, metadata, ip_address, created_at
		FROM audit_logs
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+clause, len(args))
	}
	if filters.UserID != nil {
		add("user_id = $%d", *filters.UserID)
	}
	if filters.OrganizationID != nil {
		add("organization_id = $%d", *filters.OrganizationID)
	}
	if filters.Action != nil {
		add("action = $%d", *filters.Action)
	}
	if filters.Since != nil {
		add("created_at >= $%d", *filters.Since)
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var rows []auditLogRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	logs := make([]*models.AuditLog, 0, len(rows))
	for i := range rows {
		log := rows[i].AuditLog
		if rows[i].MetadataJSON != nil {
			if err := json.Unmarshal(rows[i].MetadataJSON, &log.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		logs = append(logs, &log)
	}
	return logs, nil
}
