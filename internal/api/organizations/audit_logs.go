package organizations

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/db/repositories"
	"github.com/aragroup/ara-platform/internal/middleware"
	"github.com/gin-gonic/gin"
)

// AuditLogLister reads audit rows. *repositories.AuditRepository satisfies it.
type AuditLogLister interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, error)
}

var _ AuditLogLister = (*repositories.AuditRepository)(nil)

// ListAuditLogsHandler lists an organization's audit trail, newest first.
// GET /api/organizations/:id/audit-logs?action=&since=&page=1&per_page=50
func (h *Handlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 200 {
			perPage = 50
		}

		orgID := c.Param("id")
		filters := repositories.AuditFilters{OrganizationID: &orgID}
		if action := c.Query("action"); action != "" {
			filters.Action = &action
		}
		if since := c.Query("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC 3339 timestamp"})
				return
			}
			filters.Since = &t
		}

		logs, err := h.auditLogs.ListAuditLogs(c.Request.Context(), filters, perPage, (page-1)*perPage)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"audit_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
			},
		})
	}
}
