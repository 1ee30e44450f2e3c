package admin

import (
	"net/http"

	"github.com/aragroup/ara-platform/internal/middleware"
	"github.com/gin-gonic/gin"
)

// StatsHandler returns platform-wide counts
// GET /api/admin/stats
func (h *Handlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.platform.Stats(c.Request.Context())
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
