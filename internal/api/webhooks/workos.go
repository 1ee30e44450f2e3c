// Package webhooks receives directory events pushed by the identity provider.
// Deliveries are authenticated by middleware.WebhookSignatureMiddleware before
// any handler here runs, so an unsigned request never reaches the database.
package webhooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aragroup/ara-platform/internal/apperrors"
	"github.com/aragroup/ara-platform/internal/middleware"
	"github.com/aragroup/ara-platform/internal/services"
	"github.com/gin-gonic/gin"
)

// DirectoryApplier applies one directory event. *services.DirectoryService
// satisfies it.
type DirectoryApplier interface {
	Apply(ctx context.Context, evt services.DirectoryEvent) (bool, error)
}

var _ DirectoryApplier = (*services.DirectoryService)(nil)

// WorkOSWebhookHandler handles WorkOS user and organization events.
type WorkOSWebhookHandler struct {
	directory DirectoryApplier
}

// NewWorkOSWebhookHandler creates a new webhook handler
func NewWorkOSWebhookHandler(directory DirectoryApplier) *WorkOSWebhookHandler {
	return &WorkOSWebhookHandler{directory: directory}
}

// HandleWebhook applies a verified delivery. Unrecognized events are
// acknowledged so the provider does not retry them.
// POST /api/webhooks/workos
func (h *WorkOSWebhookHandler) HandleWebhook() gin.HandlerFunc {
	return func(c *gin.Context) {
		var evt services.DirectoryEvent
		if err := json.Unmarshal(middleware.WebhookBody(c), &evt); err != nil || evt.Event == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
			return
		}

		handled, err := h.directory.Apply(c.Request.Context(), evt)
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindInvalid {
				slog.Warn("webhook: rejected event payload", "event", evt.Event, "error", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": apperrors.Message(err)})
				return
			}
			slog.Error("webhook: failed to apply event",
				"event", evt.Event,
				"error", err,
				"request_id", c.GetString(middleware.RequestIDKey),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
			return
		}

		if handled {
			slog.Info("webhook: applied event", "event", evt.Event)
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
