// audit.go provides Gin middleware that records rejected requests to the audit
// log. Successful mutations are recorded by the services that perform them.
package middleware

import (
	"net/http"

	"github.com/aragroup/ara-platform/internal/audit"
	"github.com/aragroup/ara-platform/internal/config"
	"github.com/aragroup/ara-platform/internal/safego"
	"github.com/gin-gonic/gin"
)

// ActionRequestFailed is recorded for failed mutating requests when
// audit.log_failed_requests is enabled.
const ActionRequestFailed = "request.failed"

// AuditMiddleware records 401 and 403 responses as access denials. With
// LogFailedRequests set, other failed non-GET requests are recorded too.
// Recording happens off the request path. The request context carries the
// client IP and request id for events recorded by handlers and services.
func AuditMiddleware(recorder *audit.Recorder, cfg *config.AuditConfig) gin.HandlerFunc {
	logFailed := cfg != nil && cfg.LogFailedRequests

	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithRequest(c.Request.Context(), c.ClientIP(), c.GetString(RequestIDKey)))
		c.Next()

		if recorder == nil || c.Request.Method == http.MethodOptions {
			return
		}

		status := c.Writer.Status()
		var action string
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			action = audit.ActionAccessDenied
		case status >= 400 && logFailed && c.Request.Method != http.MethodGet:
			action = ActionRequestFailed
		default:
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		event := audit.Event{
			Action:         action,
			UserID:         c.GetString(ContextKeyUserID),
			OrganizationID: c.Param(OrgIDParam),
			IPAddress:      c.ClientIP(),
			RequestID:      c.GetString(RequestIDKey),
			StatusCode:     status,
			Metadata: map[string]interface{}{
				"method":      c.Request.Method,
				"route":       route,
				"status_code": status,
			},
		}
		if event.OrganizationID == "" {
			event.OrganizationID = c.GetString(ContextKeyOrganizationID)
		}

		ctx := c.Request.Context()
		safego.Go("audit-record", func() {
			recorder.Record(ctx, event)
		})
	}
}
