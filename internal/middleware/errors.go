package middleware

import (
	"log/slog"
	"net/http"

	"github.com/aragroup/ara-platform/internal/apperrors"
	"github.com/gin-gonic/gin"
)

// RespondError aborts the request with {"error": message} and the status of
// err's apperrors kind. Errors without a kind are logged and answered with a
// generic 500 message.
func RespondError(c *gin.Context, err error) {
	status := apperrors.StatusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
			"request_id", c.GetString(RequestIDKey),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": apperrors.Message(err)})
}
