package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"variance-backend/internal/shared/telemetry"
)

// ErrorBody is the object under the "error" key.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error aborts the request with the {error:{code,message,details}} envelope
// and logs it. Message is shown to the user as-is.
func Error(c *gin.Context, status int, code, message string, details any) {
	logError(c, status, code, message, details)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{Code: code, Message: message, Details: details},
	})
}

func logError(c *gin.Context, status int, code, message string, details any) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"route":      c.FullPath(),
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if id := c.GetString("sessionId"); id != "" {
		fields["session_id"] = id
	} else if id := c.Param("id"); id != "" {
		fields["session_id"] = id
	}
	if d, ok := details.(gin.H); ok {
		if kind, ok := d["kind"]; ok {
			fields["kind"] = kind
		}
	}

	switch {
	case status >= http.StatusInternalServerError:
		telemetry.Error("http.error", fields)
	case status == http.StatusNotFound:
		telemetry.Info("http.error", fields)
	default:
		telemetry.Warn("http.error", fields)
	}
}
