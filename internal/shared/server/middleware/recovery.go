package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"variance-backend/internal/shared/metrics"
	"variance-backend/internal/shared/server/respond"
	"variance-backend/internal/shared/telemetry"
)

const maxStackBytes = 8 << 10

// Recovery turns a handler panic into a 500 envelope unless the response has
// already started. http.ErrAbortHandler is re-raised for net/http to handle.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			metrics.IncPanics()
			stack := debug.Stack()
			if len(stack) > maxStackBytes {
				stack = stack[:maxStackBytes]
			}
			telemetry.Error("panic", map[string]any{
				"request_id": RequestIDFromContext(c),
				"session_id": SessionIDFromContext(c),
				"route":      c.FullPath(),
				"method":     c.Request.Method,
				"error":      rec,
				"stack":      string(stack),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal_error", "Unexpected server error", nil)
		}()
		c.Next()
	}
}
