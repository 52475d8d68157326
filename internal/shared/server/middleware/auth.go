package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"variance-backend/internal/shared/server/respond"
)

const (
	authTokenKey = "authToken"
	sessionIDKey = "sessionId"
)

// BearerToken captures an optional custom token from the Authorization
// header. The token is verified later by the identity provider, not here.
func BearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid authorization header", nil)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid authorization header", nil)
			return
		}
		c.Set(authTokenKey, token)
		c.Next()
	}
}

// BearerTokenFromContext returns the token captured by BearerToken.
func BearerTokenFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(authTokenKey)
	if token, ok := val.(string); ok {
		return token
	}
	return ""
}

// SetSessionID records the session a request acted on, for logging and rate limiting.
func SetSessionID(c *gin.Context, id string) {
	c.Set(sessionIDKey, id)
}

// SessionIDFromContext returns the session id set by SetSessionID or the :id path param.
func SessionIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if val, ok := c.Get(sessionIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}
	return c.Param("id")
}
