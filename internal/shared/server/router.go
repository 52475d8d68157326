package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"variance-backend/internal/services/health"
	"variance-backend/internal/sessions"
	"variance-backend/internal/shared/config"
	"variance-backend/internal/shared/metrics"
	"variance-backend/internal/shared/server/middleware"
	"variance-backend/internal/shared/server/respond"
)

// RouterDeps are the handlers the router mounts.
type RouterDeps struct {
	Config      config.Config
	Sessions    *sessions.Handler
	Health      *health.Service
	RateLimiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.BearerToken(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				middleware.LLMRateLimitGroup: middleware.PerMinute(deps.Config.LLMRatePerMinute),
			},
			ClientRules: map[string]middleware.RateLimitRule{
				middleware.LLMRateLimitGroup:           middleware.PerMinute(deps.Config.LLMClientRatePerMinute),
				middleware.SessionCreateRateLimitGroup: middleware.PerMinute(deps.Config.SessionCreatePerMinute),
			},
			GroupFor: rateLimitGroup,
			Limiter:  deps.RateLimiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		st := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !st.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, st)
	})
	if deps.Sessions != nil {
		deps.Sessions.RegisterRoutes(api)
	}

	return r
}

func rateLimitGroup(c *gin.Context) string {
	switch {
	case sessions.IsLLMRoute(c):
		return middleware.LLMRateLimitGroup
	case sessions.IsCreateRoute(c):
		return middleware.SessionCreateRateLimitGroup
	default:
		return ""
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
