package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"servicedocs-backend/internal/documents"
	"servicedocs-backend/internal/fixes"
	"servicedocs-backend/internal/search"
	"servicedocs-backend/internal/services/health"
	"servicedocs-backend/internal/shared/config"
	"servicedocs-backend/internal/shared/metrics"
	"servicedocs-backend/internal/shared/server/middleware"
	"servicedocs-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers mounted under /api/v1.
type RouterDeps struct {
	Config          config.Config
	Health          *health.Service
	DocumentHandler *documents.Handler
	FixHandler      *fixes.Handler
	SearchHandler   *search.Handler
	// RateLimits overrides DefaultRateLimits when non-nil.
	RateLimits map[string]middleware.RateLimitRule
}

// DefaultRateLimits are per-user token buckets by route group.
var DefaultRateLimits = map[string]middleware.RateLimitRule{
	middleware.RateLimitDefault: {Rate: 10, Burst: 60},
	middleware.RateLimitSearch:  {Rate: 1, Burst: 10},
	middleware.RateLimitUpload:  {Rate: 1, Burst: 20},
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		status, ok := deps.Health.Status(c.Request.Context())
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})

	rules := deps.RateLimits
	if rules == nil {
		rules = DefaultRateLimits
	}
	authed := api.Group("")
	authed.Use(
		middleware.Auth(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    rules,
			GroupFor: middleware.GroupByRoute,
		}),
	)
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(authed)
	}
	if deps.FixHandler != nil {
		deps.FixHandler.RegisterRoutes(authed)
	}
	if deps.SearchHandler != nil {
		deps.SearchHandler.RegisterRoutes(authed)
	}

	return r
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
