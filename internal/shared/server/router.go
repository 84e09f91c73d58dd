package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"docvault-backend/internal/auth"
	"docvault-backend/internal/documents"
	"docvault-backend/internal/ingestion"
	"docvault-backend/internal/services/health"
	"docvault-backend/internal/shared/config"
	"docvault-backend/internal/shared/metrics"
	"docvault-backend/internal/shared/server/middleware"
	"docvault-backend/internal/shared/server/respond"
	"docvault-backend/internal/users"
)

const (
	rateGroupDefault = "DEFAULT"
	rateGroupAuth    = "AUTH"
)

// RouterDeps carries the handlers and infrastructure the router mounts.
type RouterDeps struct {
	Config           config.Config
	Verifier         middleware.TokenVerifier
	Health           *health.Service
	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	DocumentsHandler *documents.Handler
	IngestionHandler *ingestion.Handler
	RateLimiter      *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	middlewares := []gin.HandlerFunc{
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	}
	if cfg.OTelEnabled {
		middlewares = append([]gin.HandlerFunc{otelgin.Middleware(cfg.OTelServiceName)}, middlewares...)
	}
	r.Use(middlewares...)

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService()
	}
	r.GET("/health", func(c *gin.Context) {
		respond.OK(c, healthSvc.Status())
	})
	r.GET("/ready", func(c *gin.Context) {
		report, ok := healthSvc.Ready(c.Request.Context())
		if !ok {
			respond.JSON(c, http.StatusServiceUnavailable, report)
			return
		}
		respond.OK(c, report)
	})
	r.GET("/metrics", metrics.Handler())

	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil)
	}
	rules := rateRules(cfg)

	public := r.Group("")
	public.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Rules:        rules,
		DefaultGroup: rateGroupAuth,
		Limiter:      limiter,
	}))
	if deps.AuthHandler != nil {
		deps.AuthHandler.RegisterRoutes(public)
	}

	api := r.Group("")
	api.Use(
		middleware.Auth(deps.Verifier),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        rules,
			DefaultGroup: rateGroupDefault,
			Limiter:      limiter,
		}),
	)
	if deps.UsersHandler != nil {
		deps.UsersHandler.RegisterRoutes(api)
	}
	if deps.DocumentsHandler != nil {
		deps.DocumentsHandler.RegisterRoutes(api)
	}
	if deps.IngestionHandler != nil {
		deps.IngestionHandler.RegisterRoutes(api)
	}

	return r
}

// rateRules derives per-group token buckets. Auth endpoints get half the
// budget since they are keyed by client IP.
func rateRules(cfg config.Config) map[string]middleware.RateLimitRule {
	authBurst := cfg.RateLimitBurst / 2
	if authBurst < 1 && cfg.RateLimitBurst > 0 {
		authBurst = 1
	}
	return map[string]middleware.RateLimitRule{
		rateGroupDefault: {Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		rateGroupAuth:    {Rate: cfg.RateLimitRPS / 2, Burst: authBurst},
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
