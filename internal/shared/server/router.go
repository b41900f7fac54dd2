package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"financial-reporter/internal/shared/auth"
	"financial-reporter/internal/shared/config"
	"financial-reporter/internal/shared/metrics"
	"financial-reporter/internal/shared/server/middleware"
	"financial-reporter/internal/shared/server/respond"
)

// RouteRegistrar attaches a feature's routes to the API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps holds the handlers and settings the router wires together.
type RouterDeps struct {
	Config        config.Config
	Verifier      *auth.Verifier
	DB            *sql.DB
	ReportHandler RouteRegistrar
	MarketHandler RouteRegistrar
	RateLimiter   *middleware.RateLimiter
}

type healthResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Database string `json:"database,omitempty"`
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
		middleware.Identity(deps.Verifier),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    rateLimitRules(deps.Config.RateLimits),
			GroupFor: RateLimitGroup,
			Limiter:  deps.RateLimiter,
		}),
	)

	r.GET("/", func(c *gin.Context) {
		respond.OK(c, gin.H{"message": "Welcome to the Financial Report Analysis API"})
	})
	health := healthHandler(deps.DB)
	r.GET("/api/health", health)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", health)
	if deps.ReportHandler != nil {
		deps.ReportHandler.RegisterRoutes(api)
	}
	if deps.MarketHandler != nil {
		deps.MarketHandler.RegisterRoutes(api)
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "route not found", nil)
	})
	return r
}

// RateLimitGroup picks the bucket for a request: report polling and uploads
// get their own limits.
func RateLimitGroup(c *gin.Context) string {
	switch {
	case c.Request.Method == http.MethodGet && c.FullPath() == "/api/v1/reports/:id":
		return "POLLING"
	case c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/reports/upload":
		return "UPLOAD"
	default:
		return "DEFAULT"
	}
}

func rateLimitRules(cfg map[string]config.RateLimit) map[string]middleware.RateLimitRule {
	rules := make(map[string]middleware.RateLimitRule, len(cfg))
	for group, rl := range cfg {
		rules[group] = middleware.RateLimitRule{Rate: rl.RPS, Burst: rl.Burst}
	}
	return rules
}

func healthHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := healthResponse{Status: "ok", Message: "API is running"}
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				resp.Database = "unavailable"
			} else {
				resp.Database = "ok"
			}
		}
		respond.OK(c, resp)
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8000"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
