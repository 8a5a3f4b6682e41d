package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dorkhound/api/handler"
	"github.com/use-agent/dorkhound/api/middleware"
	"github.com/use-agent/dorkhound/config"
	"github.com/use-agent/dorkhound/session"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(ctrl *session.Controller, cfg *config.Config, proxied bool, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(ctrl, proxied, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Search
	protected.POST("/search", handler.Search(ctrl))

	// Challenge + session control
	protected.POST("/captcha/ack", handler.Acknowledge(ctrl))
	protected.POST("/session/restart", handler.Restart(ctrl))

	// Watchdog counters
	protected.GET("/stats", handler.Stats(ctrl))
	protected.DELETE("/stats", handler.ResetStats(ctrl))

	return r
}
