package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dorkhound/models"
	"github.com/use-agent/dorkhound/session"
)

// Health returns a handler for GET /api/v1/health.
//
// Degrades status when challenge failures outnumber solves, the clearest
// sign the current egress is burned.
func Health(ctrl *session.Controller, proxied bool, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := ctrl.Stats()

		status := "healthy"
		if stats.CaptchasFailed > stats.CaptchasSolved && stats.CaptchasFailed > 0 {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Proxied: proxied,
			Stats:   stats,
			Version: "0.1.0",
		})
	}
}
