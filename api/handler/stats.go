package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dorkhound/models"
	"github.com/use-agent/dorkhound/session"
)

// Stats returns a handler for GET /api/v1/stats.
func Stats(ctrl *session.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.StatsResponse{
			Success: true,
			Stats:   ctrl.Stats(),
		})
	}
}

// ResetStats returns a handler for DELETE /api/v1/stats.
func ResetStats(ctrl *session.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl.ResetStats()
		c.JSON(http.StatusOK, models.StatsResponse{
			Success: true,
			Stats:   ctrl.Stats(),
		})
	}
}
