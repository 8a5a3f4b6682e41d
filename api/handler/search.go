package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dorkhound/models"
	"github.com/use-agent/dorkhound/session"
)

// Search returns a handler for POST /api/v1/search.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Controller.PerformSearch → per-engine submit, challenge gate,
//     extraction, pagination, boolean filtering.
//  3. Fill Timing, return 200.
func Search(ctrl *session.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.SearchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		results, err := ctrl.PerformSearch(c.Request.Context(), req)
		if err != nil {
			respondError(c, err, models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
			})
			return
		}

		c.JSON(http.StatusOK, models.SearchResponse{
			Success: true,
			Query:   req.Query,
			Results: results,
			Count:   len(results),
			Timing: models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
			},
		})
	}
}

// Acknowledge returns a handler for POST /api/v1/captcha/ack. Used in
// manual challenge mode: the operator solves the widget in the headed
// browser and then acknowledges here.
func Acknowledge(ctrl *session.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl.Acknowledge()
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// Restart returns a handler for POST /api/v1/session/restart, forcing a
// teardown and rebuild under a fresh egress.
func Restart(ctrl *session.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ctrl.Restart(c.Request.Context()); err != nil {
			respondError(c, err, models.TimingInfo{})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// respondError maps a SearchError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	var searchErr *models.SearchError
	if !errors.As(err, &searchErr) {
		searchErr = models.NewSearchError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(searchErr), models.SearchResponse{
		Success: false,
		Error:   searchErr.ToDetail(),
		Timing:  timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.SearchError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeCaptchaUnsolved:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
