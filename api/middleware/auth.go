package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dorkhound/models"
)

// Auth returns API-key authentication middleware. Keys arrive either as
// `X-API-Key: <key>` or `Authorization: Bearer <key>`; an empty key list
// leaves the API open.
//
// Keys are compared in constant time so response timing leaks nothing
// about how much of a guessed key matched.
func Auth(apiKeys []string) gin.HandlerFunc {
	var keys [][]byte
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			rejectUnauthorized(c, "missing API key: provide X-API-Key or Authorization: Bearer <key>")
			return
		}
		if !keyAccepted(keys, key) {
			rejectUnauthorized(c, "invalid API key")
			return
		}
		c.Set("api_key", key)
		c.Next()
	}
}

func keyAccepted(keys [][]byte, candidate string) bool {
	cb := []byte(candidate)
	accepted := false
	// Check every key regardless of an early match, keeping the work
	// independent of which key (if any) matched.
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k, cb) == 1 {
			accepted = true
		}
	}
	return accepted
}

func rejectUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.SearchResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeUnauthorized,
			Message: msg,
		},
	})
}

// extractAPIKey tries X-API-Key first, then Authorization: Bearer.
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
