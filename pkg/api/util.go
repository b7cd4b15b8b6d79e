package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nebulus-edge/intelligence/internal/apierr"
)

// parseIntQuery reads an optional integer query parameter, defaulting
// when absent and rejecting anything unparseable.
func parseIntQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierr.NewValidation("%s must be an integer", key)
	}
	return n, nil
}

// parseFloatQuery reads an optional float query parameter, defaulting
// when absent and rejecting anything unparseable.
func parseFloatQuery(c *gin.Context, key string, fallback float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apierr.NewValidation("%s must be a number", key)
	}
	return f, nil
}
