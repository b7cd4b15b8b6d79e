package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nebulus-edge/intelligence/internal/apierr"
)

// respondError maps an engine error to an HTTP status/body via
// apierr.Map, the single adapter required by §7, and logs unexpected
// (5xx) failures.
func respondError(c *gin.Context, err error) {
	status, message := apierr.Map(err)
	if status >= http.StatusInternalServerError {
		slog.Error("unexpected engine error", "error", err, "path", c.FullPath())
	}
	c.JSON(status, ErrorResponse{Error: message})
}
