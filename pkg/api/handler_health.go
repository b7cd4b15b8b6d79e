package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nebulus-edge/intelligence/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// handleHealth handles GET /health: store connectivity plus
// configuration stats (active template, registered verticals,
// whether semantic search is configured).
func (s *Server) handleHealth(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if err := s.relational.Health(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["relational"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["relational"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.auditStore != nil {
		if err := s.auditStore.Health(reqCtx); err != nil {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["audit"] = HealthCheck{Status: healthStatusDegraded, Message: err.Error()}
		} else {
			checks["audit"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.feedback != nil {
		if err := s.feedback.Health(reqCtx); err != nil {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["feedback"] = HealthCheck{Status: healthStatusDegraded, Message: err.Error()}
		} else {
			checks["feedback"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.vectors == nil {
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
		checks["vector_search"] = HealthCheck{Status: healthStatusDegraded, Message: "semantic search not configured"}
	} else {
		checks["vector_search"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.templates != nil {
		checks["template"] = HealthCheck{
			Status:  healthStatusHealthy,
			Message: "verticals: " + strings.Join(s.templates.GetAll(), ", "),
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:  status,
		Version: version.Full(),
		Checks:  checks,
	})
}
