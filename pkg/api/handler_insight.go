package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleInsightsGenerate handles GET /insights/generate: a full
// analysis pass over every ingested table (or a caller-supplied
// subset via ?tables=a,b).
func (s *Server) handleInsightsGenerate(c *gin.Context) {
	tables := tablesFromQuery(c)
	report, err := s.insights.GenerateInsights(c.Request.Context(), tables)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleInsightsHighPriority handles GET /insights/high-priority.
func (s *Server) handleInsightsHighPriority(c *gin.Context) {
	tables := tablesFromQuery(c)
	found, err := s.insights.GetHighPriorityInsights(c.Request.Context(), tables)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": found})
}

// handleInsightsByCategory handles GET /insights/category/{cat}.
func (s *Server) handleInsightsByCategory(c *gin.Context) {
	category := c.Param("cat")
	tables := tablesFromQuery(c)
	found, err := s.insights.GetInsightsByCategory(c.Request.Context(), category, tables)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "insights": found})
}

func tablesFromQuery(c *gin.Context) []string {
	raw := c.Query("tables")
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}
