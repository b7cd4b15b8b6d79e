package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nebulus-edge/intelligence/internal/apierr"
	"github.com/nebulus-edge/intelligence/internal/audit"
	"github.com/nebulus-edge/intelligence/internal/knowledge"
)

// handleKnowledgeFactors handles GET /knowledge/factors/{category}.
func (s *Server) handleKnowledgeFactors(c *gin.Context) {
	category := c.Param("category")
	s.logAudit(c, audit.EventKnowledgeView, category, nil, "success")
	c.JSON(http.StatusOK, gin.H{"category": category, "factors": s.knowledge.Factors(category)})
}

// handleKnowledgeCategories handles GET /knowledge/categories.
func (s *Server) handleKnowledgeCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": s.knowledge.Categories()})
}

// handleUpdateFactor handles PUT /knowledge/factors/{category}/{name}.
func (s *Server) handleUpdateFactor(c *gin.Context) {
	category := c.Param("category")
	name := c.Param("name")
	var req UpdateFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}
	found, err := s.knowledge.UpdateFactor(category, name, req.Weight, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	if !found {
		respondError(c, apierr.ErrNotFound)
		return
	}
	s.logAudit(c, audit.EventKnowledgeUpdate, category+"/"+name, map[string]any{
		"weight": req.Weight, "description": req.Description,
	}, "success")
	c.Status(http.StatusNoContent)
}

// handleListRules handles GET /knowledge/rules.
func (s *Server) handleListRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": s.knowledge.Rules()})
}

// handleAddRule handles POST /knowledge/rules.
func (s *Server) handleAddRule(c *gin.Context) {
	var req AddRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}
	rule, err := s.knowledge.AddRule(knowledge.Rule{
		Name: req.Name, Description: req.Description,
		Condition: req.Condition, Severity: req.Severity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	s.logAudit(c, audit.EventKnowledgeUpdate, "rules/"+req.Name, map[string]any{"rule": rule}, "success")
	c.JSON(http.StatusCreated, rule)
}

// handleListMetrics handles GET /knowledge/metrics.
func (s *Server) handleListMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"metrics": s.knowledge.Metrics()})
}

// handleSetCustom handles POST /knowledge/custom.
func (s *Server) handleSetCustom(c *gin.Context) {
	var req SetCustomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}
	if err := s.knowledge.SetCustomValue(req.Key, req.Value); err != nil {
		respondError(c, err)
		return
	}
	s.logAudit(c, audit.EventKnowledgeUpdate, "custom/"+req.Key, map[string]any{"value": req.Value}, "success")
	c.Status(http.StatusNoContent)
}

// handleKnowledgePrompt handles GET /knowledge/prompt: the rendered
// knowledge card used in LLM prompts.
func (s *Server) handleKnowledgePrompt(c *gin.Context) {
	c.String(http.StatusOK, s.knowledge.ExportForPrompt())
}

// handleRefinementAnalyze handles GET /knowledge/refinement/analyze.
func (s *Server) handleRefinementAnalyze(c *gin.Context) {
	if s.refiner == nil {
		respondError(c, apierr.NewValidation("feedback-driven refinement is not configured"))
		return
	}
	days, err := parseIntQuery(c, "days", 30)
	if err != nil {
		respondError(c, err)
		return
	}
	minConfidence, err := parseFloatQuery(c, "min_confidence", 0.6)
	if err != nil {
		respondError(c, err)
		return
	}
	report, err := s.refiner.AnalyzeAndSuggest(c.Request.Context(), days, minConfidence)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleRefinementApply handles POST /knowledge/refinement/apply: runs
// a fresh analysis and applies every adjustment meeting the confidence
// floor.
func (s *Server) handleRefinementApply(c *gin.Context) {
	if s.refiner == nil {
		respondError(c, apierr.NewValidation("feedback-driven refinement is not configured"))
		return
	}
	var req ApplyRefinementRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}
	days := req.Days
	if days <= 0 {
		days = 30
	}
	minConfidence := req.MinConfidence
	if minConfidence <= 0 {
		minConfidence = 0.6
	}

	report, err := s.refiner.AnalyzeAndSuggest(c.Request.Context(), days, minConfidence)
	if err != nil {
		respondError(c, err)
		return
	}
	applied := s.refiner.ApplyAdjustments(report.WeightAdjustments, minConfidence)

	s.logAudit(c, audit.EventKnowledgeUpdate, "refinement", map[string]any{
		"applied": applied,
	}, "success")
	c.JSON(http.StatusOK, gin.H{"report": report, "applied": applied})
}
