package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nebulus-edge/intelligence/internal/apierr"
	"github.com/nebulus-edge/intelligence/internal/feedback"
)

// handleFeedbackSubmit handles POST /feedback/submit.
func (s *Server) handleFeedbackSubmit(c *gin.Context) {
	var req SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}

	id, err := s.feedback.SubmitFeedback(c.Request.Context(), feedback.Feedback{
		Type:     feedback.Type(req.Type),
		Rating:   feedback.Rating(req.Rating),
		Query:    req.Query,
		Response: req.Response,
		Context:  req.Context,
		Comment:  req.Comment,
		UserID:   req.UserID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// handleFeedbackOutcome handles POST /feedback/outcome.
func (s *Server) handleFeedbackOutcome(c *gin.Context) {
	var req RecordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}
	if err := s.feedback.RecordOutcome(c.Request.Context(), req.ID, req.Outcome); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleFeedbackSummary handles GET /feedback/summary?type=&days=.
func (s *Server) handleFeedbackSummary(c *gin.Context) {
	days, err := parseIntQuery(c, "days", 30)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := s.feedback.GetSummary(c.Request.Context(), feedback.Type(c.Query("type")), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleFeedbackPatterns handles GET /feedback/patterns?limit=.
func (s *Server) handleFeedbackPatterns(c *gin.Context) {
	limit, err := parseIntQuery(c, "limit", 10)
	if err != nil {
		respondError(c, err)
		return
	}
	patterns, err := s.feedback.GetNegativeFeedbackPatterns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": patterns})
}

// handleFeedbackRefinement handles GET /feedback/refinement?days=&min_count=:
// the raw aggregate feeding the knowledge refinement analyzer, exposed
// directly for callers that just want the summary and suggestions.
func (s *Server) handleFeedbackRefinement(c *gin.Context) {
	days, err := parseIntQuery(c, "days", 30)
	if err != nil {
		respondError(c, err)
		return
	}
	minCount, err := parseIntQuery(c, "min_count", 3)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := s.feedback.GetFeedbackForRefinement(c.Request.Context(), days, minCount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// handleFeedbackHistory handles GET /feedback/history with optional
// type/limit/offset filters.
func (s *Server) handleFeedbackHistory(c *gin.Context) {
	limit, err := parseIntQuery(c, "limit", 100)
	if err != nil {
		respondError(c, err)
		return
	}
	offset, err := parseIntQuery(c, "offset", 0)
	if err != nil {
		respondError(c, err)
		return
	}
	history, err := s.feedback.GetFeedback(c.Request.Context(), feedback.Filter{
		Type:   feedback.Type(c.Query("type")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
