package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nebulus-edge/intelligence/internal/apierr"
	"github.com/nebulus-edge/intelligence/internal/audit"
	"github.com/nebulus-edge/intelligence/internal/scoring"
	"github.com/nebulus-edge/intelligence/internal/validate"
	"github.com/nebulus-edge/intelligence/internal/vector"
)

// handleAsk handles POST /query/ask: natural-language question routed
// through the orchestrator's classify/gather/synthesize pipeline.
func (s *Server) handleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}

	resp, err := s.orchestrator.Ask(c.Request.Context(), req.Question, req.UseSimpleClassification)
	if err != nil {
		s.logAudit(c, audit.EventQueryNatural, "", map[string]any{"question": req.Question, "error": err.Error()}, "failure")
		respondError(c, err)
		return
	}
	s.logAudit(c, audit.EventQueryNatural, "", map[string]any{
		"question":       req.Question,
		"classification": resp.Classification,
	}, "success")
	c.JSON(http.StatusOK, resp)
}

// handleSQL handles POST /query/sql: a pre-written, validated read-only
// statement executed directly against the relational store.
func (s *Server) handleSQL(c *gin.Context) {
	var req SQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}

	result, err := s.relational.Execute(c.Request.Context(), req.SQL)
	if err != nil {
		s.logAudit(c, audit.EventQuerySQL, "", map[string]any{"sql": req.SQL, "error": err.Error()}, "failure")
		respondError(c, err)
		return
	}
	s.logAudit(c, audit.EventQuerySQL, "", map[string]any{"sql": req.SQL, "row_count": result.RowCount}, "success")
	c.JSON(http.StatusOK, result)
}

// handleSimilar handles POST /query/similar: semantic search by free
// text or by an existing record's ID.
func (s *Server) handleSimilar(c *gin.Context) {
	if s.vectors == nil {
		respondError(c, apierr.NewValidation("semantic search is not configured"))
		return
	}
	var req SimilarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}
	if req.Query == "" && req.RecordID == "" {
		respondError(c, apierr.NewValidation("either query or record_id is required"))
		return
	}
	limit, err := validate.ValidateLimit(nonZeroIntPtr(req.Limit), validate.DefaultMaxLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	var hits []SimilarHit
	if req.RecordID != "" {
		recs, err := s.vectors.SearchByExample(c.Request.Context(), req.TableName, req.RecordID, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		hits = toSimilarHits(recs)
	} else {
		recs, err := s.vectors.SearchSimilar(c.Request.Context(), req.TableName, req.Query, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		hits = toSimilarHits(recs)
	}

	s.logAudit(c, audit.EventQuerySemantic, req.TableName, map[string]any{
		"query": req.Query, "record_id": req.RecordID,
	}, "success")
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

func nonZeroIntPtr(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

func toSimilarHits(recs []vector.SimilarRecord) []SimilarHit {
	out := make([]SimilarHit, len(recs))
	for i, r := range recs {
		out[i] = SimilarHit{ID: r.ID, Record: r.Record, Similarity: r.Similarity}
	}
	return out
}

// handleScore handles POST /query/score: rule-driven scoring of every
// stored row in a table against one knowledge-store category.
func (s *Server) handleScore(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}

	if err := validate.ValidateTableName(req.TableName); err != nil {
		respondError(c, err)
		return
	}
	records, err := s.relational.ExecuteToRecords(c.Request.Context(),
		fmt.Sprintf(`SELECT * FROM %s`, validate.QuoteIdentifier(req.TableName)))
	if err != nil {
		respondError(c, err)
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = len(records)
	}
	scored := s.scoring.ScoreRecords(req.Category, records, true, limit)
	distribution := scoring.Distribute(scored)
	factorPerf := scoring.FactorPerformanceStats(scored)

	s.logAudit(c, audit.EventQuerySQL, req.TableName, map[string]any{
		"category": req.Category, "scored_count": len(scored),
	}, "success")

	c.JSON(http.StatusOK, gin.H{
		"scored":             scored,
		"distribution":       distribution,
		"factor_performance": factorPerf,
	})
}

// handlePatterns handles POST /query/patterns: cross-record pattern
// mining over a caller-supplied set of "positive" record IDs.
func (s *Server) handlePatterns(c *gin.Context) {
	if s.vectors == nil {
		respondError(c, apierr.NewValidation("semantic search is not configured"))
		return
	}
	var req PatternsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.NewValidation("invalid request body: %v", err))
		return
	}

	result, err := s.vectors.FindPatterns(c.Request.Context(), req.TableName, req.RecordIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
