// Package api provides the HTTP surface for the intelligence service.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nebulus-edge/intelligence/internal/audit"
	"github.com/nebulus-edge/intelligence/internal/config"
	"github.com/nebulus-edge/intelligence/internal/feedback"
	"github.com/nebulus-edge/intelligence/internal/ingest"
	"github.com/nebulus-edge/intelligence/internal/insight"
	"github.com/nebulus-edge/intelligence/internal/knowledge"
	"github.com/nebulus-edge/intelligence/internal/llm"
	"github.com/nebulus-edge/intelligence/internal/middleware"
	"github.com/nebulus-edge/intelligence/internal/orchestrator"
	"github.com/nebulus-edge/intelligence/internal/relational"
	"github.com/nebulus-edge/intelligence/internal/scoring"
	"github.com/nebulus-edge/intelligence/internal/vector"
)

// Server is the HTTP API server: every engine this service exposes, bound
// together with a gin router.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	cfg          *config.Server
	templates    *config.TemplateRegistry
	relational   *relational.Store
	vectors      *vector.Store // nil disables semantic-search routes
	knowledge    *knowledge.Store
	auditStore   *audit.Store
	feedback     *feedback.Store
	refiner      *feedback.Analyzer
	ingest       *ingest.Pipeline
	scoring      *scoring.Engine
	insights     *insight.Generator
	orchestrator *orchestrator.Orchestrator
	llmClient    *llm.Client
}

// Deps bundles every engine NewServer needs, so the constructor call in
// cmd/intelligence stays a single readable literal.
type Deps struct {
	Cfg          *config.Server
	Templates    *config.TemplateRegistry
	Relational   *relational.Store
	Vectors      *vector.Store
	Knowledge    *knowledge.Store
	Audit        *audit.Store
	Feedback     *feedback.Store
	Refiner      *feedback.Analyzer
	Ingest       *ingest.Pipeline
	Scoring      *scoring.Engine
	Insights     *insight.Generator
	Orchestrator *orchestrator.Orchestrator
	LLMClient    *llm.Client
}

// NewServer constructs the API server and registers every route.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:          d.Cfg,
		templates:    d.Templates,
		relational:   d.Relational,
		vectors:      d.Vectors,
		knowledge:    d.Knowledge,
		auditStore:   d.Audit,
		feedback:     d.Feedback,
		refiner:      d.Refiner,
		ingest:       d.Ingest,
		scoring:      d.Scoring,
		insights:     d.Insights,
		orchestrator: d.Orchestrator,
		llmClient:    d.LLMClient,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 8 << 20 // 8 MiB, CSV uploads stream past this to disk
	r.Use(securityHeaders())
	r.Use(middleware.Audit(middleware.Config{
		Enabled:     true,
		Debug:       d.Cfg != nil && d.Cfg.Audit.Debug,
		DefaultUser: "appliance-admin",
	}))

	s.router = r
	s.registerRoutes()
	return s
}

// Router exposes the underlying gin engine, e.g. for httptest.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", s.handleHealth)

	data := r.Group("/data")
	data.POST("/upload", s.handleDataUpload)
	data.GET("/tables", s.handleListTables)
	data.GET("/tables/:name/schema", s.handleTableSchema)
	data.GET("/tables/:name/preview", s.handleTablePreview)
	data.DELETE("/tables/:name", s.handleDeleteTable)

	query := r.Group("/query")
	query.POST("/ask", s.handleAsk)
	query.POST("/sql", s.handleSQL)
	query.POST("/similar", s.handleSimilar)
	query.POST("/score", s.handleScore)
	query.POST("/patterns", s.handlePatterns)

	know := r.Group("/knowledge")
	know.GET("/factors/:category", s.handleKnowledgeFactors)
	know.GET("/categories", s.handleKnowledgeCategories)
	know.PUT("/factors/:category/:name", s.handleUpdateFactor)
	know.GET("/rules", s.handleListRules)
	know.POST("/rules", s.handleAddRule)
	know.GET("/metrics", s.handleListMetrics)
	know.POST("/custom", s.handleSetCustom)
	know.GET("/prompt", s.handleKnowledgePrompt)
	know.GET("/refinement/analyze", s.handleRefinementAnalyze)
	know.POST("/refinement/apply", s.handleRefinementApply)

	insights := r.Group("/insights")
	insights.GET("/generate", s.handleInsightsGenerate)
	insights.GET("/high-priority", s.handleInsightsHighPriority)
	insights.GET("/category/:cat", s.handleInsightsByCategory)

	fb := r.Group("/feedback")
	fb.POST("/submit", s.handleFeedbackSubmit)
	fb.POST("/outcome", s.handleFeedbackOutcome)
	fb.GET("/summary", s.handleFeedbackSummary)
	fb.GET("/patterns", s.handleFeedbackPatterns)
	fb.GET("/refinement", s.handleFeedbackRefinement)
	fb.GET("/history", s.handleFeedbackHistory)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s.httpServer.ListenAndServe()
}

// StartWithListener runs the HTTP server on a pre-created listener, used
// by tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.router}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// auditActor pulls the user/IP pair the audit middleware already resolved
// for this request, falling back to anonymous/unknown if it is somehow
// absent (disabled middleware in a test router, say).
func auditActor(c *gin.Context) (userID, ip string) {
	if ac, ok := middleware.FromContext(c); ok {
		return ac.UserID, ac.IPAddress
	}
	return "anonymous", ""
}

// logAudit writes a best-effort audit event; logging failures are logged
// and never fail the request they describe. The write uses a background
// context so client cancellation cannot abort it.
func (s *Server) logAudit(c *gin.Context, eventType audit.EventType, resource string, detail map[string]any, outcome string) {
	if s.auditStore == nil {
		return
	}
	userID, ip := auditActor(c)
	if _, err := s.auditStore.Log(context.Background(), audit.Event{
		Type:      eventType,
		UserID:    userID,
		IPAddress: ip,
		Resource:  resource,
		Detail:    detail,
		Outcome:   outcome,
	}); err != nil {
		slog.Error("audit write failed", "error", err, "event_type", eventType)
	}
}
