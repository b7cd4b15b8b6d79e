// Command intelligence runs the business-data intelligence HTTP service:
// CSV ingestion, natural-language and semantic query, scoring, insight
// generation, and feedback-driven knowledge refinement behind a single
// gin router.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nebulus-edge/intelligence/internal/audit"
	"github.com/nebulus-edge/intelligence/internal/config"
	"github.com/nebulus-edge/intelligence/internal/feedback"
	"github.com/nebulus-edge/intelligence/internal/ingest"
	"github.com/nebulus-edge/intelligence/internal/insight"
	"github.com/nebulus-edge/intelligence/internal/knowledge"
	"github.com/nebulus-edge/intelligence/internal/llm"
	"github.com/nebulus-edge/intelligence/internal/orchestrator"
	"github.com/nebulus-edge/intelligence/internal/relational"
	"github.com/nebulus-edge/intelligence/internal/scoring"
	"github.com/nebulus-edge/intelligence/internal/vector"
	"github.com/nebulus-edge/intelligence/pkg/api"
	"github.com/nebulus-edge/intelligence/pkg/version"
)

func main() {
	ginMode := flag.String("gin-mode", getEnv("GIN_MODE", "release"), "gin mode: debug, release, test")
	flag.Parse()

	gin.SetMode(*ginMode)
	slog.Info("starting intelligence service", "version", version.Full())

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	for _, dir := range []string{
		filepath.Dir(cfg.MainDBPath),
		filepath.Dir(cfg.AuditDBPath),
		filepath.Dir(cfg.FeedbackPath),
		filepath.Dir(cfg.OverlayPath),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	templates := config.NewTemplateRegistry()
	tmpl, err := templates.Get(cfg.Template)
	if err != nil {
		slog.Error("unknown template", "template", cfg.Template, "error", err)
		os.Exit(1)
	}

	relStore, err := relational.Open(cfg.MainDBPath)
	if err != nil {
		slog.Error("open relational store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := relStore.Close(); err != nil {
			slog.Error("close relational store", "error", err)
		}
	}()

	kb, err := knowledge.New(tmpl, cfg.OverlayPath)
	if err != nil {
		slog.Error("open knowledge store", "error", err)
		os.Exit(1)
	}

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.Open(cfg.AuditDBPath)
		if err != nil {
			slog.Error("open audit store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := auditStore.Close(); err != nil {
				slog.Error("close audit store", "error", err)
			}
		}()
	} else {
		slog.Warn("audit logging disabled")
	}

	feedbackStore, err := feedback.Open(cfg.FeedbackPath)
	if err != nil {
		slog.Error("open feedback store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := feedbackStore.Close(); err != nil {
			slog.Error("close feedback store", "error", err)
		}
	}()

	llmClient := llm.New(
		llm.WithBaseURL(cfg.LLM.BrainURL),
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithChatModel(cfg.LLM.ChatModel),
		llm.WithEmbeddingModel(cfg.LLM.EmbeddingModel),
		llm.WithTimeout(cfg.LLM.Timeout),
	)

	vectorStore := dialVectorStore(cfg, llmClient)

	scoringEngine := scoring.New(kb)
	ingestPipeline := ingest.New(relStore, vectorStore)
	insightGenerator := insight.New(relStore)
	refiner := feedback.NewAnalyzer(kb, feedbackStore)
	orch := orchestrator.New(relStore, vectorStore, kb, llmClient, cfg.Template)

	srv := api.NewServer(api.Deps{
		Cfg:          cfg,
		Templates:    templates,
		Relational:   relStore,
		Vectors:      vectorStore,
		Knowledge:    kb,
		Audit:        auditStore,
		Feedback:     feedbackStore,
		Refiner:      refiner,
		Ingest:       ingestPipeline,
		Scoring:      scoringEngine,
		Insights:     insightGenerator,
		Orchestrator: orch,
		LLMClient:    llmClient,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: srv.Router(),
	}

	go func() {
		slog.Info("listening", "addr", httpServer.Addr, "template", cfg.Template)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen and serve", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// dialVectorStore dials Qdrant if configured and reachable. Semantic search
// is optional: a dial failure is logged and the service runs with
// vector-backed routes disabled rather than refusing to start.
func dialVectorStore(cfg *config.Server, llmClient *llm.Client) *vector.Store {
	if cfg.QdrantURL == "" {
		return nil
	}
	host, port, err := splitHostPort(cfg.QdrantURL)
	if err != nil {
		slog.Warn("semantic search disabled: invalid QDRANT_URL", "url", cfg.QdrantURL, "error", err)
		return nil
	}
	client, err := vector.Dial(host, port)
	if err != nil {
		slog.Warn("semantic search disabled: could not reach qdrant", "addr", cfg.QdrantURL, "error", err)
		return nil
	}
	return vector.New(client, llmClient)
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
