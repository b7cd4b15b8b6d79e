// Package config loads process configuration from the environment and
// holds the built-in vertical templates (dealership/medical/legal/generic)
// that seed a knowledge.Store.
//
// Grounded on the teacher pkg/config's pattern of a thread-safe registry
// with a Get(name) returning a sentinel-wrapped not-found error, scaled
// down from its YAML agent/chain/MCP-server registries to this system's
// single template registry. The template contents themselves are grounded
// on original_source/intelligence/templates/base.py's VerticalTemplate
// shape (scoring factors, business rules, metrics) and on
// internal/ingest.PrimaryKeyHints, which already encodes the per-vertical
// primary-key half of the same templates.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/nebulus-edge/intelligence/internal/apierr"
	"github.com/nebulus-edge/intelligence/internal/knowledge"
)

// LLM holds the connection settings for the language-model backend.
type LLM struct {
	BrainURL       string // BRAIN_URL
	APIKey         string // OPENAI_API_KEY
	ChatModel      string // LLM_MODEL
	EmbeddingModel string // EMBEDDING_MODEL
	Timeout        time.Duration
}

// Audit holds the settings for the tamper-evident audit log.
type Audit struct {
	Enabled       bool
	RetentionDays int
	Debug         bool
	SecretKey     []byte
}

// Server is the complete process configuration, assembled from the
// environment (and an optional .env file) at startup.
type Server struct {
	HTTPPort        string // HTTP_PORT
	IntelligenceURL string // INTELLIGENCE_URL, this service's own base URL
	Template        string // INTELLIGENCE_TEMPLATE
	ConfigDir       string // CONFIG_DIR
	DataDir         string
	MainDBPath      string
	AuditDBPath     string
	FeedbackPath    string
	OverlayPath     string
	QdrantURL       string // QDRANT_URL
	LLM             LLM
	Audit           Audit
}

// Load reads a .env file if present (missing is not an error, matching
// godotenv's own convention) and builds a Server from the environment,
// falling back to the defaults named in the external-interfaces contract
// for anything unset.
func Load() (*Server, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: failed to load .env", "error", err)
	}

	dataDir := getEnv("DATA_DIR", "./storage")
	retentionDays, err := strconv.Atoi(getEnv("AUDIT_RETENTION_DAYS", "2555"))
	if err != nil {
		return nil, fmt.Errorf("AUDIT_RETENTION_DAYS: %w", err)
	}
	auditEnabled, err := strconv.ParseBool(getEnv("AUDIT_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("AUDIT_ENABLED: %w", err)
	}
	auditDebug, err := strconv.ParseBool(getEnv("AUDIT_DEBUG", "false"))
	if err != nil {
		return nil, fmt.Errorf("AUDIT_DEBUG: %w", err)
	}

	return &Server{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		IntelligenceURL: getEnv("INTELLIGENCE_URL", "http://localhost:8080"),
		Template:        getEnv("INTELLIGENCE_TEMPLATE", "generic"),
		ConfigDir:       getEnv("CONFIG_DIR", "./deploy/config"),
		DataDir:         dataDir,
		MainDBPath:      dataDir + "/databases/main.db",
		AuditDBPath:     dataDir + "/audit/audit.db",
		FeedbackPath:    dataDir + "/feedback/feedback.db",
		OverlayPath:     dataDir + "/knowledge/knowledge.json",
		QdrantURL:       getEnv("QDRANT_URL", "localhost:6334"),
		LLM: LLM{
			BrainURL:       getEnv("BRAIN_URL", "https://api.openai.com/v1"),
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			ChatModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Timeout:        60 * time.Second,
		},
		Audit: Audit{
			Enabled:       auditEnabled,
			RetentionDays: retentionDays,
			Debug:         auditDebug,
			SecretKey:     []byte(os.Getenv("AUDIT_SECRET_KEY")),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// TemplateRegistry is a thread-safe, read-mostly lookup of the built-in
// vertical templates, seeded once at process start.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]*knowledge.Template
}

// NewTemplateRegistry returns a registry pre-populated with every built-in
// vertical template.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{templates: make(map[string]*knowledge.Template)}
	for _, t := range builtinTemplates() {
		r.templates[t.Name] = t
	}
	return r
}

// Get returns the named template, or apierr.ErrNotFound if it is not
// registered.
func (r *TemplateRegistry) Get(name string) (*knowledge.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %q: %w", name, apierr.ErrNotFound)
	}
	return t, nil
}

// GetAll returns every registered template name, sorted for deterministic
// listing endpoints.
func (r *TemplateRegistry) GetAll() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds or replaces a template at runtime, e.g. for tests or a
// future custom-vertical upload endpoint.
func (r *TemplateRegistry) Register(t *knowledge.Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name] = t
}
