// Package middleware implements the request-auditing gin middleware
// (C13): request-id/session assignment, actor/IP extraction, SHA-256
// body hashing, and injection of the audit response headers every
// downstream handler and audit-log entry relies on.
//
// Grounded on original_source/shared/middleware/audit_middleware.py for
// the exact header names, fallback precedence, and hashing behavior,
// and on this system's teacher pkg/api/middleware.go for the
// gin-middleware-as-a-closure shape.
package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context is the audit context enriched onto every request, retrievable
// by handlers via FromContext.
type Context struct {
	RequestID    string
	SessionID    string
	UserID       string
	IPAddress    string
	Timestamp    time.Time
	RequestHash  string
	RequestBody  string // populated only when Config.Debug is set
	ResponseHash string
	ResponseBody string // populated only when Config.Debug is set
	DurationMS   float64
}

const contextKey = "audit_context"

// Config tunes the audit middleware.
type Config struct {
	Enabled     bool
	Debug       bool   // when true, retain full request/response bodies
	DefaultUser string // fallback when X-User-ID is absent
}

// DefaultConfig mirrors the reference middleware's defaults.
func DefaultConfig() Config {
	return Config{Enabled: true, Debug: false, DefaultUser: "appliance-admin"}
}

// responseRecorder wraps gin's ResponseWriter to capture the bytes
// written so they can be hashed once the handler completes.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Audit returns gin middleware that enriches every request with an
// audit Context and stamps X-Request-ID / X-Audit-Timestamp onto the
// response.
func Audit(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		requestID := uuid.NewString()
		start := time.Now()

		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			userID = cfg.DefaultUser
		}
		sessionID := c.GetHeader("X-Session-ID")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		ipAddress := resolveIP(c)

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = readAndRestoreBody(c)
		}
		requestHash := hashContent(requestBody)

		audit := &Context{
			RequestID: requestID, SessionID: sessionID, UserID: userID,
			IPAddress: ipAddress, Timestamp: start, RequestHash: requestHash,
		}
		if cfg.Debug {
			audit.RequestBody = string(requestBody)
		}
		c.Set(contextKey, audit)

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Header("X-Request-ID", requestID)
		c.Header("X-Audit-Timestamp", strconv.FormatInt(start.Unix(), 10))

		c.Next()

		audit.DurationMS = float64(time.Since(start).Microseconds()) / 1000
		audit.ResponseHash = hashContent(recorder.body.Bytes())
		if cfg.Debug {
			audit.ResponseBody = recorder.body.String()
		}
	}
}

// resolveIP follows the reference middleware's proxy-header precedence:
// X-Forwarded-For (first hop only), then X-Real-IP, then the socket peer.
func resolveIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if real := c.GetHeader("X-Real-IP"); real != "" {
		return real
	}
	return c.ClientIP()
}

func readAndRestoreBody(c *gin.Context) ([]byte, error) {
	body, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FromContext retrieves the audit Context set by Audit, if present.
func FromContext(c *gin.Context) (*Context, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	ac, ok := v.(*Context)
	return ac, ok
}
