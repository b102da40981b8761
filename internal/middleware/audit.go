// audit.go captures authenticated write requests under /api/ as action
// records and hands them to the injected audit sink. Capture never interferes
// with the request: body parsing is best effort and sink failures are logged
// and swallowed.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/caseflow/caseflow/internal/audit"
	"github.com/caseflow/caseflow/internal/db/models"
	"github.com/caseflow/caseflow/internal/redact"
)

const (
	// TenantContextHeader optionally names the client (tenant) a request is
	// acting within; recorded verbatim in the action record envelope.
	TenantContextHeader = "X-Client-Context"

	// maxIPLength matches the inet column width (IPv6 with zone).
	maxIPLength = 45
	// maxUserAgentLength bounds the stored User-Agent string.
	maxUserAgentLength = 256
	// maxBodyCapture bounds how much of a request body is read for the audit
	// snapshot.
	maxBodyCapture = 64 * 1024
)

// AuditMiddleware records authenticated write operations.
//
// A request is captured when all of the following hold:
//   - its path is under /api/
//   - its method is POST, PUT, PATCH, or DELETE
//   - an authenticated actor is present in the context
//
// Everything else (reads, health checks, unauthenticated traffic, OPTIONS
// preflight) passes through untouched. The record carries the final response
// status, so the middleware must be registered after auth and immediately
// before the handlers.
func AuditMiddleware(sink audit.Sink, entities *audit.EntityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !shouldCapture(c) {
			c.Next()
			return
		}

		// Snapshot the body before the handler consumes it.
		body := captureBody(c)
		start := time.Now()

		c.Next()

		actor, ok := ActorFromContext(c)
		if !ok {
			// Authentication may have been rejected mid-chain.
			return
		}

		actorID := actor.ID
		ref := entities.Resolve(c.FullPath(), c.Request.URL.Path, c.Param)

		rec := &models.ActionRecord{
			ID:      uuid.New().String(),
			ActorID: &actorID,
			Kind:    models.ActionKindForMethod(c.Request.Method),
			Request: &models.RequestContext{
				Method:        c.Request.Method,
				Path:          c.Request.URL.Path,
				Query:         c.Request.URL.RawQuery,
				TenantContext: tenantContext(c),
				Body:          body,
			},
			StatusCode: c.Writer.Status(),
			ElapsedMS:  time.Since(start).Milliseconds(),
			CreatedAt:  time.Now(),
		}
		if ref.Type != "" {
			rec.EntityType = &ref.Type
		}
		if ref.ID != "" {
			rec.EntityID = &ref.ID
		}
		if ip := clientAddress(c); ip != "" {
			rec.IPAddress = &ip
		}
		if ua := truncate(c.Request.UserAgent(), maxUserAgentLength); ua != "" {
			rec.UserAgent = &ua
		}

		if err := sink.Record(c.Request.Context(), rec); err != nil {
			slog.Error("audit capture failed", "error", err, "path", c.Request.URL.Path)
		}
	}
}

func shouldCapture(c *gin.Context) bool {
	if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return false
	}
	switch c.Request.Method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	default:
		return false
	}
}

// captureBody reads up to maxBodyCapture bytes of a JSON request body,
// restores the full body for the handler, and returns a redacted decoding.
// Returns nil for empty, non-JSON, unparseable, or over-limit bodies.
func captureBody(c *gin.Context) any {
	orig := c.Request.Body
	if orig == nil {
		return nil
	}
	if ct := c.ContentType(); ct != "" && ct != "application/json" {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(orig, maxBodyCapture+1))
	// The handler must see every byte regardless of capture: the bytes read
	// here are stitched back in front of whatever remains past the limit.
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), orig))
	if err != nil {
		return nil
	}

	if len(raw) == 0 || len(raw) > maxBodyCapture {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return redact.Redact(decoded)
}

// tenantContext reads the tenant the caller claims to act within, from the
// X-Client-Context header or the client_id query parameter.
func tenantContext(c *gin.Context) string {
	if v := c.GetHeader(TenantContextHeader); v != "" {
		return v
	}
	return c.Query("client_id")
}

// clientAddress prefers the first X-Forwarded-For hop, falling back to gin's
// ClientIP. The value is truncated to the inet column width.
func clientAddress(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return truncate(first, maxIPLength)
		}
	}
	return truncate(c.ClientIP(), maxIPLength)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
