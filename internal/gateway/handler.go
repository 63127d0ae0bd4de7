// Package gateway implements the Gateway handler (G): HTTP framing for
// the single execution endpoint, orchestrating ClientIdentifier (C2),
// Admission (C3), SafetyFilter (C4) and the cached Executor (C6) per
// spec.md §4.7, plus CORS preflight and best-effort security auditing.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/luis198755/execgateway/internal/audit"
	"github.com/luis198755/execgateway/internal/clientid"
	"github.com/luis198755/execgateway/internal/metrics"
	"github.com/luis198755/execgateway/internal/queue"
	"github.com/luis198755/execgateway/internal/safety"
	"github.com/rs/zerolog"
)

// RateLimiter is the subset of ratelimit.Limiter the handler depends on.
type RateLimiter interface {
	IsAllowed(clientID string) bool
}

// executionRequest is the wire shape of the JSON request body.
type executionRequest struct {
	Code string `json:"code"`
}

// Handler implements the C2->C3->C4->(queue)->C6->C5 orchestration for
// POST /api/execute.
type Handler struct {
	limiter          RateLimiter
	filter           *safety.Filter
	queueManager     *queue.Manager
	auditSink        *audit.Sink
	logger           *zerolog.Logger
	maxCodeLength    int
	executionTimeout time.Duration
	allowedOrigins   []string
}

// Config bundles the handler's dependencies and tunables.
type Config struct {
	Limiter          RateLimiter
	Filter           *safety.Filter
	QueueManager     *queue.Manager
	AuditSink        *audit.Sink
	Logger           *zerolog.Logger
	MaxCodeLength    int
	ExecutionTimeout time.Duration
	AllowedOrigins   []string
}

func New(cfg Config) *Handler {
	return &Handler{
		limiter:          cfg.Limiter,
		filter:           cfg.Filter,
		queueManager:     cfg.QueueManager,
		auditSink:        cfg.AuditSink,
		logger:           cfg.Logger,
		maxCodeLength:    cfg.MaxCodeLength,
		executionTimeout: cfg.ExecutionTimeout,
		allowedOrigins:   cfg.AllowedOrigins,
	}
}

// ServeHTTP implements spec.md §4.7's sequence: CORS/preflight, method
// check, admission, content-type, security headers, streaming setup,
// decode, validation, safety filter, execution.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.applyCORSHeaders(w, r)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := clientid.Identify(r)

	if !h.limiter.IsAllowed(clientID) {
		h.logger.Warn().Str("client_id", clientID).Msg("rate limit exceeded")
		if h.auditSink != nil {
			h.auditSink.RecordRateLimited(clientID)
		}
		metrics.RequestsTotal.WithLabelValues("rate_limited").Inc()
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("Demasiadas peticiones, por favor intenta de nuevo más tarde."))
		return
	}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		metrics.RequestsTotal.WithLabelValues("validation_error").Inc()
		http.Error(w, "Unsupported media type", http.StatusUnsupportedMediaType)
		return
	}

	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	flusher, ok := w.(http.Flusher)
	if !ok {
		metrics.RequestsTotal.WithLabelValues("internal_error").Inc()
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var req executionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RequestsTotal.WithLabelValues("validation_error").Inc()
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateSource(req.Code, h.maxCodeLength); err != nil {
		metrics.RequestsTotal.WithLabelValues("validation_error").Inc()
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Error: %s", err.Error())
		flusher.Flush()
		return
	}

	if hit, name := h.filter.ContainsBlacklistedImport(req.Code); hit {
		if h.auditSink != nil {
			h.auditSink.RecordBlacklistedImport(clientID, name)
		}
		metrics.SafetyFilterHits.Inc()
		metrics.RequestsTotal.WithLabelValues("blacklisted_import").Inc()
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Error: Import prohibido por seguridad: %s", name)
		flusher.Flush()
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.executionTimeout)
	defer cancel()

	sw := &streamingWriter{w: w, flusher: flusher}
	done := make(chan error, 1)
	job := &queue.Job{
		ID:     uuid.NewString(),
		Ctx:    ctx,
		Source: req.Code,
		Writer: sw,
		Done:   done,
	}

	if err := h.queueManager.Submit(ctx, job); err != nil {
		metrics.RequestsTotal.WithLabelValues("internal_error").Inc()
		_, _ = fmt.Fprint(sw, "\nError: execution queue unavailable")
		flusher.Flush()
		return
	}

	select {
	case err := <-done:
		if err != nil {
			metrics.RequestsTotal.WithLabelValues("execution_error").Inc()
			_, _ = fmt.Fprintf(sw, "\nError: %s", errMessage(err))
			flusher.Flush()
			return
		}
		metrics.RequestsTotal.WithLabelValues("ok").Inc()
	case <-ctx.Done():
		metrics.RequestsTotal.WithLabelValues("execution_error").Inc()
		_, _ = fmt.Fprint(sw, "\nError: execution timed out")
		flusher.Flush()
	}
}

// validateSource implements spec.md §4.7 step 6.
func validateSource(code string, maxLen int) error {
	if code == "" {
		return errEmptySource
	}
	if len(code) > maxLen {
		return errSourceTooLong
	}
	return nil
}

type sourceError string

func (e sourceError) Error() string { return string(e) }

const (
	errEmptySource   sourceError = "source code must not be empty"
	errSourceTooLong sourceError = "source code exceeds maximum allowed length"
)

func errMessage(err error) string {
	if err == context.DeadlineExceeded {
		return "execution timed out"
	}
	return err.Error()
}

// setSecurityHeaders applies the fixed header set spec.md §6 requires on
// every response.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")
}

// applyCORSHeaders echoes Origin back when it matches AllowedOrigins (or
// the wildcard), per SPEC_FULL §4.7.
func (h *Handler) applyCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	if !h.originAllowed(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (h *Handler) originAllowed(origin string) bool {
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// streamingWriter flushes after every write, satisfying spec.md's "each
// chunk followed by a flush" streaming contract.
type streamingWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (s *streamingWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.flusher.Flush()
	return n, err
}
