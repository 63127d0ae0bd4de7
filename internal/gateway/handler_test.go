package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/luis198755/execgateway/internal/cache"
	"github.com/luis198755/execgateway/internal/executor"
	"github.com/luis198755/execgateway/internal/queue"
	"github.com/luis198755/execgateway/internal/ratelimit"
	"github.com/luis198755/execgateway/internal/safety"
	"github.com/luis198755/execgateway/internal/worker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// scriptedSandbox lets tests script output or a deliberate hang so the
// gateway handler's streaming/timeout framing can be exercised without a
// real compiler toolchain.
type scriptedSandbox struct {
	output string
	hang   bool
}

func (s *scriptedSandbox) Run(ctx context.Context, opts executor.RunOptions, out io.Writer) error {
	if s.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	_, err := out.Write([]byte(s.output))
	return err
}

// newTestHandler wires a full handler with a single worker draining the
// queue, mirroring how internal/server assembles the gateway.
func newTestHandler(t *testing.T, sb *scriptedSandbox, maxRPM int, execTimeout time.Duration) *Handler {
	t.Helper()
	logger := zerolog.Nop()

	exec := executor.New(sb, "go", 10000, &logger)
	rc := cache.New(exec, 100, time.Minute)

	manager := queue.NewManager(8)
	w := worker.NewWorker(1, rc, manager, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Start(ctx)

	limiter := ratelimit.New(maxRPM, 0, 0)

	return New(Config{
		Limiter:          limiter,
		Filter:           safety.New(safety.DefaultBlacklist),
		QueueManager:     manager,
		AuditSink:        nil,
		Logger:           &logger,
		MaxCodeLength:    10000,
		ExecutionTimeout: execTimeout,
		AllowedOrigins:   []string{"*"},
	})
}

func postExecute(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTPHelloWorld(t *testing.T) {
	h := newTestHandler(t, &scriptedSandbox{output: "Hello, World!\n"}, 30, 10*time.Second)

	rec := postExecute(t, h, `{"code":"package main\nimport \"fmt\"\nfunc main(){fmt.Println(\"Hello, World!\")}"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hello, World!\n")
}

func TestServeHTTPForbiddenImport(t *testing.T) {
	h := newTestHandler(t, &scriptedSandbox{}, 30, 10*time.Second)

	rec := postExecute(t, h, `{"code":"package main\nimport \"os/exec\"\nfunc main(){}"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Error: Import prohibido por seguridad: os/exec", rec.Body.String())
}

func TestServeHTTPRateLimited(t *testing.T) {
	h := newTestHandler(t, &scriptedSandbox{output: "ok"}, 2, 10*time.Second)

	body := `{"code":"package main\nfunc main(){}"}`
	rec1 := postExecute(t, h, body)
	rec2 := postExecute(t, h, body)
	rec3 := postExecute(t, h, body)

	assert.Equal(t, http.StatusOK, rec1.Code)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, http.StatusTooManyRequests, rec3.Code)
	assert.True(t, strings.HasPrefix(rec3.Body.String(), "Demasiadas peticiones"))
}

func TestServeHTTPOutputTruncation(t *testing.T) {
	h := newTestHandler(t, &scriptedSandbox{output: strings.Repeat("A", 20000)}, 30, 10*time.Second)

	rec := postExecute(t, h, `{"code":"package main\nfunc main(){}"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Len(t, body, 10000+len(executor.TruncationMarker))
	assert.True(t, strings.HasSuffix(body, executor.TruncationMarker))
}

func TestServeHTTPCacheHitIsByteIdentical(t *testing.T) {
	sb := &scriptedSandbox{output: "cached-output"}
	h := newTestHandler(t, sb, 30, 10*time.Second)

	body := `{"code":"package main\nfunc main(){}"}`
	rec1 := postExecute(t, h, body)
	rec2 := postExecute(t, h, body)

	assert.Equal(t, rec1.Body.String(), rec2.Body.String())
}

func TestServeHTTPTimeout(t *testing.T) {
	h := newTestHandler(t, &scriptedSandbox{hang: true}, 30, 200*time.Millisecond)

	rec := postExecute(t, h, `{"code":"package main\nfunc main(){for{}}"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error: ")
}

func TestServeHTTPRejectsNonPostMethod(t *testing.T) {
	h := newTestHandler(t, &scriptedSandbox{}, 30, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/api/execute", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeHTTPRejectsWrongContentType(t *testing.T) {
	h := newTestHandler(t, &scriptedSandbox{}, 30, time.Second)

	req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestServeHTTPEmptySourceIsValidationError(t *testing.T) {
	h := newTestHandler(t, &scriptedSandbox{}, 30, time.Second)

	rec := postExecute(t, h, `{"code":""}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error: ")
}

func TestServeHTTPAppliesSecurityHeaders(t *testing.T) {
	h := newTestHandler(t, &scriptedSandbox{output: "ok"}, 30, time.Second)

	rec := postExecute(t, h, `{"code":"package main\nfunc main(){}"}`)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
}

func TestServeHTTPOptionsPreflight(t *testing.T) {
	h := newTestHandler(t, &scriptedSandbox{}, 30, time.Second)

	req := httptest.NewRequest(http.MethodOptions, "/api/execute", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
