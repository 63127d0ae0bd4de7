// Package server wires the gateway's components together (S) and owns
// the HTTP listener: static file serving with an index.html fallback,
// health and metrics endpoints, and graceful shutdown, adapted from the
// teacher's internal/server/server.go.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/luis198755/execgateway/internal/audit"
	"github.com/luis198755/execgateway/internal/cache"
	"github.com/luis198755/execgateway/internal/config"
	"github.com/luis198755/execgateway/internal/executor"
	"github.com/luis198755/execgateway/internal/gateway"
	"github.com/luis198755/execgateway/internal/queue"
	"github.com/luis198755/execgateway/internal/ratelimit"
	"github.com/luis198755/execgateway/internal/safety"
	"github.com/luis198755/execgateway/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Server struct {
	conf       *config.Config
	logger     *zerolog.Logger
	httpServer *http.Server

	limiter     *ratelimit.Limiter
	resultCache *cache.ResultCache
	queue       *queue.Manager
	workers     []*worker.Worker
	auditSink   *audit.Sink
	dockerSb    *executor.DockerSandbox

	cancelFunc context.CancelFunc
}

// New assembles every component per SPEC_FULL §4: config -> logger ->
// safety filter -> rate limiter -> executor (backend selected by
// SandboxBackend) -> cache -> queue/workers -> gateway handler -> mux.
func New(conf *config.Config, logger *zerolog.Logger) (*Server, error) {
	auditSink, err := audit.New(context.Background(), conf.AuditDatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit sink: %w", err)
	}

	filter := safety.New(safety.DefaultBlacklist)

	limiter := ratelimit.New(conf.MaxRequestsPerMinute, 0, conf.IdleBucketTTL)
	limiter.StartIdleSweeper()

	var sandbox executor.Sandbox
	var dockerSb *executor.DockerSandbox
	switch conf.SandboxBackend {
	case "docker":
		dockerCfg := executor.DefaultDockerConfig()
		dockerSb, err = executor.NewDockerSandbox(dockerCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create docker sandbox: %w", err)
		}
		sandbox = dockerSb
	default:
		sandbox = executor.NewProcessSandbox(conf.RunnerExecutablePath, conf.TempDir, ".go")
	}

	exec := executor.New(sandbox, "go", conf.MaxOutputLength, logger)
	resultCache := cache.New(exec, conf.MaxCacheSize, conf.CacheTTL)

	q := queue.NewManager(conf.QueueCapacity)
	workers := make([]*worker.Worker, conf.WorkerPoolSize)
	for i := range workers {
		workers[i] = worker.NewWorker(i, resultCache, q, logger)
	}

	handler := gateway.New(gateway.Config{
		Limiter:          limiter,
		Filter:           filter,
		QueueManager:     q,
		AuditSink:        auditSink,
		Logger:           logger,
		MaxCodeLength:    conf.MaxCodeLength,
		ExecutionTimeout: conf.ExecutionTimeout,
		AllowedOrigins:   conf.AllowedOrigins,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/execute", handler.ServeHTTP)
	mux.Handle("/", staticFileHandler(conf.StaticFilesDir))

	httpServer := &http.Server{
		Addr:         conf.Host + ":" + conf.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: conf.ExecutionTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		conf:        conf,
		logger:      logger,
		httpServer:  httpServer,
		limiter:     limiter,
		resultCache: resultCache,
		queue:       q,
		workers:     workers,
		auditSink:   auditSink,
		dockerSb:    dockerSb,
	}, nil
}

// staticFileHandler serves StaticFilesDir, falling back to index.html for
// any path that doesn't resolve to a real file, per spec.md §6.
func staticFileHandler(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")

	if s.dockerSb != nil {
		if err := s.dockerSb.EnsureImage(context.Background()); err != nil {
			return fmt.Errorf("failed to ensure docker sandbox image: %w", err)
		}
	}

	s.resultCache.StartCleaner()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	for _, w := range s.workers {
		go w.Start(ctx)
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.limiter.Stop()
	s.resultCache.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	if s.auditSink != nil {
		_ = s.auditSink.Close()
	}

	return nil
}
