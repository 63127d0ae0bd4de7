// Package executor implements the Executor (C5): it materializes source to
// a temporary file, runs the compiler/runner as a subprocess with a
// timeout, and emits a bounded stream of combined output. The subprocess
// strategy is pluggable behind the Sandbox interface (see SPEC_FULL §4.5);
// ResultCache (C6) wraps whichever Executor is constructed here with the
// identical Execute(ctx, source, writer) contract.
package executor

import (
	"context"
	"io"
	"time"

	"github.com/luis198755/execgateway/internal/errs"
	"github.com/luis198755/execgateway/internal/metrics"
	"github.com/rs/zerolog"
)

// TruncationMarker is appended, additional to MaxOutputLength, whenever a
// run's output reaches the configured bound (spec.md §9 fixes this
// accounting: the marker is always extra, never counted against the
// bound).
const TruncationMarker = "\n... (output truncated)"

// RunOptions carries everything a Sandbox needs to execute one submission.
// LanguageID is forward-compatible with the teacher's multi-language
// registry but is currently fixed to the gateway's single compiled
// language by the caller.
type RunOptions struct {
	LanguageID      string
	Source          string
	MaxOutputLength int
}

// Sandbox is the capability the gateway depends on: given a context,
// source and writer, stream bounded output. Swapping implementations
// (ProcessSandbox, DockerSandbox) is invisible to callers.
type Sandbox interface {
	Run(ctx context.Context, opts RunOptions, out io.Writer) error
}

// Executor is the C5 contract used by ResultCache (C6), which calls it on
// a cache miss or, with caching disabled, on every request.
type Executor struct {
	sandbox         Sandbox
	languageID      string
	maxOutputLength int
	logger          *zerolog.Logger
}

// New builds an Executor bound to a single language and output bound,
// delegating the actual run to sandbox.
func New(sandbox Sandbox, languageID string, maxOutputLength int, logger *zerolog.Logger) *Executor {
	return &Executor{
		sandbox:         sandbox,
		languageID:      languageID,
		maxOutputLength: maxOutputLength,
		logger:          logger,
	}
}

// Execute implements the C5 contract: execute(ctx, source, writer) → error.
// The sandbox's output reaches out through a boundedWriter, so the output
// bound and truncation marker hold whatever Sandbox implementation is used.
func (e *Executor) Execute(ctx context.Context, source string, out io.Writer) error {
	start := time.Now()

	err := e.sandbox.Run(ctx, RunOptions{
		LanguageID:      e.languageID,
		Source:          source,
		MaxOutputLength: e.maxOutputLength,
	}, newBoundedWriter(out, e.maxOutputLength))

	duration := time.Since(start)
	metrics.ExecutionDuration.Observe(float64(duration.Milliseconds()))

	switch {
	case err == nil:
		metrics.ExecutionsTotal.WithLabelValues("success").Inc()
		return nil
	case ctx.Err() == context.DeadlineExceeded:
		metrics.ExecutionsTotal.WithLabelValues("timeout").Inc()
		return errs.Timeout(err)
	case ctx.Err() == context.Canceled:
		metrics.ExecutionsTotal.WithLabelValues("cancelled").Inc()
		return errs.Execution("execution cancelled", err)
	default:
		metrics.ExecutionsTotal.WithLabelValues("runtime_error").Inc()
		if e.logger != nil {
			e.logger.Error().Err(err).Dur("duration", duration).Msg("execution failed")
		}
		return errs.Execution("execution failed", err)
	}
}
