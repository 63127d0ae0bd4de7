// Package queue buffers submitted Jobs between the gateway handler (G)
// and the worker pool (W), bounding how many executions can be in flight
// at once, adapted from the teacher's queue.Manager.
package queue

import (
	"context"
	"io"

	"github.com/luis198755/execgateway/internal/metrics"
)

// Job is one submission in flight: enough for a worker to run it through
// ResultCache.Execute and report completion back to the request
// goroutine that's still holding the HTTP response writer.
type Job struct {
	ID     string
	Ctx    context.Context
	Source string
	Writer io.Writer
	Done   chan error
}

// Manager is a bounded FIFO of Jobs. Submit blocks once the queue is
// full, so backpressure is visible to the caller rather than silently
// dropped — the gateway handler is expected to race Submit against the
// request's own deadline.
type Manager struct {
	jobQueue chan *Job
}

func NewManager(capacity int) *Manager {
	return &Manager{jobQueue: make(chan *Job, capacity)}
}

// Submit enqueues job, blocking until there's room or ctx is done.
func (m *Manager) Submit(ctx context.Context, job *Job) error {
	select {
	case m.jobQueue <- job:
		metrics.QueueDepth.Set(float64(len(m.jobQueue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) NextJob() <-chan *Job {
	return m.jobQueue
}

func (m *Manager) UpdateQueueMetric() {
	metrics.QueueDepth.Set(float64(len(m.jobQueue)))
}
