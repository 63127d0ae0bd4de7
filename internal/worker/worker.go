// Package worker runs the fixed-size pool (W) that pulls Jobs off the
// queue and drives them through ResultCache.Execute, adapted from the
// teacher's worker.Worker.
package worker

import (
	"context"

	"github.com/luis198755/execgateway/internal/cache"
	"github.com/luis198755/execgateway/internal/metrics"
	"github.com/luis198755/execgateway/internal/queue"
	"github.com/rs/zerolog"
)

type Worker struct {
	id      int
	cache   *cache.ResultCache
	manager *queue.Manager
	logger  *zerolog.Logger
}

func NewWorker(id int, resultCache *cache.ResultCache, manager *queue.Manager, logger *zerolog.Logger) *Worker {
	return &Worker{id: id, cache: resultCache, manager: manager, logger: logger}
}

// Start runs the worker's pull loop until ctx is cancelled, typically as
// part of a graceful shutdown.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Int("worker_id", w.id).Msg("worker started")
	for {
		select {
		case job := <-w.manager.NextJob():
			metrics.ActiveWorkers.Inc()
			w.processJob(job)
			metrics.ActiveWorkers.Dec()
			w.manager.UpdateQueueMetric()
		case <-ctx.Done():
			w.logger.Info().Int("worker_id", w.id).Msg("worker stopping")
			return
		}
	}
}

func (w *Worker) processJob(job *queue.Job) {
	w.logger.Debug().Int("worker_id", w.id).Str("job_id", job.ID).Msg("processing job")
	err := w.cache.Execute(job.Ctx, job.Source, job.Writer)
	job.Done <- err
}
