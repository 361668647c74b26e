package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// PendingProcessor is the sweep capability the worker drives.
type PendingProcessor interface {
	ProcessPending(ctx context.Context, limit int) (SweepResult, error)
}

// Worker periodically sweeps pending captures. Intake normally schedules
// enrichment directly; the worker picks up what that path missed, such as
// captures created while the server was down or background runs cut off by a
// crash and reset to pending.
type Worker struct {
	pipeline PendingProcessor
	interval time.Duration
	limit    int
	logger   *slog.Logger
}

// NewWorker creates a Worker. If interval <= 0 it defaults to 5 minutes.
func NewWorker(pipeline PendingProcessor, interval time.Duration, limit int) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{
		pipeline: pipeline,
		interval: interval,
		limit:    limit,
		logger:   slog.Default(),
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		res, err := w.pipeline.ProcessPending(ctx, w.limit)
		if err != nil {
			w.logger.Error("sweep iteration failed", "error", err)
			continue
		}
		if res.Processed > 0 || res.Failed > 0 {
			w.logger.Info("sweep picked up stale captures", "processed", res.Processed, "failed", res.Failed)
		}
	}
}
