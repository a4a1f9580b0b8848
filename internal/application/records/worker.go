package records

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanwahyu/labpulse/internal/pkg/logger"
)

// Worker polls for uploading records and drives them through the
// pipeline. Multiple workers may run against the same storage; the
// atomic claim keeps two off the same record. A panic inside one
// record leaves it in processing for the watchdog sweep; it is never
// silently marked completed.
type Worker struct {
	Svc          *Service
	Log          *logger.Logger
	PollInterval time.Duration
	BatchSize    int

	// Watchdog knobs: processing records older than StaleAfter get
	// swept to failed every SweepInterval.
	SweepInterval time.Duration
	StaleAfter    time.Duration
}

func (w *Worker) pollInterval() time.Duration {
	if w.PollInterval <= 0 {
		return 2 * time.Second
	}
	return w.PollInterval
}

// Run blocks until ctx is done, picking up pending records every tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.Log.Error("worker tick panic", "panic", fmt.Sprint(r))
		}
	}()
	n, err := w.Svc.ProcessPending(ctx, w.BatchSize)
	if err != nil {
		w.Log.Warn("process pending failed", "error", err)
		return
	}
	if n > 0 {
		w.Log.Debug("processed records", "count", n)
	}
}

// RunSweeper blocks until ctx is done, failing stale processing records
// on a fixed cadence.
func (w *Worker) RunSweeper(ctx context.Context) error {
	interval := w.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	staleAfter := w.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			swept, err := w.Svc.SweepStale(ctx, staleAfter)
			if err != nil {
				w.Log.Warn("watchdog sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				w.Log.Warn("swept stale records", "count", swept)
			}
		}
	}
}
