// Package poller runs the background polling workers, one per
// configured channel row, with jittered fixed intervals and backoff on
// provider failure.
package poller

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CycleFunc performs one poll cycle: fetch, dispatch, acknowledge. A
// returned error leaves the provider cursor unadvanced so the next cycle
// redelivers the batch.
type CycleFunc func(ctx context.Context) error

// DelayHinter is implemented by provider errors that carry a declared
// retry delay. The worker honors the hint over its own backoff.
type DelayHinter interface {
	RetryDelayHint() time.Duration
}

// Worker polls one channel row on a fixed interval. Workers are fully
// independent; shutdown is cooperative between cycles, never mid-call.
type Worker struct {
	logger   *slog.Logger
	id       uuid.UUID
	interval time.Duration
	retryCap time.Duration
	cycle    CycleFunc
}

func NewWorker(log *slog.Logger, id uuid.UUID, interval, retryCap time.Duration, cycle CycleFunc) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	if retryCap <= 0 {
		retryCap = 5 * time.Minute
	}
	return &Worker{
		logger:   log.With(slog.String("component", "poll-worker"), slog.String("channel_id", id.String())),
		id:       id,
		interval: interval,
		retryCap: retryCap,
		cycle:    cycle,
	}
}

// Run loops until ctx is cancelled. The first cycle is delayed by a
// deterministic per-worker jitter so a fleet restart does not hit the
// provider in one burst.
func (w *Worker) Run(ctx context.Context) {
	if !sleepCtx(ctx, w.startupJitter()) {
		return
	}

	backoff := time.Duration(0)
	for {
		err := w.cycle(ctx)
		switch {
		case err == nil:
			backoff = 0
		case errors.Is(err, context.Canceled):
			return
		default:
			backoff = w.nextBackoff(backoff, err)
			w.logger.Error("poll cycle failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return
			}
			continue
		}

		if !sleepCtx(ctx, w.interval) {
			return
		}
	}
}

// startupJitter derives a stable delay in [0, interval) from the worker
// id, so each worker keeps its slot across restarts.
func (w *Worker) startupJitter() time.Duration {
	seed := binary.BigEndian.Uint64(w.id[:8])
	return time.Duration(seed % uint64(w.interval))
}

func (w *Worker) nextBackoff(current time.Duration, err error) time.Duration {
	var hinter DelayHinter
	if errors.As(err, &hinter) {
		if hint := hinter.RetryDelayHint(); hint > 0 {
			if hint > w.retryCap {
				return w.retryCap
			}
			return hint
		}
	}
	if current <= 0 {
		return w.interval
	}
	next := current * 2
	if next > w.retryCap {
		return w.retryCap
	}
	return next
}

// sleepCtx waits for d, returning false when ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
