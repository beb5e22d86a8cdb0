package retention

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultInterval = 24 * time.Hour

	maxAttempts    = 5
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// Runner reclaims storage once on start and then on every interval.
type Runner struct {
	manager  *Manager
	interval time.Duration
	backoff  time.Duration
	now      func() time.Time
}

func NewRunner(manager *Manager, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{manager: manager, interval: interval, backoff: initialBackoff, now: time.Now}
}

// Run blocks until ctx is cancelled. A failed pass is retried with
// exponential backoff before waiting for the next interval.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.reclaimWithRetry(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) reclaimWithRetry(ctx context.Context) {
	backoff := r.backoff

	for attempt := 1; ; attempt++ {
		_, err := r.manager.Reclaim(ctx, r.now())
		if err == nil || ctx.Err() != nil {
			return
		}

		logger := r.manager.logger.With(slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if attempt == maxAttempts {
			logger.Error("retention pass failed, giving up until the next interval")
			return
		}
		logger.Warn("retention pass failed, retrying", slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, maxBackoff)
	}
}
