package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/signal-exposure/internal/calendar"
	"github.com/roman-kulish/signal-exposure/internal/operator"
	"github.com/roman-kulish/signal-exposure/internal/retention"
	"github.com/roman-kulish/signal-exposure/internal/signal"
	"github.com/roman-kulish/signal-exposure/internal/summary"
)

// Scheduler drives the daily summary backfill and the retention runner.
// Both write through the same gate, configured on the engine and manager.
type Scheduler struct {
	engine   *summary.Engine
	runner   *retention.Runner
	resolver *operator.Resolver
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

func NewScheduler(engine *summary.Engine, runner *retention.Runner, resolver *operator.Resolver, interval time.Duration, loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		engine:   engine,
		runner:   runner,
		resolver: resolver,
		interval: interval,
		loc:      loc,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runner.Run(ctx) })
	g.Go(func() error { return s.backfillLoop(ctx) })
	return g.Wait()
}

func (s *Scheduler) backfillLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Backfill(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Backfill runs the engine once and reports yesterday's new sources. Errors
// are logged; the next run resumes where this one stopped.
func (s *Scheduler) Backfill(ctx context.Context) {
	count, err := s.engine.Run(ctx)
	switch {
	case errors.Is(err, summary.ErrAlreadyRunning):
		s.logger.Debug("backfill skipped, another run is in progress")
		return
	case err != nil:
		if ctx.Err() == nil {
			s.logger.Error("backfill failed", slog.String("error", err.Error()))
		}
		return
	case count == 0:
		return
	}

	yesterday := calendar.Yesterday(s.now().In(s.loc))
	s.logger.Info("new sources detected",
		slog.String("day", yesterday.Format(time.DateOnly)),
		slog.Int("count", count))

	topFive, _, err := s.engine.Top5(ctx, yesterday)
	if err != nil {
		s.logger.Warn("reading top 5 signals", slog.String("error", err.Error()))
		return
	}
	for i, r := range topFive {
		s.logger.Info("top signal", append([]any{slog.Int("rank", i+1)}, s.describe(ctx, r)...)...)
	}
}

func (s *Scheduler) describe(ctx context.Context, r signal.Reading) []any {
	attrs := []any{
		slog.String("technology", r.Technology.String()),
		slog.Int("dbm", r.Dbm),
	}

	switch {
	case r.WiFi != nil:
		attrs = append(attrs, slog.String("ssid", r.WiFi.SSID), slog.String("bssid", r.WiFi.BSSID))
	case r.Bluetooth != nil:
		attrs = append(attrs, slog.String("name", r.Bluetooth.Name), slog.String("address", r.Bluetooth.Address))
	default:
		if s.resolver == nil {
			break
		}
		name, ok, err := s.resolver.NameOf(ctx, r)
		if err != nil {
			s.logger.Debug("resolving operator", slog.String("error", err.Error()))
			break
		}
		if ok {
			attrs = append(attrs, slog.String("operator", name))
		}
	}
	return attrs
}
