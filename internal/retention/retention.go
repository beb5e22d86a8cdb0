package retention

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/signal-exposure/internal/calendar"
	"github.com/roman-kulish/signal-exposure/internal/metrics"
	"github.com/roman-kulish/signal-exposure/internal/storage"
)

const (
	DefaultHistoryDays     = 730
	DefaultTop5HistoryDays = 3650
)

// Store is the part of the storage the manager needs.
type Store interface {
	OldestReadingTime(ctx context.Context) (created int64, ok bool, err error)
	Watermark(ctx context.Context) (watermark int64, ok bool, err error)
	PurgeBefore(ctx context.Context, req storage.PurgeRequest) (deleted int64, err error)
}

func WithLogger(logger *slog.Logger) func(*Manager) {
	return func(m *Manager) {
		m.logger = logger.With(slog.String("component", "retention"))
	}
}

func WithMetrics(mt *metrics.Metrics) func(*Manager) {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithHistory sets how many days of readings and of top-5 records are kept.
func WithHistory(historyDays, top5HistoryDays int) func(*Manager) {
	return func(m *Manager) {
		if historyDays > 0 {
			m.historyDays = historyDays
		}
		if top5HistoryDays > 0 {
			m.top5HistoryDays = top5HistoryDays
		}
	}
}

// WithLocation sets the time zone days are aligned in.
func WithLocation(loc *time.Location) func(*Manager) {
	return func(m *Manager) {
		m.loc = loc
	}
}

// WithWriteGate serializes purges with the other writers sharing gate.
func WithWriteGate(gate sync.Locker) func(*Manager) {
	return func(m *Manager) {
		m.gate = gate
	}
}

// Manager deletes data that fell out of the retention horizon.
type Manager struct {
	store           Store
	historyDays     int
	top5HistoryDays int
	loc             *time.Location
	gate            sync.Locker
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

func NewManager(store Store, options ...func(*Manager)) *Manager {
	m := Manager{
		store:           store,
		historyDays:     DefaultHistoryDays,
		top5HistoryDays: DefaultTop5HistoryDays,
		loc:             time.Local,
		gate:            &sync.Mutex{},
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Watermark returns the oldest retained time. Until the first purge it is
// the creation time of the oldest reading; ok is false when there is neither.
func (m *Manager) Watermark(ctx context.Context) (watermark time.Time, ok bool, err error) {
	ms, ok, err := m.store.Watermark(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading watermark: %w", err)
	}
	if !ok {
		if ms, ok, err = m.store.OldestReadingTime(ctx); err != nil {
			return time.Time{}, false, fmt.Errorf("reading oldest reading: %w", err)
		}
	}
	if !ok {
		return time.Time{}, false, nil
	}
	return calendar.FromMillis(ms, m.loc), true, nil
}

// Reclaim deletes readings, auxiliary rows and daily summaries older than
// the cutoff, and top-5 records older than the top-5 horizon. The cutoff is
// the later of the history horizon and the watermark, rounded down to local
// midnight, and becomes the new watermark. It returns the number of deleted rows.
func (m *Manager) Reclaim(ctx context.Context, now time.Time) (deleted int64, err error) {
	m.gate.Lock()
	defer m.gate.Unlock()

	start := time.Now()
	now = now.In(m.loc)

	cutoff := calendar.AddDays(now, -m.historyDays)
	watermark, ok, err := m.Watermark(ctx)
	if err != nil {
		m.metrics.Reclaim(0, time.Time{}, err)
		return 0, err
	}
	if ok {
		cutoff = calendar.Max(cutoff, watermark)
	}
	cutoff = calendar.Midnight(cutoff)
	top5Cutoff := calendar.AddDays(now, -m.top5HistoryDays)

	deleted, err = m.store.PurgeBefore(ctx, storage.PurgeRequest{
		Watermark:  cutoff.UnixMilli(),
		Cutoff:     cutoff.UnixMilli(),
		Top5Cutoff: top5Cutoff.UnixMilli(),
	})
	m.metrics.Reclaim(deleted, cutoff, err)
	if err != nil {
		return 0, fmt.Errorf("purging data before %s: %w", cutoff.Format(time.DateOnly), err)
	}

	m.logger.Info("retention pass completed",
		slog.String("deleted", humanize.Comma(deleted)),
		slog.String("cutoff", cutoff.Format(time.DateOnly)),
		slog.String("top5Cutoff", top5Cutoff.Format(time.DateOnly)),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))

	return deleted, nil
}
