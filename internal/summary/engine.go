package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/signal-exposure/internal/calendar"
	"github.com/roman-kulish/signal-exposure/internal/metrics"
	"github.com/roman-kulish/signal-exposure/internal/retention"
	"github.com/roman-kulish/signal-exposure/internal/signal"
	"github.com/roman-kulish/signal-exposure/internal/storage"
	"github.com/roman-kulish/signal-exposure/internal/timeline"
)

const (
	DefaultMaxLookbackDays        = 3
	DefaultMinDaysBeforeNotifying = 2

	// DefaultHistoryDays matches the retention horizon of readings.
	DefaultHistoryDays = retention.DefaultHistoryDays
)

// ErrAlreadyRunning is returned by Run when another run is in progress.
var ErrAlreadyRunning = errors.New("backfill already running")

// Store is the part of the storage the engine needs.
type Store interface {
	OldestReadingTime(ctx context.Context) (created int64, ok bool, err error)

	InsertTop5(ctx context.Context, day int64, signals []signal.Reading) error
	Top5(ctx context.Context, day int64) (signals []signal.Reading, ok bool, err error)
	Top5Range(ctx context.Context) (storage.DateRange, error)
	ReadTop5(ctx context.Context, opts ...storage.ReaderOption[storage.Top5Record]) (storage.SummaryReader[storage.Top5Record], error)

	InsertDailyStat(ctx context.Context, stat storage.DailyStat) error
	DailyStat(ctx context.Context, day int64) (storage.DailyStat, error)
	DailyStatRange(ctx context.Context) (storage.DateRange, error)
	ReadDailyStats(ctx context.Context, opts ...storage.ReaderOption[storage.DailyStat]) (storage.SummaryReader[storage.DailyStat], error)
}

// TimelineBuilder builds one slot per window.
type TimelineBuilder interface {
	Build(ctx context.Context, windows []timeline.Window) (timeline.Timeline, error)
}

func WithLogger(logger *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "summary"))
	}
}

func WithMetrics(m *metrics.Metrics) func(*Engine) {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock sets the source of the current time.
func WithClock(now func() time.Time) func(*Engine) {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLocation sets the time zone calendar days are taken in.
func WithLocation(loc *time.Location) func(*Engine) {
	return func(e *Engine) {
		e.loc = loc
	}
}

// WithMaxLookbackDays caps how many days the top-5 backfill reaches back on
// an empty table.
func WithMaxLookbackDays(days int) func(*Engine) {
	return func(e *Engine) {
		if days >= 0 {
			e.maxLookbackDays = days
		}
	}
}

// WithMinDaysBeforeNotifying sets how many days of top-5 history are needed
// before new sources are counted.
func WithMinDaysBeforeNotifying(days int) func(*Engine) {
	return func(e *Engine) {
		if days >= 0 {
			e.minDaysBeforeNotifying = days
		}
	}
}

// WithHistoryDays sets how far back daily summaries are computed on an
// empty table. It matches the retention horizon of readings.
func WithHistoryDays(days int) func(*Engine) {
	return func(e *Engine) {
		if days > 0 {
			e.historyDays = days
		}
	}
}

// WithWriteGate serializes runs with the other writers sharing gate.
func WithWriteGate(gate sync.Locker) func(*Engine) {
	return func(e *Engine) {
		e.gate = gate
	}
}

// Engine computes the per-day top-5 and exposure summaries of the days that
// have none yet, up to yesterday. Progress is derived from the stored
// summaries, so a failed run is resumed by the next one.
type Engine struct {
	store   Store
	builder TimelineBuilder

	loc                    *time.Location
	now                    func() time.Time
	maxLookbackDays        int
	minDaysBeforeNotifying int
	historyDays            int

	gate    sync.Locker
	running atomic.Bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewEngine(store Store, builder TimelineBuilder, options ...func(*Engine)) *Engine {
	e := Engine{
		store:                  store,
		builder:                builder,
		loc:                    time.Local,
		now:                    time.Now,
		maxLookbackDays:        DefaultMaxLookbackDays,
		minDaysBeforeNotifying: DefaultMinDaysBeforeNotifying,
		historyDays:            DefaultHistoryDays,
		gate:                   &sync.Mutex{},
		logger:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&e)
	}

	return &e
}

// progress holds the newest computed day of each summary.
type progress struct {
	top5 time.Time
	stat time.Time
}

// Run backfills both summaries up to yesterday and returns the number of new
// sources of yesterday worth notifying, or 0. A call made while another run
// is in progress returns ErrAlreadyRunning without doing anything.
func (e *Engine) Run(ctx context.Context) (newSources int, err error) {
	if !e.running.CompareAndSwap(false, true) {
		return 0, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	e.gate.Lock()
	defer e.gate.Unlock()

	defer func() { e.metrics.BackfillRun(err) }()

	start := time.Now()
	logger := e.logger.With(slog.String("run", uuid.NewString()))

	now := e.now().In(e.loc)
	yesterday := calendar.Yesterday(now)

	p, err := e.progress(ctx, now, yesterday)
	if err != nil {
		return 0, err
	}
	logger.Debug("backfill progress",
		slog.String("top5", p.top5.Format(time.DateOnly)),
		slog.String("dailyStat", p.stat.Format(time.DateOnly)))

	var days int
	for day := calendar.AddDays(calendar.Min(p.top5, p.stat), 1); !day.After(yesterday); day = calendar.AddDays(day, 1) {
		if err = e.backfillDay(ctx, day, p); err != nil {
			return 0, fmt.Errorf("backfilling %s: %w", day.Format(time.DateOnly), err)
		}
		days++
	}

	if newSources, err = e.notifiableNewSources(ctx, yesterday); err != nil {
		return 0, err
	}
	e.metrics.NewSources(newSources)

	logger.Info("backfill completed",
		slog.String("days", humanize.Comma(int64(days))),
		slog.Int("newSources", newSources),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))

	return newSources, nil
}

func (e *Engine) progress(ctx context.Context, now, yesterday time.Time) (p progress, err error) {
	oldest := now
	ms, ok, err := e.store.OldestReadingTime(ctx)
	if err != nil {
		return p, fmt.Errorf("reading oldest reading: %w", err)
	}
	if ok {
		oldest = calendar.FromMillis(ms, e.loc)
	}

	top5, err := e.store.Top5Range(ctx)
	if err != nil {
		return p, fmt.Errorf("reading top 5 range: %w", err)
	}
	if top5.Empty() {
		daysSinceOldest := max(calendar.DaysBetween(oldest, now), 0)
		p.top5 = calendar.AddDays(now, -min(daysSinceOldest, e.maxLookbackDays)-1)
	} else {
		p.top5 = calendar.Midnight(calendar.FromMillis(top5.Newest, e.loc))
	}

	stat, err := e.store.DailyStatRange(ctx)
	if err != nil {
		return p, fmt.Errorf("reading daily stat range: %w", err)
	}
	if stat.Empty() {
		// readings may still be older than the horizon when retention has not run yet
		p.stat = calendar.AddDays(calendar.Max(oldest, calendar.AddDays(yesterday, -e.historyDays)), -1)
	} else {
		p.stat = calendar.Midnight(calendar.FromMillis(stat.Newest, e.loc))
	}

	return p, nil
}

func (e *Engine) backfillDay(ctx context.Context, day time.Time, p progress) error {
	tl, err := e.builder.Build(ctx, timeline.Day(day))
	if err != nil {
		return fmt.Errorf("building timeline: %w", err)
	}

	var topFive []signal.Reading
	computed := false

	if day.After(p.top5) {
		topFive = TopFiveOfDay(tl)
		if err = e.store.InsertTop5(ctx, day.UnixMilli(), topFive); err != nil {
			return fmt.Errorf("storing top 5 signals: %w", err)
		}
		computed = true
		e.metrics.BackfilledDay("top5")
	}

	if day.After(p.stat) {
		if !computed {
			if topFive, _, err = e.store.Top5(ctx, day.UnixMilli()); err != nil {
				return fmt.Errorf("reading top 5 signals: %w", err)
			}
		}

		newSources, err := e.CountNewSources(ctx, day, topFive)
		if err != nil {
			return err
		}

		stat := storage.DailyStat{Day: day.UnixMilli(), Dbm: DailyExposureDbm(tl), NewSources: newSources}
		if err = e.store.InsertDailyStat(ctx, stat); err != nil {
			return fmt.Errorf("storing daily stat: %w", err)
		}
		e.metrics.BackfilledDay("daily_stat")
	}

	return nil
}

func (e *Engine) notifiableNewSources(ctx context.Context, yesterday time.Time) (int, error) {
	topFive, _, err := e.store.Top5(ctx, yesterday.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("reading top 5 signals: %w", err)
	}

	return e.CountNewSources(ctx, yesterday, topFive)
}

// hasHistory reports whether the oldest top-5 record is at least
// minDaysBeforeNotifying days before day.
func (e *Engine) hasHistory(ctx context.Context, day time.Time) (bool, error) {
	r, err := e.store.Top5Range(ctx)
	if err != nil {
		return false, fmt.Errorf("reading top 5 range: %w", err)
	}
	if r.Empty() {
		return false, nil
	}
	oldest := calendar.FromMillis(r.Oldest, e.loc)
	return calendar.DaysBetween(oldest, day) >= e.minDaysBeforeNotifying, nil
}

// CountNewSources returns how many Wi-Fi access points and Bluetooth devices
// of topFive are absent from every top-5 record before day. It is 0 while there is
// less than minDaysBeforeNotifying days of top-5 history.
func (e *Engine) CountNewSources(ctx context.Context, day time.Time, topFive []signal.Reading) (int, error) {
	if len(topFive) == 0 {
		return 0, nil
	}

	day = calendar.Midnight(day.In(e.loc))
	ok, err := e.hasHistory(ctx, day)
	if err != nil || !ok {
		return 0, err
	}

	known, err := e.knownSources(ctx, day)
	if err != nil {
		return 0, err
	}

	var count int
	for _, r := range topFive {
		if !isNewSourceCandidate(r) {
			continue
		}
		if !known.contains(r) {
			count++
		}
	}
	return count, nil
}

// knownSources returns every source of a top-5 record before day.
func (e *Engine) knownSources(ctx context.Context, day time.Time) (known *sourceSet, err error) {
	reader, err := e.store.ReadTop5(ctx, storage.WithEndTime[storage.Top5Record](day))
	if err != nil {
		return nil, fmt.Errorf("reading top 5 history: %w", err)
	}
	defer func() {
		if cErr := reader.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	known = newSourceSet()
	for reader.Next(ctx) {
		for _, r := range reader.Current().Signals {
			known.add(r)
		}
	}
	if err = reader.Error(); err != nil {
		return nil, fmt.Errorf("reading top 5 history: %w", err)
	}
	return known, nil
}
