package timeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/signal-exposure/internal/metrics"
	"github.com/roman-kulish/signal-exposure/internal/signal"
)

// Aggregator returns one reading per distinct antenna of a technology seen
// in [from, to).
type Aggregator interface {
	Aggregate(ctx context.Context, tech signal.Technology, from, to time.Time) ([]signal.Reading, error)
}

// WithLogger sets the builder logger.
func WithLogger(logger *slog.Logger) func(*Builder) {
	return func(b *Builder) {
		b.logger = logger.With(slog.String("component", "timeline"))
	}
}

// WithParallelism bounds the number of windows aggregated at the same time.
func WithParallelism(n int) func(*Builder) {
	return func(b *Builder) {
		if n > 0 {
			b.parallelism = n
		}
	}
}

// WithMetrics sets the collectors build activity is reported to.
func WithMetrics(m *metrics.Metrics) func(*Builder) {
	return func(b *Builder) {
		b.metrics = m
	}
}

// Builder turns a list of windows into a Timeline. Windows are aggregated
// concurrently; the builder holds no mutable state and is safe for
// concurrent use.
type Builder struct {
	aggregator  Aggregator
	logger      *slog.Logger
	parallelism int
	metrics     *metrics.Metrics
}

func NewBuilder(aggregator Aggregator, options ...func(*Builder)) *Builder {
	b := Builder{
		aggregator:  aggregator,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		parallelism: runtime.GOMAXPROCS(0),
	}

	for _, option := range options {
		option(&b)
	}

	return &b
}

// Build returns one slot per window, in the order of windows.
func (b *Builder) Build(ctx context.Context, windows []Window) (Timeline, error) {
	start := time.Now()
	timeline, err := b.build(ctx, windows)
	b.metrics.TimelineBuild("full", time.Since(start), false, err)
	return timeline, err
}

func (b *Builder) build(ctx context.Context, windows []Window) (Timeline, error) {
	timeline := make(Timeline, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)

	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			slot, err := b.BuildSlot(gctx, w)
			if err != nil {
				return err
			}
			timeline[i] = slot
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.logger.Debug("timeline built", slog.Int("windows", len(windows)))
	return timeline, nil
}

// BuildSlot aggregates every technology over one window.
func (b *Builder) BuildSlot(ctx context.Context, w Window) (*Slot, error) {
	raw := make(map[signal.Category][]signal.Reading, len(signal.Categories))

	for _, c := range signal.Categories {
		for _, tech := range c.Technologies() {
			readings, err := b.aggregator.Aggregate(ctx, tech, w.From, w.To)
			if err != nil {
				return nil, fmt.Errorf("aggregating %s over %s: %w", tech, w, err)
			}
			raw[c] = append(raw[c], readings...)
		}
	}

	return NewSlot(w, raw), nil
}

// LiveBuilder builds the timeline of the most recent windows. At most one
// build runs at a time; a request made while one is in flight is dropped.
type LiveBuilder struct {
	builder *Builder
	running atomic.Bool
}

func NewLiveBuilder(builder *Builder) *LiveBuilder {
	return &LiveBuilder{builder: builder}
}

// TryBuild builds the timeline of windows unless another build is in
// flight, in which case it returns immediately with ok set to false.
func (l *LiveBuilder) TryBuild(ctx context.Context, windows []Window) (timeline Timeline, ok bool, err error) {
	if !l.running.CompareAndSwap(false, true) {
		l.builder.metrics.TimelineBuild("live", 0, true, nil)
		l.builder.logger.Debug("live timeline already in flight, request dropped")
		return nil, false, nil
	}
	defer l.running.Store(false)

	start := time.Now()
	timeline, err = l.builder.build(ctx, windows)
	l.builder.metrics.TimelineBuild("live", time.Since(start), false, err)
	if err != nil {
		return nil, true, err
	}
	return timeline, true, nil
}
