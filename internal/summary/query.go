package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/roman-kulish/signal-exposure/internal/calendar"
	"github.com/roman-kulish/signal-exposure/internal/signal"
	"github.com/roman-kulish/signal-exposure/internal/storage"
)

// OldestTop5Day returns the oldest day holding a top-5 record.
func (e *Engine) OldestTop5Day(ctx context.Context) (time.Time, bool, error) {
	r, err := e.store.Top5Range(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading top 5 range: %w", err)
	}
	return e.edge(r, r.Oldest)
}

// NewestTop5Day returns the newest day holding a top-5 record.
func (e *Engine) NewestTop5Day(ctx context.Context) (time.Time, bool, error) {
	r, err := e.store.Top5Range(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading top 5 range: %w", err)
	}
	return e.edge(r, r.Newest)
}

// OldestDailyStatDay returns the oldest day holding an exposure summary.
func (e *Engine) OldestDailyStatDay(ctx context.Context) (time.Time, bool, error) {
	r, err := e.store.DailyStatRange(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading daily stat range: %w", err)
	}
	return e.edge(r, r.Oldest)
}

// NewestDailyStatDay returns the newest day holding an exposure summary.
func (e *Engine) NewestDailyStatDay(ctx context.Context) (time.Time, bool, error) {
	r, err := e.store.DailyStatRange(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading daily stat range: %w", err)
	}
	return e.edge(r, r.Newest)
}

func (e *Engine) edge(r storage.DateRange, ms int64) (time.Time, bool, error) {
	if r.Empty() {
		return time.Time{}, false, nil
	}
	return calendar.FromMillis(ms, e.loc), true, nil
}

// DailyStat returns the exposure summary of the day containing day. It
// returns storage.ErrNoData when the day has not been computed.
func (e *Engine) DailyStat(ctx context.Context, day time.Time) (storage.DailyStat, error) {
	return e.store.DailyStat(ctx, calendar.Midnight(day.In(e.loc)).UnixMilli())
}

// Top5 returns the top five signals of the day containing day.
func (e *Engine) Top5(ctx context.Context, day time.Time) ([]signal.Reading, bool, error) {
	return e.store.Top5(ctx, calendar.Midnight(day.In(e.loc)).UnixMilli())
}

// DailyStats returns the exposure summaries of the days in [from, to),
// oldest first.
func (e *Engine) DailyStats(ctx context.Context, from, to time.Time) (stats []storage.DailyStat, err error) {
	reader, err := e.store.ReadDailyStats(ctx, storage.WithTimeRange[storage.DailyStat](from, to))
	if err != nil {
		return nil, fmt.Errorf("reading daily stats: %w", err)
	}
	defer func() {
		if cErr := reader.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	for reader.Next(ctx) {
		stats = append(stats, *reader.Current())
	}
	if err = reader.Error(); err != nil {
		return nil, fmt.Errorf("reading daily stats: %w", err)
	}
	return stats, nil
}
