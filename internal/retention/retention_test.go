package retention

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/signal-exposure/internal/signal"
	"github.com/roman-kulish/signal-exposure/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	oldest    int64
	hasOldest bool
	watermark int64
	hasMark   bool
	failures  int
	requests  []storage.PurgeRequest
}

func (f *fakeStore) OldestReadingTime(context.Context) (int64, bool, error) {
	return f.oldest, f.hasOldest, nil
}

func (f *fakeStore) Watermark(context.Context) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermark, f.hasMark, nil
}

func (f *fakeStore) PurgeBefore(_ context.Context, req storage.PurgeRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("database is locked")
	}
	f.requests = append(f.requests, req)
	if !f.hasMark || req.Watermark > f.watermark {
		f.watermark, f.hasMark = req.Watermark, true
	}
	return 3, nil
}

var paris = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		panic(err)
	}
	return loc
}()

func TestReclaim_HistoryHorizon(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store, WithLocation(paris), WithHistory(10, 20))

	now := time.Date(2024, 6, 15, 14, 30, 0, 0, paris)
	deleted, err := m.Reclaim(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	require.Len(t, store.requests, 1)
	req := store.requests[0]
	assert.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, paris).UnixMilli(), req.Cutoff)
	assert.Equal(t, req.Cutoff, req.Watermark)
	assert.Equal(t, time.Date(2024, 5, 26, 0, 0, 0, 0, paris).UnixMilli(), req.Top5Cutoff)
}

func TestReclaim_WatermarkAheadOfHorizon(t *testing.T) {
	mark := time.Date(2024, 6, 12, 9, 0, 0, 0, paris)
	store := &fakeStore{watermark: mark.UnixMilli(), hasMark: true}
	m := NewManager(store, WithLocation(paris), WithHistory(10, 20))

	_, err := m.Reclaim(context.Background(), time.Date(2024, 6, 15, 14, 30, 0, 0, paris))
	require.NoError(t, err)

	require.Len(t, store.requests, 1)
	assert.Equal(t, time.Date(2024, 6, 12, 0, 0, 0, 0, paris).UnixMilli(), store.requests[0].Cutoff)
}

func TestReclaim_WatermarkBootstrapsFromOldestReading(t *testing.T) {
	oldest := time.Date(2024, 6, 8, 18, 0, 0, 0, paris)
	store := &fakeStore{oldest: oldest.UnixMilli(), hasOldest: true}
	m := NewManager(store, WithLocation(paris), WithHistory(10, 20))

	watermark, ok, err := m.Watermark(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, watermark.Equal(oldest))

	_, err = m.Reclaim(context.Background(), time.Date(2024, 6, 15, 14, 30, 0, 0, paris))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 8, 0, 0, 0, 0, paris).UnixMilli(), store.requests[0].Cutoff)
}

func TestReclaim_Sqlite(t *testing.T) {
	ctx := context.Background()
	s := storage.NewSqliteStore(filepath.Join(t.TempDir(), "signals.db"))
	t.Cleanup(func() { _ = s.Close() })

	now := time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)
	reading := func(cid int, at time.Time) signal.Reading {
		return signal.Reading{
			Technology: signal.GSM,
			Dbm:        -70,
			Location:   signal.InvalidLocation,
			Created:    at.UnixMilli(),
			GSM:        &signal.GSMInfo{Cell: signal.Cell{MCC: 208, MNC: 1}, CID: cid},
		}
	}

	require.NoError(t, s.InsertReadings(ctx, []signal.Reading{
		reading(1, now.AddDate(0, 0, -12)),
		reading(2, now.AddDate(0, 0, -10)),
		reading(3, now.AddDate(0, 0, -1)),
	}))

	m := NewManager(s, WithLocation(time.UTC), WithHistory(10, 20))

	deleted, err := m.Reclaim(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	watermark, ok, err := m.Watermark(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, watermark.Equal(time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)))

	// running with an earlier clock must not move the watermark back
	_, err = m.Reclaim(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)

	again, _, err := m.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, watermark.Equal(again))

	oldest, ok, err := s.OldestReadingTime(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.AddDate(0, 0, -10).UnixMilli(), oldest)
}

func TestRunner_RetriesFailedPass(t *testing.T) {
	store := &fakeStore{failures: 2}
	r := NewRunner(NewManager(store, WithLocation(time.UTC)), time.Hour)
	r.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.requests) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
