package summary

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/signal-exposure/internal/signal"
	"github.com/roman-kulish/signal-exposure/internal/storage"
	"github.com/roman-kulish/signal-exposure/internal/timeline"
)

// now is the clock of every engine in this file: the day under test is June 15.
var now = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *storage.SqliteStore {
	t.Helper()
	s := storage.NewSqliteStore(filepath.Join(t.TempDir(), "signals.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEngine(s *storage.SqliteStore, builder TimelineBuilder, options ...func(*Engine)) *Engine {
	if builder == nil {
		builder = timeline.NewBuilder(s, timeline.WithParallelism(4))
	}
	options = append([]func(*Engine){
		WithClock(func() time.Time { return now }),
		WithLocation(time.UTC),
	}, options...)
	return NewEngine(s, builder, options...)
}

func wifi(bssid string, dbm int, at time.Time) signal.Reading {
	return signal.Reading{
		Technology: signal.WiFi,
		Dbm:        dbm,
		Location:   signal.InvalidLocation,
		Created:    at.UnixMilli(),
		WiFi:       &signal.WiFiInfo{SSID: "home", BSSID: bssid, Frequency: 2412, Standard: 4},
	}
}

func bluetooth(address string, dbm int, at time.Time) signal.Reading {
	return signal.Reading{
		Technology: signal.Bluetooth,
		Dbm:        dbm,
		Location:   signal.InvalidLocation,
		Created:    at.UnixMilli(),
		Bluetooth:  &signal.BTInfo{Name: "headset", Address: address, DeviceClass: 1028, DeviceType: 1, BondState: signal.BondNone},
	}
}

func gsm(cid, dbm int, at time.Time) signal.Reading {
	return signal.Reading{
		Technology: signal.GSM,
		Dbm:        dbm,
		Location:   signal.InvalidLocation,
		Created:    at.UnixMilli(),
		GSM:        &signal.GSMInfo{Cell: signal.Cell{Type: 1, MCC: 208, MNC: 1}, CID: cid, LAC: 7, ARFCN: 12, BSIC: 3},
	}
}

// seedWeek stores one Wi-Fi access point seen every day from June 10 to 14,
// plus a Bluetooth device and a cell tower that only show up on June 14.
func seedWeek(t *testing.T, s *storage.SqliteStore) {
	t.Helper()
	var readings []signal.Reading
	for d := 10; d <= 14; d++ {
		readings = append(readings, wifi("aa:bb:cc:dd:ee:01", -60, day(d).Add(9*time.Hour+5*time.Minute)))
	}
	readings = append(readings,
		bluetooth("11:22:33:44:55:66", -55, day(14).Add(18*time.Hour)),
		gsm(4242, -75, day(14).Add(18*time.Hour)))
	require.NoError(t, s.InsertReadings(context.Background(), readings))
}

func TestRun_EmptyStore(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(s, nil)

	count, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	_, ok, err := e.NewestTop5Day(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = e.NewestDailyStatDay(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_BackfillsUpToYesterday(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedWeek(t, s)
	e := newTestEngine(s, nil)

	count, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the Bluetooth device is new, cell towers never count")

	// top-5 starts at most three days back, daily summaries at the oldest reading
	oldestTop5, ok, err := e.OldestTop5Day(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, oldestTop5.Equal(day(12)))

	newestTop5, _, err := e.NewestTop5Day(ctx)
	require.NoError(t, err)
	assert.True(t, newestTop5.Equal(day(14)))

	stats, err := e.DailyStats(ctx, day(1), day(30))
	require.NoError(t, err)
	require.Len(t, stats, 5)
	for i, stat := range stats {
		assert.Equal(t, day(10+i).UnixMilli(), stat.Day)
	}

	// a single -60 dBm hour averages to -60 dBm
	assert.Equal(t, -60, stats[0].Dbm)
	assert.Zero(t, stats[0].NewSources)
	assert.Zero(t, stats[2].NewSources, "not enough top-5 history on the first top-5 day")
	assert.Equal(t, 1, stats[4].NewSources)

	topFive, ok, err := e.Top5(ctx, day(14).Add(15*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, topFive, 3)
	assert.Equal(t, signal.Bluetooth, topFive[0].Technology)
	assert.Equal(t, -55, topFive[0].Dbm)
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedWeek(t, s)
	e := newTestEngine(s, nil)

	first, err := e.Run(ctx)
	require.NoError(t, err)
	before, err := e.DailyStats(ctx, day(1), day(30))
	require.NoError(t, err)

	second, err := e.Run(ctx)
	require.NoError(t, err)
	after, err := e.DailyStats(ctx, day(1), day(30))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, after)

	r, err := s.Top5Range(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Count)
}

func TestRun_NotificationNeedsHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertReadings(ctx, []signal.Reading{
		wifi("aa:bb:cc:dd:ee:01", -60, day(13).Add(time.Hour)),
		bluetooth("11:22:33:44:55:66", -55, day(14).Add(time.Hour)),
	}))
	e := newTestEngine(s, nil)

	count, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	stat, err := e.DailyStat(ctx, day(14))
	require.NoError(t, err)
	assert.Zero(t, stat.NewSources)
}

func TestRun_ResumesAfterFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedWeek(t, s)

	failing := &failingBuilder{next: timeline.NewBuilder(s), failOn: day(12)}
	e := newTestEngine(s, failing)

	_, err := e.Run(ctx)
	require.Error(t, err)

	stats, err := e.DailyStats(ctx, day(1), day(30))
	require.NoError(t, err)
	require.Len(t, stats, 2, "days before the failure are kept")

	failing.failOn = time.Time{}
	_, err = e.Run(ctx)
	require.NoError(t, err)

	stats, err = e.DailyStats(ctx, day(1), day(30))
	require.NoError(t, err)
	require.Len(t, stats, 5)
	for i := 1; i < len(stats); i++ {
		assert.Equal(t, day(10+i).UnixMilli(), stats[i].Day, "days are contiguous")
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedWeek(t, s)

	blocking := &blockingBuilder{next: timeline.NewBuilder(s), entered: make(chan struct{}), release: make(chan struct{})}
	e := newTestEngine(s, blocking)

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(ctx)
		done <- err
	}()

	<-blocking.entered
	_, err := e.Run(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(blocking.release)
	require.NoError(t, <-done)
}

func TestCountNewSources(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	known := wifi("aa:bb:cc:dd:ee:01", -60, day(1))
	require.NoError(t, s.InsertTop5(ctx, day(10).UnixMilli(), []signal.Reading{known}))
	require.NoError(t, s.InsertTop5(ctx, day(11).UnixMilli(), nil))

	e := newTestEngine(s, nil)
	topFive := []signal.Reading{
		known,
		wifi("20:11:22:33:44:02", -50, day(1)),
		bluetooth("11:22:33:44:55:66", -55, day(1)),
		gsm(1, -70, day(1)),
		signal.NewSentinel(signal.WiFi),
	}

	count, err := e.CountNewSources(ctx, day(12), topFive)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = e.CountNewSources(ctx, day(11), topFive)
	require.NoError(t, err)
	assert.Zero(t, count, "one day of history is not enough")

	count, err = e.CountNewSources(ctx, day(12), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCountNewSources_SameAccessPoint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertTop5(ctx, day(10).UnixMilli(), []signal.Reading{wifi("aa:bb:cc:dd:ee:01", -60, day(10))}))
	require.NoError(t, s.InsertTop5(ctx, day(11).UnixMilli(), nil))
	e := newTestEngine(s, nil)

	sibling := wifi("aa:bb:cc:dd:ee:02", -50, day(12))
	sibling.WiFi.SSID = "guest"
	count, err := e.CountNewSources(ctx, day(12), []signal.Reading{sibling})
	require.NoError(t, err)
	assert.Zero(t, count, "another interface of a known access point is not new")

	otherBand := wifi("aa:bb:cc:dd:ee:02", -50, day(12))
	otherBand.WiFi.Frequency = 5180
	count, err = e.CountNewSources(ctx, day(12), []signal.Reading{otherBand})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTopFiveOfDay(t *testing.T) {
	w := timeline.Day(day(1))
	early := timeline.NewSlot(w[0], map[signal.Category][]signal.Reading{
		signal.CategoryWiFi: {wifi("aa:bb:cc:dd:ee:01", -70, day(1))},
	})
	late := timeline.NewSlot(w[1], map[signal.Category][]signal.Reading{
		signal.CategoryWiFi: {
			wifi("aa:bb:cc:dd:ee:01", -50, day(1)),
			wifi("10:bb:cc:dd:ee:10", -61, day(1)),
		},
		signal.CategoryCellular: {gsm(1, -62, day(1)), gsm(2, -63, day(1)), gsm(3, -64, day(1))},
	})

	got := TopFiveOfDay(timeline.Timeline{early, late, timeline.NewSlot(w[2], nil)})
	require.Len(t, got, 5)
	assert.Equal(t, -50, got[0].Dbm, "duplicate keeps its strongest reading")
	for _, r := range got {
		assert.True(t, r.IsValid())
	}
	assert.Equal(t, -64, got[4].Dbm)
}

func TestTopFiveOfDay_LeaderChangesBetweenSlots(t *testing.T) {
	w := timeline.Day(day(1))
	first := timeline.NewSlot(w[0], map[signal.Category][]signal.Reading{
		signal.CategoryWiFi: {wifi("aa:bb:cc:dd:ee:01", -50, day(1)), wifi("aa:bb:cc:dd:ee:02", -60, day(1))},
	})
	second := timeline.NewSlot(w[1], map[signal.Category][]signal.Reading{
		signal.CategoryWiFi: {wifi("aa:bb:cc:dd:ee:02", -52, day(1)), wifi("aa:bb:cc:dd:ee:01", -60, day(1))},
	})

	got := TopFiveOfDay(timeline.Timeline{first, second})
	require.Len(t, got, 1, "one access point is one source")
	assert.Equal(t, -50, got[0].Dbm)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", got[0].WiFi.BSSID)
}

func TestDailyExposureDbm_NoValidHours(t *testing.T) {
	var tl timeline.Timeline
	for _, w := range timeline.Day(day(1)) {
		tl = append(tl, timeline.NewSlot(w, nil))
	}
	assert.Equal(t, signal.MinDbmForRootScore-1, DailyExposureDbm(tl))
}

type failingBuilder struct {
	next   TimelineBuilder
	failOn time.Time
}

func (f *failingBuilder) Build(ctx context.Context, windows []timeline.Window) (timeline.Timeline, error) {
	if len(windows) > 0 && windows[0].From.Equal(f.failOn) {
		return nil, errors.New("disk I/O error")
	}
	return f.next.Build(ctx, windows)
}

type blockingBuilder struct {
	next    TimelineBuilder
	once    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBuilder) Build(ctx context.Context, windows []timeline.Window) (timeline.Timeline, error) {
	if b.once.CompareAndSwap(false, true) {
		close(b.entered)
		<-b.release
	}
	return b.next.Build(ctx, windows)
}
