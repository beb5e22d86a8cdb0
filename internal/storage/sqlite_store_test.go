package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/signal-exposure/internal/signal"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "signals.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func at(offset time.Duration) int64 {
	return base.Add(offset).UnixMilli()
}

func wifiReading(bssid string, dbm int, connected bool, created int64) signal.Reading {
	return signal.Reading{
		Technology: signal.WiFi,
		Dbm:        dbm,
		Connected:  connected,
		Location:   signal.Location{Latitude: 48.85, Longitude: 2.35},
		Created:    created,
		WiFi:       &signal.WiFiInfo{SSID: "home", BSSID: bssid, Frequency: 2412, Standard: 4},
	}
}

func gsmReading(cid, dbm int, created int64) signal.Reading {
	return signal.Reading{
		Technology: signal.GSM,
		Dbm:        dbm,
		Location:   signal.InvalidLocation,
		Created:    created,
		GSM:        &signal.GSMInfo{Cell: signal.Cell{Type: 1, MCC: 208, MNC: 1}, CID: cid, LAC: 7, ARFCN: 12, BSIC: 3},
	}
}

func TestAggregate_WiFiKeepsStrongest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertReadings(ctx, []signal.Reading{
		wifiReading("aa:bb:cc:dd:ee:01", -80, false, at(time.Minute)),
		wifiReading("aa:bb:cc:dd:ee:01", -40, false, at(2*time.Minute)),
		wifiReading("aa:bb:cc:dd:ee:01", -90, true, at(3*time.Minute)),
		wifiReading("aa:bb:cc:dd:ee:02", -70, false, at(4*time.Minute)),
	}))

	got, err := s.Aggregate(ctx, signal.WiFi, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)

	byBSSID := map[string]signal.Reading{}
	for _, r := range got {
		byBSSID[r.WiFi.BSSID] = r
	}

	first := byBSSID["aa:bb:cc:dd:ee:01"]
	assert.Equal(t, -40, first.Dbm)
	assert.True(t, first.Connected)
	assert.Equal(t, signal.InvalidLocation, first.Location)
	assert.Equal(t, signal.InvalidTime, first.Created)
	assert.Equal(t, "home", first.WiFi.SSID)

	assert.Equal(t, -70, byBSSID["aa:bb:cc:dd:ee:02"].Dbm)
}

func TestAggregate_WindowBoundaries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertReadings(ctx, []signal.Reading{
		gsmReading(1, -70, at(-time.Millisecond)),
		gsmReading(2, -71, at(0)),
		gsmReading(3, -72, at(time.Hour-time.Millisecond)),
		gsmReading(4, -73, at(time.Hour)),
	}))

	got, err := s.Aggregate(ctx, signal.GSM, base, base.Add(time.Hour))
	require.NoError(t, err)

	var cids []int
	for _, r := range got {
		cids = append(cids, r.GSM.CID)
	}
	assert.ElementsMatch(t, []int{2, 3}, cids)
}

func TestAggregate_EmptyWindow(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Aggregate(context.Background(), signal.LTE, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregate_OutOfRangeNeverWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertReadings(ctx, []signal.Reading{
		gsmReading(1, -100, at(time.Minute)),
		gsmReading(1, signal.Unavailable, at(2*time.Minute)),
		gsmReading(2, signal.Unavailable, at(3*time.Minute)),
	}))

	got, err := s.Aggregate(ctx, signal.GSM, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, r := range got {
		switch r.GSM.CID {
		case 1:
			assert.Equal(t, -100, r.Dbm)
		case 2:
			assert.Equal(t, signal.GSMMinDbm-1, r.Dbm)
		}
	}
}

func TestAggregate_LTEStrength(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	lte := func(rsrp, rssi int, created int64) signal.Reading {
		return signal.Reading{
			Technology: signal.LTE,
			Location:   signal.InvalidLocation,
			Created:    created,
			LTE: &signal.LTEInfo{
				Cell: signal.Cell{Type: 13, MCC: 208, MNC: 10},
				ECI:  1, PCI: 2, TAC: 3, EARFCN: 6300, Bandwidth: 20000,
				RSRP: rsrp, RSSI: rssi,
			},
		}.Derive()
	}

	require.NoError(t, s.InsertReadings(ctx, []signal.Reading{
		lte(-100, signal.Unavailable, at(time.Minute)),
		lte(-90, 99, at(2*time.Minute)),
	}))

	got, err := s.Aggregate(ctx, signal.LTE, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, -90, got[0].Dbm)
	assert.Equal(t, -90, got[0].LTE.RSRP)
	assert.Equal(t, signal.Unavailable, got[0].LTE.RSSI)
}

func TestAggregate_BluetoothBondedIsConnected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	bt := func(bond, dbm int) signal.Reading {
		return signal.Reading{
			Technology: signal.Bluetooth,
			Dbm:        dbm,
			Location:   signal.InvalidLocation,
			Created:    at(time.Minute),
			Bluetooth:  &signal.BTInfo{Name: "watch", Address: "11:22:33:44:55:66", DeviceClass: 1796, DeviceType: 2, BondState: bond},
		}
	}

	require.NoError(t, s.InsertReadings(ctx, []signal.Reading{bt(signal.BondNone, -60), bt(signal.BondBonded, -75)}))

	got, err := s.Aggregate(ctx, signal.Bluetooth, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Connected)
	assert.Equal(t, -60, got[0].Dbm)
	assert.Equal(t, "11:22:33:44:55:66", got[0].Bluetooth.Address)
}

func TestAggregate_CDMAIsNotGrouped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cdma := func(cdmaDbm, evdoDbm int) signal.Reading {
		return signal.Reading{
			Technology: signal.CDMA,
			Location:   signal.InvalidLocation,
			Created:    at(time.Minute),
			CDMA:       &signal.CDMAInfo{Type: 4, NetworkID: 1, SystemID: 2, BaseStationID: 3, CdmaDbm: cdmaDbm, EvdoDbm: evdoDbm},
		}.Derive()
	}

	require.NoError(t, s.InsertReadings(ctx, []signal.Reading{cdma(-90, -80), cdma(-95, signal.Unavailable)}))

	got, err := s.Aggregate(ctx, signal.CDMA, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)

	var strengths []int
	for _, r := range got {
		strengths = append(strengths, r.Dbm)
	}
	assert.ElementsMatch(t, []int{-80, -95}, strengths)
}

func TestInsertReadings_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.InsertReadings(ctx, []signal.Reading{signal.NewSentinel(signal.WiFi)})
	assert.Error(t, err)

	err = s.InsertReadings(ctx, []signal.Reading{{Technology: signal.GSM, Dbm: -70}})
	assert.Error(t, err)

	// the failed batch must not leave partial rows behind
	err = s.InsertReadings(ctx, []signal.Reading{gsmReading(1, -70, at(0)), signal.NewSentinel(signal.GSM)})
	require.Error(t, err)

	got, err := s.Aggregate(ctx, signal.GSM, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOldestReadingTime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.OldestReadingTime(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.InsertReadings(ctx, []signal.Reading{
		wifiReading("aa:bb:cc:dd:ee:01", -50, false, at(time.Hour)),
		gsmReading(1, -70, at(-time.Hour)),
	}))

	oldest, ok, err := s.OldestReadingTime(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at(-time.Hour), oldest)
}

func TestTop5_InsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := base.Truncate(24 * time.Hour).UnixMilli()

	first := []signal.Reading{gsmReading(1, -60, signal.InvalidTime)}
	second := []signal.Reading{gsmReading(2, -50, signal.InvalidTime)}

	require.NoError(t, s.InsertTop5(ctx, day, first))
	require.NoError(t, s.InsertTop5(ctx, day, second))

	got, ok, err := s.Top5(ctx, day)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].GSM.CID)

	_, ok, err = s.Top5(ctx, day+1)
	require.NoError(t, err)
	assert.False(t, ok)

	r, err := s.Top5Range(ctx)
	require.NoError(t, err)
	assert.Equal(t, DateRange{Count: 1, Oldest: day, Newest: day}, r)
}

func TestReadTop5_SkipsMalformed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := int64(24 * time.Hour / time.Millisecond)

	require.NoError(t, s.InsertTop5(ctx, day, []signal.Reading{gsmReading(1, -60, signal.InvalidTime)}))
	require.NoError(t, s.InsertTop5(ctx, 3*day, []signal.Reading{gsmReading(3, -60, signal.InvalidTime)}))

	db, err := s.getWriteDB()
	require.NoError(t, err)
	_, err = db.Exec(insertTop5SQL, "{not json", 2*day)
	require.NoError(t, err)

	_, ok, err := s.Top5(ctx, 2*day)
	require.NoError(t, err)
	assert.False(t, ok)

	reader, err := s.ReadTop5(ctx, WithEndTime[Top5Record](time.UnixMilli(3*day)))
	require.NoError(t, err)
	defer reader.Close()

	var days []int64
	for reader.Next(ctx) {
		days = append(days, reader.Current().Day)
	}
	require.NoError(t, reader.Error())
	assert.Equal(t, []int64{day}, days)
}

func TestDailyStat(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.DailyStat(ctx, 1)
	assert.ErrorIs(t, err, ErrNoData)

	r, err := s.DailyStatRange(ctx)
	require.NoError(t, err)
	assert.True(t, r.Empty())

	require.NoError(t, s.InsertDailyStat(ctx, DailyStat{Day: 10, Dbm: -60, NewSources: 2}))
	require.NoError(t, s.InsertDailyStat(ctx, DailyStat{Day: 10, Dbm: -10, NewSources: 9}))
	require.NoError(t, s.InsertDailyStat(ctx, DailyStat{Day: 20, Dbm: -70}))

	stat, err := s.DailyStat(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, DailyStat{Day: 10, Dbm: -60, NewSources: 2}, stat)

	reader, err := s.ReadDailyStats(ctx, WithTimeRange[DailyStat](time.UnixMilli(0), time.UnixMilli(100)))
	require.NoError(t, err)
	defer reader.Close()

	var stats []DailyStat
	for reader.Next(ctx) {
		stats = append(stats, *reader.Current())
	}
	require.NoError(t, reader.Error())
	assert.Equal(t, []DailyStat{{Day: 10, Dbm: -60, NewSources: 2}, {Day: 20, Dbm: -70}}, stats)
}

func TestPurgeBefore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertReadings(ctx, []signal.Reading{
		gsmReading(1, -70, at(-2*time.Hour)),
		wifiReading("aa:bb:cc:dd:ee:01", -50, false, at(-2*time.Hour)),
		gsmReading(2, -70, at(time.Hour)),
	}))
	require.NoError(t, s.RecordEvent(ctx, 1, base.Add(-2*time.Hour)))
	require.NoError(t, s.InsertDailyStat(ctx, DailyStat{Day: at(-2 * time.Hour), Dbm: -60}))
	require.NoError(t, s.InsertTop5(ctx, at(-2*time.Hour), nil))
	require.NoError(t, s.InsertTop5(ctx, at(-3*time.Hour), nil))

	deleted, err := s.PurgeBefore(ctx, PurgeRequest{Watermark: at(0), Cutoff: at(0), Top5Cutoff: at(-150 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	watermark, ok, err := s.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at(0), watermark)

	// an older watermark never replaces a newer one
	_, err = s.PurgeBefore(ctx, PurgeRequest{Watermark: at(-time.Hour), Cutoff: at(-time.Hour), Top5Cutoff: 0})
	require.NoError(t, err)

	watermark, _, err = s.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, at(0), watermark)

	got, err := s.Aggregate(ctx, signal.GSM, base.Add(-24*time.Hour), base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].GSM.CID)

	r, err := s.Top5Range(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Count)
}

func TestOperatorName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.OperatorName(ctx, 208, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.InsertOperators(ctx, []Operator{{MCC: 208, MNC: 1, Name: "Orange"}, {MCC: 208, MNC: 10, Name: "SFR"}}))
	require.NoError(t, s.InsertOperators(ctx, []Operator{{MCC: 208, MNC: 1, Name: "Orange France"}}))

	name, ok, err := s.OperatorName(ctx, 208, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Orange France", name)
}
