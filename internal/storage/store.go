package storage

import (
	"context"
	"time"

	"github.com/roman-kulish/signal-exposure/internal/signal"
)

// Store provides an interface for the signal exposure database. It holds raw
// readings, the per-day summaries derived from them, retention state and
// operator reference data. Every multi-row mutation is atomic.
type Store interface {
	// InsertReadings saves raw readings of any technology.
	// All readings are stored in a single atomic transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - readings: Non-sentinel readings carrying the payload of their technology
	//
	// Returns:
	//   - error: If a reading is invalid, storage fails or context is cancelled
	InsertReadings(ctx context.Context, readings []signal.Reading) error

	// Aggregate returns one reading per distinct antenna of tech observed in
	// the half-open interval [from, to).
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - tech: Technology to query
	//   - from, to: Window boundaries
	//
	// Returns:
	//   - readings: Normalized readings without location and creation time, empty for an empty window
	//   - error: If the query fails or context is cancelled
	Aggregate(ctx context.Context, tech signal.Technology, from, to time.Time) ([]signal.Reading, error)

	// OldestReadingTime returns the creation time of the oldest reading of any technology.
	//
	// Returns:
	//   - created: Epoch milliseconds
	//   - ok: False when no reading is stored
	//   - error: If the query fails or context is cancelled
	OldestReadingTime(ctx context.Context) (created int64, ok bool, err error)

	// RecordEvent saves an application event. Events are trimmed with the readings.
	RecordEvent(ctx context.Context, eventType int, created time.Time) error

	// InsertTop5 saves the top-5 signals of a day. An existing record is kept.
	InsertTop5(ctx context.Context, day int64, signals []signal.Reading) error

	// Top5 returns the top-5 signals of a day.
	//
	// Returns:
	//   - signals: Readings as stored, strongest first
	//   - ok: False when the day has no record or the record cannot be decoded
	//   - error: If the query fails or context is cancelled
	Top5(ctx context.Context, day int64) (signals []signal.Reading, ok bool, err error)

	// Top5Range returns the span of days holding a top-5 record.
	Top5Range(ctx context.Context) (DateRange, error)

	// ReadTop5 creates a reader over the top-5 records, in ascending day order.
	// Records that cannot be decoded are logged and skipped.
	ReadTop5(ctx context.Context, opts ...ReaderOption[Top5Record]) (SummaryReader[Top5Record], error)

	// InsertDailyStat saves the summary of a day. An existing record is kept.
	InsertDailyStat(ctx context.Context, stat DailyStat) error

	// DailyStat returns the summary of a day, or ErrNoData when none is stored.
	DailyStat(ctx context.Context, day int64) (DailyStat, error)

	// DailyStatRange returns the span of days holding a daily summary.
	DailyStatRange(ctx context.Context) (DateRange, error)

	// ReadDailyStats creates a reader over the daily summaries, in ascending day order.
	ReadDailyStats(ctx context.Context, opts ...ReaderOption[DailyStat]) (SummaryReader[DailyStat], error)

	// Watermark returns the persisted retention watermark.
	//
	// Returns:
	//   - watermark: Epoch milliseconds
	//   - ok: False until the first purge
	//   - error: If the query fails or context is cancelled
	Watermark(ctx context.Context) (watermark int64, ok bool, err error)

	// PurgeBefore persists the watermark, which never moves backwards, and deletes
	// rows older than the request cutoffs. Everything happens in one transaction.
	//
	// Returns:
	//   - deleted: Total number of deleted rows
	//   - error: If any statement fails, in which case nothing is deleted
	PurgeBefore(ctx context.Context, req PurgeRequest) (deleted int64, err error)

	// InsertOperators saves operator reference data, replacing existing names.
	InsertOperators(ctx context.Context, operators []Operator) error

	// OperatorName returns the carrier name of a country and network code pair.
	OperatorName(ctx context.Context, mcc, mnc int) (name string, ok bool, err error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)
