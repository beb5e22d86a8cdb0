package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// SummaryRecord is a constraint for the per-day records a reader can return.
type SummaryRecord interface {
	DailyStat | Top5Record
}

// SummaryReader provides an iterator-based interface for reading per-day
// summary records in ascending day order.
type SummaryReader[T SummaryRecord] interface {
	// Next advances the iterator and returns true if there is another record
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current record in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *T

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a SummaryReader with specific filtering criteria.
type ReaderOption[T SummaryRecord] func(*SqliteSummaryReader[T])

// WithStartTime excludes days before t.
func WithStartTime[T SummaryRecord](t time.Time) ReaderOption[T] {
	return func(r *SqliteSummaryReader[T]) {
		r.startTime = &t
	}
}

// WithEndTime excludes days at or after t.
func WithEndTime[T SummaryRecord](t time.Time) ReaderOption[T] {
	return func(r *SqliteSummaryReader[T]) {
		r.endTime = &t
	}
}

// WithTimeRange restricts the reader to days in [startTime, endTime).
func WithTimeRange[T SummaryRecord](startTime, endTime time.Time) ReaderOption[T] {
	return func(r *SqliteSummaryReader[T]) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// malformedRecordError reports a stored record whose payload cannot be decoded.
type malformedRecordError struct {
	day int64
	err error
}

func (e *malformedRecordError) Error() string {
	return fmt.Sprintf("malformed record for day %d: %s", e.day, e.err)
}

func (e *malformedRecordError) Unwrap() error {
	return e.err
}

// SqliteSummaryReader implements SummaryReader for the SQLite backend.
// Records whose payload cannot be decoded are logged and skipped.
type SqliteSummaryReader[T SummaryRecord] struct {
	db     *sql.DB
	query  string
	scan   func(scanner) (T, error)
	logger *slog.Logger

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter

	current *T
	rows    *sql.Rows
	err     error
}

func newSqliteSummaryReader[T SummaryRecord](ctx context.Context, db *sql.DB, logger *slog.Logger, query string, scan func(scanner) (T, error), opts ...ReaderOption[T],
) (*SqliteSummaryReader[T], error) {
	sr := &SqliteSummaryReader[T]{
		db:     db,
		query:  query,
		scan:   scan,
		logger: logger,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return sr, nil
}

func (sr *SqliteSummaryReader[T]) init(ctx context.Context) error {
	if sr.db == nil {
		return errors.New("database connection required")
	}

	from, to := int64(math.MinInt64), int64(math.MaxInt64)
	if sr.startTime != nil {
		from = sr.startTime.UnixMilli()
	}
	if sr.endTime != nil {
		to = sr.endTime.UnixMilli()
	}
	if from > to {
		return fmt.Errorf("start time %s is after end time %s", sr.startTime, sr.endTime)
	}

	rows, err := sr.db.QueryContext(ctx, sr.query, from, to)
	if err != nil {
		return fmt.Errorf("querying records: %w", err)
	}
	sr.rows = rows
	return nil
}

func (sr *SqliteSummaryReader[T]) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	for {
		select {
		case <-ctx.Done():
			sr.err = ctx.Err()
			return false
		default:
		}

		if !sr.rows.Next() {
			return false
		}

		record, err := sr.scan(sr.rows)
		if err != nil {
			var malformed *malformedRecordError
			if errors.As(err, &malformed) {
				sr.logger.Warn("skipping stored record", slog.Int64("day", malformed.day), slog.String("error", malformed.err.Error()))
				continue
			}
			sr.err = err
			return false
		}

		sr.current = &record
		return true
	}
}

func (sr *SqliteSummaryReader[T]) Current() *T {
	return sr.current
}

func (sr *SqliteSummaryReader[T]) Error() error {
	if sr.err != nil {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SqliteSummaryReader[T]) Close() error {
	if sr.rows != nil {
		err := sr.rows.Close()
		sr.current = nil
		sr.rows = nil
		return err
	}
	return nil
}

func scanTop5(sc scanner) (rec Top5Record, err error) {
	var payload string
	if err = sc.Scan(&rec.Day, &payload); err != nil {
		return rec, fmt.Errorf("scanning top 5 record: %w", err)
	}
	if err = json.Unmarshal([]byte(payload), &rec.Signals); err != nil {
		return rec, &malformedRecordError{day: rec.Day, err: err}
	}
	return rec, nil
}

func scanDailyStat(sc scanner) (rec DailyStat, err error) {
	if err = sc.Scan(&rec.Day, &rec.Dbm, &rec.NewSources); err != nil {
		return rec, fmt.Errorf("scanning daily stat: %w", err)
	}
	return rec, nil
}
