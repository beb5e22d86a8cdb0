package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/signal-exposure/internal/signal"
)

// InsertTop5 stores the top-5 signals of day. A day that already holds a
// record is left untouched.
func (s *SqliteStore) InsertTop5(ctx context.Context, day int64, signals []signal.Reading) (err error) {
	if signals == nil {
		signals = []signal.Reading{}
	}

	payload, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("encoding top 5 signals: %w", err)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, insertTop5SQL, string(payload), day); err != nil {
		return fmt.Errorf("inserting top 5 signals: %w", err)
	}
	return nil
}

// Top5 returns the stored top-5 signals of day. ok is false when the day has
// no record, or when the record cannot be decoded.
func (s *SqliteStore) Top5(ctx context.Context, day int64) (signals []signal.Reading, ok bool, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rec, err := scanTop5(db.QueryRowContext(ctx, selectTop5SQL, day))
	if err != nil {
		var malformed *malformedRecordError
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, false, nil
		case errors.As(err, &malformed):
			s.logger.Warn("skipping stored record", slog.Int64("day", day), slog.String("error", malformed.err.Error()))
			return nil, false, nil
		default:
			return nil, false, err
		}
	}
	return rec.Signals, true, nil
}

// Top5Range returns the span of days holding a top-5 record.
func (s *SqliteStore) Top5Range(ctx context.Context) (DateRange, error) {
	return s.dateRange(ctx, selectTop5RangeSQL)
}

// ReadTop5 returns a reader over the top-5 records, in ascending day order.
func (s *SqliteStore) ReadTop5(ctx context.Context, opts ...ReaderOption[Top5Record]) (SummaryReader[Top5Record], error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	reader, err := newSqliteSummaryReader(ctx, db, s.logger, selectTop5ListSQL, scanTop5, opts...)
	if err != nil {
		return nil, err
	}
	return reader, nil
}

// InsertDailyStat stores the summary of one day. A day that already holds a
// record is left untouched.
func (s *SqliteStore) InsertDailyStat(ctx context.Context, stat DailyStat) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, insertDailyStatSQL, stat.Dbm, stat.NewSources, stat.Day); err != nil {
		return fmt.Errorf("inserting daily stat: %w", err)
	}
	return nil
}

// DailyStat returns the summary of day, or ErrNoData when none is stored.
func (s *SqliteStore) DailyStat(ctx context.Context, day int64) (stat DailyStat, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	if stat, err = scanDailyStat(db.QueryRowContext(ctx, selectDailyStatSQL, day)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNoData
		}
		return
	}
	return stat, nil
}

// DailyStatRange returns the span of days holding a daily summary.
func (s *SqliteStore) DailyStatRange(ctx context.Context) (DateRange, error) {
	return s.dateRange(ctx, selectDailyStatRangeSQL)
}

// ReadDailyStats returns a reader over the daily summaries, in ascending day order.
func (s *SqliteStore) ReadDailyStats(ctx context.Context, opts ...ReaderOption[DailyStat]) (SummaryReader[DailyStat], error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	reader, err := newSqliteSummaryReader(ctx, db, s.logger, selectDailyStatListSQL, scanDailyStat, opts...)
	if err != nil {
		return nil, err
	}
	return reader, nil
}

func (s *SqliteStore) dateRange(ctx context.Context, query string) (r DateRange, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	if err = db.QueryRowContext(ctx, query).Scan(&r.Count, &r.Oldest, &r.Newest); err != nil {
		err = fmt.Errorf("querying date range: %w", err)
	}
	return
}

