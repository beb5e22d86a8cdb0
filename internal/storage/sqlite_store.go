package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/roman-kulish/signal-exposure/internal/signal"
)

// ErrNoData indicates that no row exists for the given parameters, or that
// all available rows have been read from a reader.
var ErrNoData = errors.New("no data available")

// WithLogger sets the logger used to report recoverable data problems, such
// as a stored summary that cannot be decoded.
func WithLogger(logger *slog.Logger) func(*SqliteStore) {
	return func(s *SqliteStore) {
		s.logger = logger.With(slog.String("component", "storage"))
	}
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	logger *slog.Logger

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a new store backed by the Sqlite database at dbPath.
// Connections are opened and the schema is initialized on first use.
func NewSqliteStore(dbPath string, options ...func(*SqliteStore)) *SqliteStore {
	s := SqliteStore{
		dbPath: dbPath,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		// single writer
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// the schema must exist before a read-only connection can see it
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// InsertReadings stores readings in a single transaction. Locations that are
// not valid positions are stored as the invalid sentinel.
func (s *SqliteStore) InsertReadings(ctx context.Context, readings []signal.Reading) (err error) {
	if len(readings) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmts := make(map[signal.Technology]*sql.Stmt)
	defer func() {
		for _, stmt := range stmts {
			closeWithError(stmt, &err)
		}
	}()

	for i, r := range readings {
		if !r.IsValid() {
			return fmt.Errorf("inserting reading %d: sentinel readings cannot be stored", i)
		}
		if !r.HasPayload() {
			return fmt.Errorf("inserting reading %d: missing %s payload", i, r.Technology)
		}

		table, tErr := tableFor(r.Technology)
		if tErr != nil {
			return fmt.Errorf("inserting reading %d: %w", i, tErr)
		}

		stmt, ok := stmts[r.Technology]
		if !ok {
			if stmt, err = tx.PrepareContext(ctx, table.insertSQL()); err != nil {
				return fmt.Errorf("preparing statement: %w", err)
			}
			stmts[r.Technology] = stmt
		}

		loc := toStoredLocation(r.Location)
		args := append(table.values(r), loc.Latitude, loc.Longitude, r.Created)
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting %s reading: %w", r.Technology, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// RecordEvent stores an application event of the given type.
func (s *SqliteStore) RecordEvent(ctx context.Context, eventType int, created time.Time) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, insertEventSQL, eventType, created.UnixMilli()); err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// OldestReadingTime returns the creation time of the oldest stored reading,
// across all technologies. ok is false when no reading is stored.
func (s *SqliteStore) OldestReadingTime(ctx context.Context) (created int64, ok bool, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	var oldest sql.NullInt64
	if err = db.QueryRowContext(ctx, selectOldestReadingSQL).Scan(&oldest); err != nil {
		err = fmt.Errorf("querying oldest reading: %w", err)
		return
	}
	return oldest.Int64, oldest.Valid, nil
}

// Aggregate returns one reading per distinct antenna of tech observed in
// [from, to). Each reading carries the group's strongest strength and is
// connected when any member was. Location and creation time are set to
// their invalid sentinels.
func (s *SqliteStore) Aggregate(ctx context.Context, tech signal.Technology, from, to time.Time) (readings []signal.Reading, err error) {
	table, err := tableFor(tech)
	if err != nil {
		return
	}

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, table.aggregateSQL(), from.UnixMilli(), to.UnixMilli())
	if err != nil {
		err = fmt.Errorf("querying %s aggregates: %w", tech, err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r signal.Reading
		if r, err = table.scan(rows); err != nil {
			err = fmt.Errorf("scanning %s aggregate: %w", tech, err)
			return
		}
		readings = append(readings, aggregated(r))
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating %s aggregates: %w", tech, err)
	}
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
