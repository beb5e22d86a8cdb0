package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/signal-exposure/internal/signal"
)

// Watermark returns the persisted retention watermark. ok is false until the
// first purge has stored one.
func (s *SqliteStore) Watermark(ctx context.Context) (watermark int64, ok bool, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	if err = db.QueryRowContext(ctx, selectStateSQL, watermarkStateName).Scan(&watermark); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		err = fmt.Errorf("querying watermark: %w", err)
		return
	}
	return watermark, true, nil
}

// PurgeBefore persists the watermark and deletes everything older than the
// request cutoffs in a single transaction. It returns the number of deleted rows.
func (s *SqliteStore) PurgeBefore(ctx context.Context, req PurgeRequest) (deleted int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, upsertMonotonicStateSQL, watermarkStateName, req.Watermark); err != nil {
		err = fmt.Errorf("storing watermark: %w", err)
		return
	}

	exec := func(query string, arg int64) error {
		res, eErr := tx.ExecContext(ctx, query, arg)
		if eErr != nil {
			return eErr
		}
		n, eErr := res.RowsAffected()
		if eErr != nil {
			return eErr
		}
		deleted += n
		return nil
	}

	statements := make([]string, 0, len(techTables)+len(auxiliaryTables)+1)
	for _, tech := range signal.Technologies {
		statements = append(statements, techTables[tech].deleteBeforeSQL())
	}
	for _, name := range auxiliaryTables {
		statements = append(statements, fmt.Sprintf("DELETE FROM %s WHERE created < ?", name))
	}
	statements = append(statements, deleteDailyStatBeforeSQL)

	for _, query := range statements {
		if err = exec(query, req.Cutoff); err != nil {
			err = fmt.Errorf("deleting rows: %w", err)
			return 0, err
		}
	}

	if err = exec(deleteTop5BeforeSQL, req.Top5Cutoff); err != nil {
		err = fmt.Errorf("deleting top 5 signals: %w", err)
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
		return 0, err
	}

	s.logger.Debug("purged rows", slog.Int64("deleted", deleted), slog.Int64("cutoff", req.Cutoff))
	return deleted, nil
}
