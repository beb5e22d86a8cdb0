package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertOperators stores operators in a single transaction, replacing the
// name of any country and network code pair already present.
func (s *SqliteStore) InsertOperators(ctx context.Context, operators []Operator) (err error) {
	if len(operators) == 0 {
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

	stmt, err := tx.PrepareContext(ctx, upsertOperatorSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, op := range operators {
		if _, err = stmt.ExecContext(ctx, op.MCC, op.MNC, op.Name); err != nil {
			return fmt.Errorf("inserting operator %d %d: %w", op.MCC, op.MNC, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// OperatorName returns the carrier name of the pair. ok is false when the
// pair is unknown.
func (s *SqliteStore) OperatorName(ctx context.Context, mcc, mnc int) (name string, ok bool, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	if err = db.QueryRowContext(ctx, selectOperatorSQL, mcc, mnc).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		err = fmt.Errorf("querying operator: %w", err)
		return
	}
	return name, true, nil
}
