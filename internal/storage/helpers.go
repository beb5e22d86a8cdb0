package storage

import (
	"database/sql"
	"errors"

	"github.com/roman-kulish/signal-exposure/internal/signal"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIntOr(n sql.NullInt64, def int) int {
	if !n.Valid {
		return def
	}
	return int(n.Int64)
}

// toStoredLocation maps positions that are not on the globe to the invalid sentinel.
func toStoredLocation(l signal.Location) signal.Location {
	return l.OrInvalid()
}

// aggregated strips the per-observation fields an aggregated reading cannot
// carry and normalizes its strength.
func aggregated(r signal.Reading) signal.Reading {
	r.Location = signal.InvalidLocation
	r.Created = signal.InvalidTime
	return r.Normalized()
}
