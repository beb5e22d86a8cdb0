package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/signal-exposure/internal/operator"
	"github.com/roman-kulish/signal-exposure/internal/signal"
	"github.com/roman-kulish/signal-exposure/internal/storage"
)

// eventImport is the event type recorded after every successful import.
const eventImport = 1

const maxLineSize = 1 << 20

// Store is the part of the storage the importer writes to.
type Store interface {
	InsertReadings(ctx context.Context, readings []signal.Reading) error
	InsertOperators(ctx context.Context, operators []storage.Operator) error
	RecordEvent(ctx context.Context, eventType int, created time.Time) error
}

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store := storage.NewSqliteStore(config.DBPath, storage.WithLogger(logger))
	defer store.Close()

	if config.OperatorsFile != "" {
		if err := importOperators(ctx, store, config.OperatorsFile, logger); err != nil {
			return err
		}
	}

	if config.ReadingsFile != "" {
		f, err := os.Open(config.ReadingsFile)
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := ImportReadings(ctx, store, f, config.BatchSize, logger)
		if err != nil {
			return fmt.Errorf("importing %s: %w", config.ReadingsFile, err)
		}
		logger.Info("readings imported", slog.String("count", humanize.Comma(n)), slog.String("file", config.ReadingsFile))
	}

	return store.RecordEvent(ctx, eventImport, time.Now())
}

func importOperators(ctx context.Context, store Store, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	operators, err := operator.Parse(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if err = store.InsertOperators(ctx, operators); err != nil {
		return err
	}

	logger.Info("operators imported", slog.String("count", humanize.Comma(int64(len(operators)))), slog.String("file", path))
	return nil
}

// ImportReadings stores the JSON lines of in, batchSize readings per
// transaction, and returns the number of stored readings. Blank lines are
// skipped. A malformed line aborts the import; batches already stored stay.
func ImportReadings(ctx context.Context, store Store, in io.Reader, batchSize int, logger *slog.Logger) (int64, error) {
	var total int64
	batch := make([]signal.Reading, 0, batchSize)
	start := time.Now()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.InsertReadings(ctx, batch); err != nil {
			return err
		}
		total += int64(len(batch))
		batch = batch[:0]

		logger.Debug("batch stored",
			slog.String("total", humanize.Comma(total)),
			slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
		return nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var r signal.Reading
		if err := json.Unmarshal(data, &r); err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		r.Location = r.Location.OrInvalid()
		batch = append(batch, r)

		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, fmt.Errorf("line %d: %w", line, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, err
	}

	return total, flush()
}
