package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/signal-exposure/internal/metrics"
	"github.com/roman-kulish/signal-exposure/internal/operator"
	"github.com/roman-kulish/signal-exposure/internal/retention"
	"github.com/roman-kulish/signal-exposure/internal/storage"
	"github.com/roman-kulish/signal-exposure/internal/summary"
	"github.com/roman-kulish/signal-exposure/internal/timeline"
)

const (
	storageDir      = "data"
	shutdownTimeout = 5 * time.Second
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	loc, err := config.Settings.Location()
	if err != nil {
		return err
	}

	store, err := createStorage(&config.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	gate := &sync.Mutex{}

	builder := timeline.NewBuilder(store,
		timeline.WithLogger(logger),
		timeline.WithParallelism(config.Timeline.Parallelism),
		timeline.WithMetrics(m))

	engine := summary.NewEngine(store, builder,
		summary.WithLogger(logger),
		summary.WithMetrics(m),
		summary.WithLocation(loc),
		summary.WithWriteGate(gate),
		summary.WithHistoryDays(config.Retention.HistoryDays),
		summary.WithMaxLookbackDays(config.Summary.MaxLookbackDays),
		summary.WithMinDaysBeforeNotifying(config.Summary.MinDaysBeforeNotifying))

	manager := retention.NewManager(store,
		retention.WithLogger(logger),
		retention.WithMetrics(m),
		retention.WithLocation(loc),
		retention.WithWriteGate(gate),
		retention.WithHistory(config.Retention.HistoryDays, config.Retention.Top5HistoryDays))

	resolver, err := operator.NewResolver(store, operator.WithLogger(logger), operator.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to create operator resolver: %w", err)
	}

	scheduler := NewScheduler(engine, retention.NewRunner(manager, config.Retention.Interval), resolver,
		config.Summary.Interval, loc, logger)

	logger.Info("starting",
		slog.String("timeZone", loc.String()),
		slog.Int("historyDays", config.Retention.HistoryDays),
		slog.Duration("summaryInterval", config.Summary.Interval),
		slog.Duration("retentionInterval", config.Retention.Interval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(ctx) })
	if config.Metrics.Listen != "" {
		g.Go(func() error { return serveMetrics(ctx, config.Metrics.Listen, m, logger) })
	}

	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("stopped")
	return nil
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serving metrics: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down metrics server: %w", err)
	}
	return ctx.Err()
}

func createStorage(config *StorageConfig, logger *slog.Logger) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	fileName := config.FileName
	if fileName == "" {
		fileName = defaultFileName
	}

	return storage.NewSqliteStore(filepath.Join(dir, fileName), storage.WithLogger(logger)), nil
}
