package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roman-kulish/signal-exposure/internal/metrics"
	"github.com/roman-kulish/signal-exposure/internal/signal"
	"github.com/roman-kulish/signal-exposure/internal/storage"
)

const (
	NoOperator      = "no operator"
	UnknownOperator = "unknown operator"

	DefaultCacheSize = 512
)

// Source looks up the carrier name of a country and network code pair.
type Source interface {
	OperatorName(ctx context.Context, mcc, mnc int) (name string, ok bool, err error)
}

func WithLogger(logger *slog.Logger) func(*Resolver) {
	return func(r *Resolver) {
		r.logger = logger.With(slog.String("component", "operator"))
	}
}

func WithMetrics(m *metrics.Metrics) func(*Resolver) {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithCacheSize sets the number of pairs kept in memory.
func WithCacheSize(size int) func(*Resolver) {
	return func(r *Resolver) {
		if size > 0 {
			r.size = size
		}
	}
}

// Resolver is a read-through cache in front of a Source.
type Resolver struct {
	source  Source
	cache   *lru.Cache[string, string]
	size    int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewResolver(source Source, options ...func(*Resolver)) (*Resolver, error) {
	r := Resolver{
		source: source,
		size:   DefaultCacheSize,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	cache, err := lru.New[string, string](r.size)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	r.cache = cache

	return &r, nil
}

func cacheKey(mcc, mnc int) string {
	return strconv.Itoa(mcc) + " " + strconv.Itoa(mnc)
}

// Name returns the carrier name of the pair. A pair without any code is
// NoOperator and a pair missing from the source is UnknownOperator.
func (r *Resolver) Name(ctx context.Context, mcc, mnc int) (string, error) {
	if mcc == signal.Unavailable && mnc == signal.Unavailable {
		return NoOperator, nil
	}

	key := cacheKey(mcc, mnc)
	if name, ok := r.cache.Get(key); ok {
		r.metrics.OperatorLookup(true)
		return name, nil
	}
	r.metrics.OperatorLookup(false)

	name, ok, err := r.source.OperatorName(ctx, mcc, mnc)
	if err != nil {
		return "", fmt.Errorf("looking up operator %s: %w", key, err)
	}
	if !ok || name == "" {
		r.logger.Debug("operator not found", slog.Int("mcc", mcc), slog.Int("mnc", mnc))
		name = UnknownOperator
	}

	r.cache.Add(key, name)
	return name, nil
}

// NameOf returns the carrier of a cellular reading, and ok false for
// technologies without an operator.
func (r *Resolver) NameOf(ctx context.Context, reading signal.Reading) (name string, ok bool, err error) {
	cell, ok := signal.CellOf(reading)
	if !ok {
		return "", false, nil
	}
	name, err = r.Name(ctx, cell.MCC, cell.MNC)
	return name, err == nil, err
}

// Parse reads operator reference data, one "mcc;mnc;country;name" record per
// line. Blank lines are skipped.
func Parse(in io.Reader) ([]storage.Operator, error) {
	var operators []storage.Operator

	scanner := bufio.NewScanner(in)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		fields := strings.Split(text, ";")
		if len(fields) < 4 {
			return nil, fmt.Errorf("line %d: expected 4 fields, got %d", line, len(fields))
		}

		mcc, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing mcc: %w", line, err)
		}
		mnc, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing mnc: %w", line, err)
		}

		operators = append(operators, storage.Operator{MCC: mcc, MNC: mnc, Name: strings.TrimSpace(fields[3])})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading operators: %w", err)
	}

	return operators, nil
}
