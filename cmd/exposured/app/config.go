package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/signal-exposure/internal/retention"
	"github.com/roman-kulish/signal-exposure/internal/summary"
)

const (
	defaultFileName        = "signals.db"
	defaultSummaryInterval = time.Hour
)

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	Summary   SummaryConfig   `yaml:"summary"`
	Timeline  TimelineConfig  `yaml:"timeline"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
	TimeZone string     `yaml:"timeZone"` // IANA name, the host zone when empty
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	FileName      string `yaml:"fileName"`
}

// RetentionConfig represents data retention settings
type RetentionConfig struct {
	HistoryDays     int           `yaml:"historyDays"`
	Top5HistoryDays int           `yaml:"top5HistoryDays"`
	Interval        time.Duration `yaml:"interval"`
}

// SummaryConfig represents daily summary backfill settings
type SummaryConfig struct {
	MaxLookbackDays        int           `yaml:"maxLookbackDays"`
	MinDaysBeforeNotifying int           `yaml:"minDaysBeforeNotifying"`
	Interval               time.Duration `yaml:"interval"`
}

// TimelineConfig represents timeline builder settings
type TimelineConfig struct {
	Parallelism int `yaml:"parallelism"`
}

// MetricsConfig represents the metrics endpoint settings
type MetricsConfig struct {
	Listen string `yaml:"listen"` // Address of the /metrics endpoint, disabled when empty
}

func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Storage:  StorageConfig{FileName: defaultFileName},
		Retention: RetentionConfig{
			HistoryDays:     retention.DefaultHistoryDays,
			Top5HistoryDays: retention.DefaultTop5HistoryDays,
			Interval:        retention.DefaultInterval,
		},
		Summary: SummaryConfig{
			MaxLookbackDays:        summary.DefaultMaxLookbackDays,
			MinDaysBeforeNotifying: summary.DefaultMinDaysBeforeNotifying,
			Interval:               defaultSummaryInterval,
		},
	}
}

// LoadConfig reads the YAML configuration at path on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := NewConfig()
	if err = yaml.NewDecoder(f).Decode(c); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var err error
	switch {
	case c.Retention.HistoryDays <= 0:
		err = errors.New("retention.historyDays must be positive")
	case c.Retention.Top5HistoryDays < c.Retention.HistoryDays:
		err = errors.New("retention.top5HistoryDays must not be shorter than retention.historyDays")
	case c.Retention.Interval <= 0:
		err = errors.New("retention.interval must be positive")
	case c.Summary.MaxLookbackDays < 0:
		err = errors.New("summary.maxLookbackDays must not be negative")
	case c.Summary.MinDaysBeforeNotifying < 0:
		err = errors.New("summary.minDaysBeforeNotifying must not be negative")
	case c.Summary.Interval <= 0:
		err = errors.New("summary.interval must be positive")
	case c.Timeline.Parallelism < 0:
		err = errors.New("timeline.parallelism must not be negative")
	}
	if err != nil {
		return err
	}

	_, err = c.Settings.Location()
	return err
}

// Location returns the time zone calendar days are taken in.
func (s Settings) Location() (*time.Location, error) {
	if s.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("settings.timeZone: %w", err)
	}
	return loc, nil
}
