package app

import (
	"errors"
	"flag"
	"os"
)

const DefaultBatchSize = 1000

type Config struct {
	DBPath        string
	ReadingsFile  string // JSON lines, one reading per line
	OperatorsFile string // "mcc;mnc;country;name" lines
	BatchSize     int
	Verbose       bool
}

func NewConfig() *Config {
	return &Config{
		BatchSize: DefaultBatchSize,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return parseConfig(flag.CommandLine, os.Args[1:])
}

func parseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.StringVar(&c.ReadingsFile, "readings", "", "Path to a JSON lines file of readings")
	fs.StringVar(&c.OperatorsFile, "operators", "", "Path to the operator reference file")
	fs.IntVar(&c.BatchSize, "batch", DefaultBatchSize, "Number of readings stored per transaction")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.ReadingsFile == "" && c.OperatorsFile == "" {
		err = errors.New("nothing to import, provide readings or operators")
	} else if c.BatchSize <= 0 {
		err = errors.New("batch size must be positive")
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}
	return c, nil
}
