// Package config is the engine's configuration surface: a plain struct
// with functional-option constructors for programmatic callers (embedding
// the engine as a library), plus a viper-backed loader for the CLI
// surface that layers flags over environment variables over an optional
// config file over the same defaults.
package config

import (
	"fmt"
	"time"
)

// Config holds every knob the engine's storage, scheduler, and search
// layers read at startup. There is no live-reload: a new Config only
// takes effect across a process restart.
type Config struct {
	// DataDir is the root directory under which the task queue
	// environment, per-index environments, the update-file pool, and
	// snapshot/dump directories all live (§6 "Persisted state layout").
	DataDir string

	// MaxIndexes is the configured cap on concurrently open index
	// environments. It is loaded and validated, but index.Registry does
	// not read it: no cap on open indexes is enforced.
	MaxIndexes int

	// IndexerWorkers sizes the bounded worker pool the document-indexing
	// pipeline runs under (§4.3 step 5, §5).
	IndexerWorkers int

	// MaxBatchTasks is the configured cap on tasks folded into one batch.
	// It is loaded and validated, but the tasks package does not read it:
	// batch construction applies no task-count cap.
	MaxBatchTasks int

	// SchedulerTick is the configured safety-net poll interval. It is
	// loaded but not passed to the scheduler, which always polls at its
	// fixed tasks.maxSafetyNetInterval.
	SchedulerTick time.Duration

	// MetricsAddr is the configured listen address for a separate
	// Prometheus scrape endpoint. It is loaded but not read by cmd/engine,
	// which always serves /metrics on its main HTTP listener.
	MetricsAddr string

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithDataDir overrides the data root.
func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

// WithMaxIndexes overrides the open-index cap.
func WithMaxIndexes(n int) Option {
	return func(c *Config) { c.MaxIndexes = n }
}

// WithIndexerWorkers overrides the indexing worker pool size.
func WithIndexerWorkers(n int) Option {
	return func(c *Config) { c.IndexerWorkers = n }
}

// WithMaxBatchTasks overrides the per-batch task cap.
func WithMaxBatchTasks(n int) Option {
	return func(c *Config) { c.MaxBatchTasks = n }
}

// WithSchedulerTick overrides the scheduler's safety-net poll interval.
func WithSchedulerTick(d time.Duration) Option {
	return func(c *Config) { c.SchedulerTick = d }
}

// WithMetricsAddr overrides the metrics listen address.
func WithMetricsAddr(addr string) Option {
	return func(c *Config) { c.MetricsAddr = addr }
}

// WithLogLevel overrides the log level.
func WithLogLevel(level string) Option {
	return func(c *Config) { c.LogLevel = level }
}

// Default returns the baseline configuration every deployment starts
// from before options or the viper loader apply overrides.
func Default() Config {
	return Config{
		DataDir:        "./data",
		MaxIndexes:     64,
		IndexerWorkers: 4,
		MaxBatchTasks:  1000,
		SchedulerTick:  2 * time.Second,
		MetricsAddr:    "",
		LogLevel:       "info",
	}
}

// New builds a Config from Default with opts applied, in order.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate checks the invariants the rest of the engine assumes hold: a
// non-empty data directory and strictly positive capacity/worker counts.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if c.MaxIndexes <= 0 {
		return fmt.Errorf("config: max_indexes must be positive, got %d", c.MaxIndexes)
	}
	if c.IndexerWorkers <= 0 {
		return fmt.Errorf("config: indexer_workers must be positive, got %d", c.IndexerWorkers)
	}
	if c.MaxBatchTasks <= 0 {
		return fmt.Errorf("config: max_batch_tasks must be positive, got %d", c.MaxBatchTasks)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be one of debug/info/warn/error, got %q", c.LogLevel)
	}
	return nil
}
