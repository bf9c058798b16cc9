package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers the CLI flags that back every Config field onto
// flags, and binds each one into v. Call before flags.Parse; call Load
// afterward to read the resolved values back out: a flag-then-bind-then-
// parse sequence scaled down to this engine's own knobs.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	d := Default()
	flags.String("data-dir", d.DataDir, "data root directory")
	flags.Int("max-indexes", d.MaxIndexes, "maximum number of indexes kept open at once")
	flags.Int("indexer-workers", d.IndexerWorkers, "indexing worker pool size")
	flags.Int("max-batch-tasks", d.MaxBatchTasks, "maximum tasks folded into one executed batch")
	flags.Duration("scheduler-tick", d.SchedulerTick, "scheduler safety-net poll interval")
	flags.String("metrics-addr", d.MetricsAddr, "Prometheus metrics listen address (empty disables)")
	flags.String("log-level", d.LogLevel, "log level: debug, info, warn, error")

	_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("max_indexes", flags.Lookup("max-indexes"))
	_ = v.BindPFlag("indexer_workers", flags.Lookup("indexer-workers"))
	_ = v.BindPFlag("max_batch_tasks", flags.Lookup("max-batch-tasks"))
	_ = v.BindPFlag("scheduler_tick", flags.Lookup("scheduler-tick"))
	_ = v.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
}

// NewBareViper constructs a Viper instance wired for this engine's
// defaults and VELA_-prefixed environment variables, but with no config
// file loaded yet — the CLI harness binds flags onto it before it knows
// whether a --config flag was passed, so file loading happens in a
// separate LoadFile call once flags are parsed.
func NewBareViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("VELA")
	v.AutomaticEnv()
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("max_indexes", d.MaxIndexes)
	v.SetDefault("indexer_workers", d.IndexerWorkers)
	v.SetDefault("max_batch_tasks", d.MaxBatchTasks)
	v.SetDefault("scheduler_tick", d.SchedulerTick)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)
	return v
}

// NewViper is NewBareViper followed immediately by LoadFile when
// configFile is non-empty, for callers (tests, programmatic embedding)
// that already know their config file path up front.
func NewViper(configFile string) *viper.Viper {
	v := NewBareViper()
	if configFile != "" {
		_ = LoadFile(v, configFile)
	}
	return v
}

// LoadFile points v at configFile and reads it in, merging its values
// under whatever flags/env were already bound. Returns ReadInConfig's
// error unmodified; a missing or unreadable file is not fatal by
// itself — callers typically log the error and continue on flags/env
// alone, a "best effort" config-file handling policy.
func LoadFile(v *viper.Viper, configFile string) error {
	v.SetConfigFile(configFile)
	return v.ReadInConfig()
}

// Load resolves a Config from v, honoring whatever precedence v itself
// was built with (flags > env > config file > defaults, viper's own
// standing order).
func Load(v *viper.Viper) Config {
	return Config{
		DataDir:        v.GetString("data_dir"),
		MaxIndexes:     v.GetInt("max_indexes"),
		IndexerWorkers: v.GetInt("indexer_workers"),
		MaxBatchTasks:  v.GetInt("max_batch_tasks"),
		SchedulerTick:  v.GetDuration("scheduler_tick"),
		MetricsAddr:    v.GetString("metrics_addr"),
		LogLevel:       v.GetString("log_level"),
	}
}
