package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestNewAppliesOptionsOverDefaults(t *testing.T) {
	c := New(
		WithDataDir("/tmp/vela"),
		WithMaxIndexes(8),
		WithIndexerWorkers(2),
		WithMaxBatchTasks(50),
		WithSchedulerTick(500*time.Millisecond),
		WithMetricsAddr(":9100"),
		WithLogLevel("debug"),
	)
	require.Equal(t, "/tmp/vela", c.DataDir)
	require.Equal(t, 8, c.MaxIndexes)
	require.Equal(t, 2, c.IndexerWorkers)
	require.Equal(t, 50, c.MaxBatchTasks)
	require.Equal(t, 500*time.Millisecond, c.SchedulerTick)
	require.Equal(t, ":9100", c.MetricsAddr)
	require.Equal(t, "debug", c.LogLevel)
	require.NoError(t, c.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []Config{
		New(WithDataDir("")),
		New(WithMaxIndexes(0)),
		New(WithIndexerWorkers(-1)),
		New(WithMaxBatchTasks(0)),
		New(WithLogLevel("verbose")),
	}
	for _, c := range cases {
		require.Error(t, c.Validate())
	}
}

func TestViperLoadHonorsFlagOverridesOverDefaults(t *testing.T) {
	v := NewBareViper()
	v.Set("data_dir", "/srv/vela")
	v.Set("max_indexes", 99)

	cfg := Load(v)
	require.Equal(t, "/srv/vela", cfg.DataDir)
	require.Equal(t, 99, cfg.MaxIndexes)
	// Everything not overridden still comes from Default().
	require.Equal(t, Default().IndexerWorkers, cfg.IndexerWorkers)
	require.Equal(t, Default().LogLevel, cfg.LogLevel)
}
