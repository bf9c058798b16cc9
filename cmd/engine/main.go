// Command engine is the thin control-plane harness wiring the task
// queue, index registry, and search packages behind a cobra CLI and a
// minimal HTTP server. It is not part of the tested core (§6 places the
// HTTP/RPC surface out of scope); it exists only to exercise the core
// packages end to end from a single binary.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/velasearch/vela/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "vela search engine",
	Long: `vela is an embedded full-text search engine: a durable task queue,
per-index MDBX storage, and a ranking-rule search pipeline, wired behind
a small CLI for manual exercising.`,
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML/JSON/TOML, optional)")
	cobra.OnInitialize(func() {
		if cfgFile != "" {
			if err := config.LoadFile(serveViper, cfgFile); err != nil {
				fmt.Fprintln(os.Stderr, "warning: reading config file:", err)
			}
		}
	})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	zlevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zlevel).
		With().Timestamp().Str("component", "engine").Logger()
}
