// Package main is the entry point for the governor binary.
// It validates governor configs, drives synthetic load through a governor
// and serves its metrics.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/governor"
	"github.com/hupe1980/governor/config"
	"github.com/spf13/cobra"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	preset     string
	envPrefix  string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "governor",
		Short: "In-process resource governor tooling",
		Long: `Validate governor configurations, run synthetic load through a governor
and expose its metrics.

Configuration is layered: preset, then the YAML file, then environment
variables such as GOVERNOR_CPU_CAP_PERCENT.

Example:
  governor validate --config governor.yaml
  governor run --preset testing --tasks 200 --io-per-task 2
  governor serve --config governor.yaml --listen :9090`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file (YAML)")
	pf.StringVar(&flags.preset, "preset", config.PresetDefault, "Base preset (default, testing, production)")
	pf.StringVar(&flags.envPrefix, "env-prefix", config.DefaultEnvPrefix, "Environment variable prefix, empty disables overrides")
	pf.StringVarP(&flags.logLevel, "log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", defaultLogFormat, "Log format (text, json)")

	rootCmd.AddCommand(
		newValidateCmd(flags),
		newRunCmd(flags),
		newServeCmd(flags),
	)

	return rootCmd
}

// loadConfig resolves the preset, file and environment layers.
func (f *rootFlags) loadConfig() (governor.Config, error) {
	base, err := config.Preset(f.preset)
	if err != nil {
		return governor.Config{}, err
	}

	return config.Load(f.configPath,
		config.WithBase(base),
		config.WithEnvPrefix(f.envPrefix),
	)
}

// newLogger builds a governor logger writing to w.
func (f *rootFlags) newLogger(w io.Writer) (*governor.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", f.logLevel, err)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(f.logFormat) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", f.logFormat)
	}

	return governor.NewLogger(handler), nil
}
