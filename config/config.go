// Package config loads a governor.Config from a YAML file and environment
// variables.
//
// Precedence, lowest first: the base config (a preset, DefaultConfig unless
// WithBase is given), the YAML file, then PREFIX_* environment variables.
// The result is validated before it is returned.
//
//	cfg, err := config.Load("governor.yaml", config.WithEnvPrefix("GOVERNOR"))
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/governor"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the prefix used when WithEnvPrefix is not set.
const DefaultEnvPrefix = "GOVERNOR"

// Unset is the environment value that clears an optional limit.
const Unset = "none"

// Environment variable suffixes, joined to the prefix with an underscore.
const (
	EnvCPUCapPercent           = "CPU_CAP_PERCENT"
	EnvRAMCapBytes             = "RAM_CAP_BYTES"
	EnvIOOpsPerSecond          = "IO_OPS_PER_SECOND"
	EnvIOThrottleMode          = "IO_THROTTLE_MODE"
	EnvDeterministicMode       = "DETERMINISTIC_MODE"
	EnvSandboxMode             = "SANDBOX_MODE"
	EnvMaxConcurrentOperations = "MAX_CONCURRENT_OPERATIONS"
)

// Preset names accepted by Preset.
const (
	PresetDefault    = "default"
	PresetTesting    = "testing"
	PresetProduction = "production"
)

// Preset returns the named built-in config.
func Preset(name string) (governor.Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetDefault:
		return governor.DefaultConfig(), nil
	case PresetTesting:
		return governor.TestingConfig(), nil
	case PresetProduction:
		return governor.ProductionConfig(), nil
	default:
		return governor.Config{}, &governor.ConfigError{
			Key:     "preset",
			Message: fmt.Sprintf("unknown preset %q (want %s, %s or %s)", name, PresetDefault, PresetTesting, PresetProduction),
		}
	}
}

type options struct {
	base      governor.Config
	envPrefix string
	lookupEnv func(string) (string, bool)
}

// Option configures Load.
type Option func(*options)

// WithBase sets the config the file and environment are layered on.
func WithBase(cfg governor.Config) Option {
	return func(o *options) {
		o.base = cfg
	}
}

// WithEnvPrefix sets the environment prefix. An empty prefix disables the
// environment overlay.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = strings.TrimSuffix(prefix, "_")
	}
}

// WithLookupEnv replaces os.LookupEnv, mainly for tests.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *options) {
		if fn != nil {
			o.lookupEnv = fn
		}
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string, opts ...Option) (governor.Config, error) {
	o := options{
		base:      governor.DefaultConfig(),
		envPrefix: DefaultEnvPrefix,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(&o)
	}

	// Decoding writes through the pointer fields; never into the caller's base.
	cfg := o.base.Clone()

	if path != "" {
		//nolint:gosec // path is chosen by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return governor.Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := Decode(bytes.NewReader(data), &cfg); err != nil {
			return governor.Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if o.envPrefix != "" {
		if err := applyEnvOverrides(&cfg, o.envPrefix, o.lookupEnv); err != nil {
			return governor.Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return governor.Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Decode reads YAML into cfg. Keys not in governor.Config are rejected.
// Fields absent from the document keep their current value. An empty
// document is not an error.
func Decode(r io.Reader, cfg *governor.Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg governor.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func applyEnvOverrides(cfg *governor.Config, prefix string, lookup func(string) (string, bool)) error {
	get := func(suffix string) (key, val string, ok bool) {
		key = prefix + "_" + suffix
		val, ok = lookup(key)
		val = strings.TrimSpace(val)
		return key, val, ok && val != ""
	}

	if key, val, ok := get(EnvCPUCapPercent); ok {
		v, err := parseOptionalUint(key, val, 8)
		if err != nil {
			return err
		}
		cfg.CPUCapPercent = nil
		if v != nil {
			cfg.CPUCapPercent = governor.Ptr(uint8(*v))
		}
	}

	if key, val, ok := get(EnvRAMCapBytes); ok {
		v, err := parseOptionalUint(key, val, 64)
		if err != nil {
			return err
		}
		cfg.RAMCapBytes = v
	}

	if key, val, ok := get(EnvIOOpsPerSecond); ok {
		v, err := parseOptionalUint(key, val, 64)
		if err != nil {
			return err
		}
		cfg.IOOpsPerSecond = v
	}

	if _, val, ok := get(EnvIOThrottleMode); ok {
		cfg.IOThrottleMode = governor.IOThrottleMode(strings.ToLower(val))
	}

	if key, val, ok := get(EnvDeterministicMode); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return envError(key, val, "boolean")
		}
		cfg.DeterministicMode = b
	}

	if key, val, ok := get(EnvSandboxMode); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return envError(key, val, "boolean")
		}
		cfg.SandboxMode = b
	}

	if key, val, ok := get(EnvMaxConcurrentOperations); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return envError(key, val, "integer")
		}
		cfg.MaxConcurrentOperations = n
	}

	return nil
}

// parseOptionalUint returns nil for Unset.
func parseOptionalUint(key, val string, bits int) (*uint64, error) {
	if strings.EqualFold(val, Unset) {
		return nil, nil
	}
	n, err := strconv.ParseUint(val, 10, bits)
	if err != nil {
		return nil, envError(key, val, fmt.Sprintf("%d-bit unsigned integer or %q", bits, Unset))
	}
	return &n, nil
}

func envError(key, val, want string) error {
	return &governor.ConfigError{
		Key:     key,
		Message: fmt.Sprintf("invalid value %q, want %s", val, want),
	}
}
