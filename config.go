package governor

import (
	"fmt"
)

// IOThrottleMode selects the algorithm behind ThrottleIO.
type IOThrottleMode string

const (
	// IOThrottleFixedWindow counts operations per one-second window and makes
	// the caller sleep out the window once the limit is reached. Bursts of up
	// to twice the limit are possible across a window boundary.
	IOThrottleFixedWindow IOThrottleMode = "fixed-window"

	// IOThrottleTokenBucket spreads operations evenly with a burst equal to
	// the per-second limit.
	IOThrottleTokenBucket IOThrottleMode = "token-bucket"
)

const (
	// DefaultMaxConcurrentOperations is used by DefaultConfig.
	DefaultMaxConcurrentOperations = 1000

	// MaxCPUCapPercent is the largest valid CPU cap.
	MaxCPUCapPercent = 100
)

// Config holds resource limits. Optional limits are pointers; nil means
// no limit. Use Ptr to fill them in.
type Config struct {
	// CPUCapPercent is the CPU usage (0-100) above which admissions are
	// soft-throttled.
	CPUCapPercent *uint8 `yaml:"cpu_cap_percent,omitempty" json:"cpu_cap_percent,omitempty"`

	// RAMCapBytes is the tracked RAM usage above which admissions are rejected.
	RAMCapBytes *uint64 `yaml:"ram_cap_bytes,omitempty" json:"ram_cap_bytes,omitempty"`

	// IOOpsPerSecond limits ThrottleIO. Must be positive when set.
	IOOpsPerSecond *uint64 `yaml:"io_ops_per_second,omitempty" json:"io_ops_per_second,omitempty"`

	// IOThrottleMode selects the IO algorithm. Empty means IOThrottleFixedWindow.
	IOThrottleMode IOThrottleMode `yaml:"io_throttle_mode,omitempty" json:"io_throttle_mode,omitempty"`

	// DeterministicMode makes RNG return a fixed-seed source.
	DeterministicMode bool `yaml:"deterministic_mode" json:"deterministic_mode"`

	// SandboxMode is informational; the governor does not enforce it.
	SandboxMode bool `yaml:"sandbox_mode" json:"sandbox_mode"`

	// MaxConcurrentOperations bounds outstanding permits. Must be >= 1.
	MaxConcurrentOperations int `yaml:"max_concurrent_operations" json:"max_concurrent_operations"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// DefaultConfig returns a config without caps and 1000 concurrent operations.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentOperations: DefaultMaxConcurrentOperations,
	}
}

// TestingConfig returns strict limits with deterministic and sandbox mode on.
func TestingConfig() Config {
	return Config{
		CPUCapPercent:           Ptr[uint8](50),
		RAMCapBytes:             Ptr[uint64](512 << 20), // 512MiB
		IOOpsPerSecond:          Ptr[uint64](100),
		DeterministicMode:       true,
		SandboxMode:             true,
		MaxConcurrentOperations: 10,
	}
}

// ProductionConfig returns moderate limits.
func ProductionConfig() Config {
	return Config{
		CPUCapPercent:           Ptr[uint8](80),
		RAMCapBytes:             Ptr[uint64](4 << 30), // 4GiB
		IOOpsPerSecond:          Ptr[uint64](10000),
		MaxConcurrentOperations: DefaultMaxConcurrentOperations,
	}
}

// Validate rejects impossible limits. It returns a *ConfigError.
func (c Config) Validate() error {
	if c.CPUCapPercent != nil && *c.CPUCapPercent > MaxCPUCapPercent {
		return &ConfigError{
			Key:     "cpu_cap_percent",
			Message: fmt.Sprintf("must be <= %d, got %d", MaxCPUCapPercent, *c.CPUCapPercent),
		}
	}

	if c.MaxConcurrentOperations < 1 {
		return &ConfigError{
			Key:     "max_concurrent_operations",
			Message: fmt.Sprintf("must be > 0, got %d", c.MaxConcurrentOperations),
		}
	}

	if c.IOOpsPerSecond != nil && *c.IOOpsPerSecond == 0 {
		return &ConfigError{
			Key:     "io_ops_per_second",
			Message: "must be > 0 when set",
		}
	}

	switch c.IOThrottleMode {
	case "", IOThrottleFixedWindow, IOThrottleTokenBucket:
	default:
		return &ConfigError{
			Key:     "io_throttle_mode",
			Message: fmt.Sprintf("unknown mode %q", c.IOThrottleMode),
		}
	}

	return nil
}

// Clone returns a deep copy of c that shares no pointers with it.
func (c Config) Clone() Config {
	out := c
	if c.CPUCapPercent != nil {
		out.CPUCapPercent = Ptr(*c.CPUCapPercent)
	}
	if c.RAMCapBytes != nil {
		out.RAMCapBytes = Ptr(*c.RAMCapBytes)
	}
	if c.IOOpsPerSecond != nil {
		out.IOOpsPerSecond = Ptr(*c.IOOpsPerSecond)
	}
	return out
}
