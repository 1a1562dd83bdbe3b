package governor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "cpu cap 0", mutate: func(c *Config) { c.CPUCapPercent = Ptr[uint8](0) }},
		{name: "cpu cap 100", mutate: func(c *Config) { c.CPUCapPercent = Ptr[uint8](100) }},
		{name: "cpu cap 150", mutate: func(c *Config) { c.CPUCapPercent = Ptr[uint8](150) }, wantKey: "cpu_cap_percent"},
		{name: "zero concurrency", mutate: func(c *Config) { c.MaxConcurrentOperations = 0 }, wantKey: "max_concurrent_operations"},
		{name: "negative concurrency", mutate: func(c *Config) { c.MaxConcurrentOperations = -3 }, wantKey: "max_concurrent_operations"},
		{name: "zero io rate", mutate: func(c *Config) { c.IOOpsPerSecond = Ptr[uint64](0) }, wantKey: "io_ops_per_second"},
		{name: "token bucket", mutate: func(c *Config) { c.IOThrottleMode = IOThrottleTokenBucket }},
		{name: "unknown io mode", mutate: func(c *Config) { c.IOThrottleMode = "leaky" }, wantKey: "io_throttle_mode"},
		{name: "ram cap 0", mutate: func(c *Config) { c.RAMCapBytes = Ptr[uint64](0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestConfig_Presets(t *testing.T) {
	tc := TestingConfig()
	require.NoError(t, tc.Validate())
	assert.True(t, tc.DeterministicMode)
	assert.True(t, tc.SandboxMode)
	assert.Equal(t, uint8(50), *tc.CPUCapPercent)
	assert.Equal(t, uint64(512<<20), *tc.RAMCapBytes)
	assert.Equal(t, uint64(100), *tc.IOOpsPerSecond)
	assert.Equal(t, 10, tc.MaxConcurrentOperations)

	production := ProductionConfig()
	require.NoError(t, production.Validate())
	assert.False(t, production.DeterministicMode)
	assert.False(t, production.SandboxMode)
	assert.Equal(t, uint8(80), *production.CPUCapPercent)
	assert.Equal(t, uint64(4<<30), *production.RAMCapBytes)

	def := DefaultConfig()
	require.NoError(t, def.Validate())
	assert.Nil(t, def.CPUCapPercent)
	assert.Nil(t, def.RAMCapBytes)
	assert.Nil(t, def.IOOpsPerSecond)
	assert.Equal(t, DefaultMaxConcurrentOperations, def.MaxConcurrentOperations)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CPUCapPercent = Ptr[uint8](101)

	g, err := New(cfg)
	assert.Nil(t, g)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_CopiesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RAMCapBytes = Ptr[uint64](100)

	g, err := New(cfg)
	require.NoError(t, err)

	// Mutating the caller's config must not change the governor.
	*cfg.RAMCapBytes = 1
	assert.Equal(t, uint64(100), *g.Config().RAMCapBytes)
	assert.Equal(t, IOThrottleFixedWindow, g.Config().IOThrottleMode)
}

func TestConfig_Clone(t *testing.T) {
	orig := ProductionConfig()
	c := orig.Clone()
	assert.Equal(t, orig, c)

	*c.CPUCapPercent = 1
	*c.RAMCapBytes = 2
	*c.IOOpsPerSecond = 3
	assert.Equal(t, ProductionConfig(), orig)
	assert.Empty(t, c.IOThrottleMode)
}
