package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/governor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--env-prefix="))

	err := cmd.Execute()
	return stdout.String(), err
}

func TestValidate_Preset(t *testing.T) {
	out, err := execute(t, "validate", "--preset", "testing")
	require.NoError(t, err)

	assert.Contains(t, out, "configuration is valid")

	var cfg governor.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, governor.TestingConfig(), cfg)
}

func TestValidate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrent_operations: 4\n"), 0o600))

	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "max_concurrent_operations: 4")
}

func TestValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cpu_cap_percent: 101\n"), 0o600))

	_, err := execute(t, "validate", "--config", path)
	assert.ErrorIs(t, err, governor.ErrInvalidConfig)

	_, err = execute(t, "validate", "--preset", "nightly")
	assert.ErrorIs(t, err, governor.ErrInvalidConfig)
}

func TestRun(t *testing.T) {
	out, err := execute(t, "run", "--preset", "testing", "--tasks", "20", "--work", "1ms", "--io-per-task", "1", "--otel")
	require.NoError(t, err)

	var report runReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))

	assert.Equal(t, int64(20), report.Completed)
	assert.Zero(t, report.Rejected)
	assert.Equal(t, uint64(20), report.Statistics.TotalOperations)
	assert.Zero(t, report.Statistics.InFlight)
	assert.Equal(t, int64(20), report.Metrics.ReleaseCount)
	assert.Equal(t, 20.0, report.OTel["governor.admissions"])
}

func TestRun_RAMRejections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ram_cap_bytes: 0\nmax_concurrent_operations: 1\n"), 0o600))

	// RAM is returned before the slot, so the next admission sees zero usage.
	out, err := execute(t, "run", "--config", path, "--tasks", "5", "--work", "0s", "--ram-per-task", "1")
	require.NoError(t, err)

	var report runReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(5), report.Completed+report.Rejected)
	assert.Zero(t, report.Statistics.CurrentRAMUsage)
}

func TestRun_InvalidFlags(t *testing.T) {
	_, err := execute(t, "run", "--tasks=-1")
	assert.Error(t, err)

	_, err = execute(t, "run", "--log-level", "loud")
	assert.Error(t, err)

	_, err = execute(t, "run", "--log-format", "xml")
	assert.Error(t, err)
}

func TestServeMux(t *testing.T) {
	g, err := governor.New(governor.DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = g.Close() }()

	reg := prometheus.NewRegistry()
	srv := httptest.NewServer(newServeMux(g, reg))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/pause", "", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, g.IsPaused())

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	var stats governor.Statistics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	_ = resp.Body.Close()
	assert.True(t, stats.IsPaused)

	resp, err = http.Post(srv.URL+"/resume", "", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.False(t, g.IsPaused())

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHeapSample(t *testing.T) {
	s, err := heapSample(t.Context())
	require.NoError(t, err)
	require.NotNil(t, s.RAMBytes)
	assert.Positive(t, *s.RAMBytes)
	assert.Nil(t, s.CPUPercent)
}

func TestNewLogger(t *testing.T) {
	f := &rootFlags{logLevel: "debug", logFormat: "JSON"}
	var buf bytes.Buffer
	l, err := f.newLogger(&buf)
	require.NoError(t, err)

	l.Debug("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}
