package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_ADDR", "SOLANA_RPC_URL", "PORT", "API_AUTH_TOKEN", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "5339", c.Server.Port)
	assert.Equal(t, 30*time.Second, c.Server.RequestTimeout)
	assert.Equal(t, 24*time.Hour, c.Engine.TimeWindow)
	assert.Equal(t, 3, c.Engine.TraceDepth)
	assert.Equal(t, "confirmed", c.Chain.Commitment)
	assert.Equal(t, 4, c.Chain.FetchConcurrency)
	assert.Equal(t, "info", c.Log.Level)
	assert.Empty(t, c.Database.URL)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: "8080"
engine:
  time_window: 12h
  similarity_threshold: 0.8
log:
  format: console
`)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/txflow")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", c.Server.Port)
	assert.Equal(t, "postgres://localhost/txflow", c.Database.URL)
	assert.Equal(t, 12*time.Hour, c.Engine.TimeWindow)
	assert.Equal(t, "console", c.Log.Format)
	assert.Equal(t, 3, c.Engine.MinTransactions)

	h := c.Heuristics()
	assert.Equal(t, 12*time.Hour, h.Grouping.TimeWindow)
	assert.Equal(t, 0.8, h.Merge.SimilarityThreshold)
	assert.Equal(t, 5, h.Trace.MaxDepth)
}

func TestLoad_ValidationErrors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"trace depth above bound", "engine:\n  trace_depth: 9\n"},
		{"bad commitment", "chain:\n  commitment: eventual\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"threshold out of range", "engine:\n  similarity_threshold: 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, "validate config")
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}

func TestLoad_WatchList(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
chain:
  watch_addresses:
    - 4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T
  poll_interval: 1m
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"}, c.Chain.WatchAddresses)
	assert.Equal(t, time.Minute, c.Chain.PollInterval)

	c, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.Chain.PollInterval)
	assert.Empty(t, c.Chain.WatchAddresses)
}
