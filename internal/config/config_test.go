package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	_, err := ReadConfig(path)
	require.ErrorIs(t, err, ErrConfigCreated)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestReadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"debug_mode": true,
		"socket": {"heartbeat_interval": "5s", "max_missed_heartbeats": 3},
		"database": {"driver": "memory"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.DebugMode)
	assert.Equal(t, "5s", cfg.Socket.HeartbeatInterval)
	assert.Equal(t, 3, cfg.Socket.MaxMissedHeartbeats)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "10s", cfg.Socket.WriteWait)
	assert.Equal(t, ":5000", cfg.HTTP.Addr)

	got, err := GetConfig()
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}

func TestReadConfigEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))
	t.Setenv("TWIDDER_HTTP_ADDR", ":9999")

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestReadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"socket": {"heartbeat_interval": "soon"}}`), 0644))

	_, err := ReadConfig(path)
	require.ErrorIs(t, err, ErrInvalidConfig)

	require.NoError(t, os.WriteFile(path, []byte(`{"database": {"driver": "oracle"}}`), 0644))
	_, err = ReadConfig(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsZeroDurations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"heartbeat interval", func(c *Config) { c.Socket.HeartbeatInterval = "0s" }},
		{"write wait", func(c *Config) { c.Socket.WriteWait = "0s" }},
		{"operation timeout", func(c *Config) { c.Database.OperationTimeout = "0s" }},
		{"connect timeout", func(c *Config) { c.Database.ConnectTimeout = "0s" }},
		{"mongo heartbeat", func(c *Config) { c.Database.Heartbeat = "0s" }},
		{"presence ttl", func(c *Config) { c.Redis.PresenceTTL = "0s" }},
		{"negative socket timeout", func(c *Config) { c.Database.SocketTimeout = "-1s" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := Default()
	cfg.Database.SocketTimeout = "0s"
	cfg.Database.ConnectIdleTimeout = "0s"
	assert.NoError(t, cfg.Validate())

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"socket": {"heartbeat_interval": "0s"}}`), 0644))
	_, err := ReadConfig(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReadConfigRejectsBrokenJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"debug_mode": `), 0644))

	_, err := ReadConfig(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfigCreated)
}
