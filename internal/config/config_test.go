package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"ZEC", "BTC", "ETH", "XMR"}, cfg.Pairs)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.SnapshotInterval())
	assert.Equal(t, time.Hour, cfg.RetentionWindow())
	assert.Equal(t, 256, cfg.BroadcastCapacity)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatTimeout())
	assert.Equal(t, 10*time.Second, cfg.SubscribeTimeout())
	assert.Equal(t, 15*time.Second, cfg.InitialSnapshotTimeout())
	assert.Equal(t, 5*time.Second, cfg.DrainGrace())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().ListenAddr, cfg.ListenAddr)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
pairs = ["ZEC", "BTC"]
listen_addr = "127.0.0.1:9090"
snapshot_interval_secs = 10
log_level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ZEC", "BTC"}, cfg.Pairs)
	assert.Equal(t, "127.0.0.1:9090", cfg.ListenAddr)
	assert.Equal(t, 10, cfg.SnapshotIntervalSecs)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3600, cfg.RetentionWindowSecs)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEPTHCAST_PAIRS", "ETH, XMR")
	t.Setenv("DEPTHCAST_LISTEN_ADDR", "0.0.0.0:9999")
	t.Setenv("DEPTHCAST_RETENTION_WINDOW_SECS", "7200")
	t.Setenv("DEPTHCAST_BOOK_DEPTH", "25")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, []string{"ETH", "XMR"}, cfg.Pairs)
	assert.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
	assert.Equal(t, 7200, cfg.RetentionWindowSecs)
	assert.Equal(t, 25, cfg.BookDepth)
}

func TestEnvOverrideIgnoresUnparseable(t *testing.T) {
	t.Setenv("DEPTHCAST_BROADCAST_CAPACITY", "lots")

	cfg := Defaults()
	applyEnvOverrides(&cfg)
	assert.Equal(t, 256, cfg.BroadcastCapacity)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Pairs = nil
	cfg.UpstreamURL = "http://not-a-websocket"
	cfg.BookDepth = 7
	cfg.SnapshotIntervalSecs = 0
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pairs must not be empty")
	assert.Contains(t, err.Error(), "upstream_url")
	assert.Contains(t, err.Error(), "book_depth")
	assert.Contains(t, err.Error(), "snapshot_interval_secs")
	assert.Contains(t, err.Error(), "log_level")
}

func TestValidateRejectsDuplicatePairs(t *testing.T) {
	cfg := Defaults()
	cfg.Pairs = []string{"ZEC", "ZEC"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidateRetentionSmallerThanInterval(t *testing.T) {
	cfg := Defaults()
	cfg.RetentionWindowSecs = 2
	cfg.SnapshotIntervalSecs = 5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention_window_secs")
}
