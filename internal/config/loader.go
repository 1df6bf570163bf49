package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEPTHCAST_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the defaults and
// environment are enough to run. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEPTHCAST_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators tune the process at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStringSlice(&cfg.Pairs, "DEPTHCAST_PAIRS")
	setStr(&cfg.ListenAddr, "DEPTHCAST_LISTEN_ADDR")
	setStr(&cfg.UpstreamURL, "DEPTHCAST_UPSTREAM_URL")
	setInt(&cfg.BookDepth, "DEPTHCAST_BOOK_DEPTH")
	setInt(&cfg.SnapshotIntervalSecs, "DEPTHCAST_SNAPSHOT_INTERVAL_SECS")
	setInt(&cfg.RetentionWindowSecs, "DEPTHCAST_RETENTION_WINDOW_SECS")
	setInt(&cfg.BroadcastCapacity, "DEPTHCAST_BROADCAST_CAPACITY")
	setInt(&cfg.HeartbeatTimeoutSecs, "DEPTHCAST_HEARTBEAT_TIMEOUT")
	setInt(&cfg.SubscribeTimeoutSecs, "DEPTHCAST_SUBSCRIBE_TIMEOUT")
	setInt(&cfg.InitialSnapshotTimeoutSecs, "DEPTHCAST_INITIAL_SNAPSHOT_TIMEOUT")
	setInt(&cfg.RequestTimeoutSecs, "DEPTHCAST_REQUEST_TIMEOUT")
	setInt(&cfg.DrainGraceSecs, "DEPTHCAST_DRAIN_GRACE_SECS")
	setStr(&cfg.LogLevel, "DEPTHCAST_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
