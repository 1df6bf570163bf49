// Package config defines the configuration for the depthcast market-data
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DEPTHCAST_* environment
// variables.
type Config struct {
	// Pairs is the set of short ticker symbols to subscribe to.
	Pairs []string `toml:"pairs"`

	// ListenAddr is the HTTP/WebSocket bind address.
	ListenAddr string `toml:"listen_addr"`

	// UpstreamURL is the exchange WebSocket feed endpoint.
	UpstreamURL string `toml:"upstream_url"`

	// BookDepth is the per-side depth requested from upstream and kept in
	// the engine. Upstream accepts 10, 25, 100, 500, 1000.
	BookDepth int `toml:"book_depth"`

	SnapshotIntervalSecs int `toml:"snapshot_interval_secs"`
	RetentionWindowSecs  int `toml:"retention_window_secs"`
	BroadcastCapacity    int `toml:"broadcast_capacity"`

	HeartbeatTimeoutSecs       int `toml:"heartbeat_timeout"`
	SubscribeTimeoutSecs       int `toml:"subscribe_timeout"`
	InitialSnapshotTimeoutSecs int `toml:"initial_snapshot_timeout"`
	RequestTimeoutSecs         int `toml:"request_timeout"`
	DrainGraceSecs             int `toml:"drain_grace_secs"`

	LogLevel string `toml:"log_level"`
}

// Defaults returns a Config populated with the documented default values.
func Defaults() Config {
	return Config{
		Pairs:                      []string{"ZEC", "BTC", "ETH", "XMR"},
		ListenAddr:                 "0.0.0.0:8080",
		UpstreamURL:                "wss://ws.kraken.com/",
		BookDepth:                  1000,
		SnapshotIntervalSecs:       5,
		RetentionWindowSecs:        3600,
		BroadcastCapacity:          256,
		HeartbeatTimeoutSecs:       30,
		SubscribeTimeoutSecs:       10,
		InitialSnapshotTimeoutSecs: 15,
		RequestTimeoutSecs:         10,
		DrainGraceSecs:             5,
		LogLevel:                   "info",
	}
}

// Duration accessors. The TOML surface uses integer seconds to match the
// upstream operator docs; internally everything is a time.Duration.

func (c *Config) SnapshotInterval() time.Duration { return secs(c.SnapshotIntervalSecs) }
func (c *Config) RetentionWindow() time.Duration  { return secs(c.RetentionWindowSecs) }
func (c *Config) HeartbeatTimeout() time.Duration { return secs(c.HeartbeatTimeoutSecs) }
func (c *Config) SubscribeTimeout() time.Duration { return secs(c.SubscribeTimeoutSecs) }
func (c *Config) InitialSnapshotTimeout() time.Duration {
	return secs(c.InitialSnapshotTimeoutSecs)
}
func (c *Config) RequestTimeout() time.Duration { return secs(c.RequestTimeoutSecs) }
func (c *Config) DrainGrace() time.Duration     { return secs(c.DrainGraceSecs) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validBookDepths enumerates the depths the upstream book channel accepts.
var validBookDepths = map[int]bool{10: true, 25: true, 100: true, 500: true, 1000: true}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Pairs) == 0 {
		errs = append(errs, "pairs must not be empty")
	}
	seen := map[string]bool{}
	for _, p := range c.Pairs {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, "pairs must not contain empty entries")
			continue
		}
		if seen[p] {
			errs = append(errs, fmt.Sprintf("pairs contains duplicate %q", p))
		}
		seen[p] = true
	}

	if c.ListenAddr == "" {
		errs = append(errs, "listen_addr must not be empty")
	}
	if c.UpstreamURL == "" {
		errs = append(errs, "upstream_url must not be empty")
	} else if !strings.HasPrefix(c.UpstreamURL, "ws://") && !strings.HasPrefix(c.UpstreamURL, "wss://") {
		errs = append(errs, fmt.Sprintf("upstream_url must be a ws:// or wss:// URL, got %q", c.UpstreamURL))
	}

	if !validBookDepths[c.BookDepth] {
		errs = append(errs, fmt.Sprintf("book_depth must be one of 10, 25, 100, 500, 1000, got %d", c.BookDepth))
	}

	if c.SnapshotIntervalSecs < 1 {
		errs = append(errs, "snapshot_interval_secs must be >= 1")
	}
	if c.RetentionWindowSecs < c.SnapshotIntervalSecs {
		errs = append(errs, "retention_window_secs must be >= snapshot_interval_secs")
	}
	if c.BroadcastCapacity < 1 {
		errs = append(errs, "broadcast_capacity must be >= 1")
	}

	if c.HeartbeatTimeoutSecs < 1 {
		errs = append(errs, "heartbeat_timeout must be >= 1")
	}
	if c.SubscribeTimeoutSecs < 1 {
		errs = append(errs, "subscribe_timeout must be >= 1")
	}
	if c.InitialSnapshotTimeoutSecs < 1 {
		errs = append(errs, "initial_snapshot_timeout must be >= 1")
	}
	if c.RequestTimeoutSecs < 1 {
		errs = append(errs, "request_timeout must be >= 1")
	}
	if c.DrainGraceSecs < 0 {
		errs = append(errs, "drain_grace_secs must be >= 0")
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
