// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

// Package config provides configuration management for Voicelink.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (BRIDGE_ENDPOINT, BACKEND_BASE_URL, ...)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// Base URLs and tokens are inputs from the enclosing application; nothing
// in this layer persists them.
package config

import (
	"time"
)

// Config is the root configuration for both realtime clients.
type Config struct {
	Backend BackendConfig `koanf:"backend"`
	Bridge  BridgeConfig  `koanf:"bridge"`
	Tracker TrackerConfig `koanf:"tracker"`
	Metrics MetricsConfig `koanf:"metrics"`
	Logging LoggingConfig `koanf:"logging"`
}

// BackendConfig locates the remote narration job service.
type BackendConfig struct {
	// BaseURL is the backend's HTTP base URL; the tracker derives its
	// WebSocket address from it.
	BaseURL string `koanf:"base_url"`

	// ProgressPath is the fixed path suffix of the progress socket.
	ProgressPath string `koanf:"progress_path"`
}

// BridgeConfig configures the encrypted channel to the local companion
// process.
type BridgeConfig struct {
	// Endpoint is the companion process's local WebSocket address.
	Endpoint string `koanf:"endpoint"`

	// SharedToken, when set, selects the token-derived session key
	// scheme instead of the asymmetric handshake. The scheme is fixed
	// for the client's lifetime.
	SharedToken string `koanf:"shared_token"`

	// RequestTimeout bounds each RPC round trip.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// ReconnectDelay is the fixed wait before the single reconnect
	// attempt after an unexpected close.
	ReconnectDelay time.Duration `koanf:"reconnect_delay"`

	// DialTimeout bounds the WebSocket handshake.
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// ProbeInterval is how often the daemon re-probes availability.
	ProbeInterval time.Duration `koanf:"probe_interval"`
}

// TrackerConfig configures the job progress subscription client.
type TrackerConfig struct {
	// HistoryCap bounds the newest-first snapshot history.
	HistoryCap int `koanf:"history_cap"`

	// DialTimeout bounds the WebSocket handshake.
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// BackoffBase, BackoffCapAttempt and BackoffMaxDelay shape the
	// reconnect schedule.
	BackoffBase       time.Duration `koanf:"backoff_base"`
	BackoffCapAttempt int           `koanf:"backoff_cap_attempt"`
	BackoffMaxDelay   time.Duration `koanf:"backoff_max_delay"`
}

// MetricsConfig configures the daemon's Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:      "",
			ProgressPath: "/ws/progress",
		},
		Bridge: BridgeConfig{
			Endpoint:       "ws://127.0.0.1:8765/bridge",
			SharedToken:    "",
			RequestTimeout: 15 * time.Second,
			ReconnectDelay: 2 * time.Second,
			DialTimeout:    10 * time.Second,
			ProbeInterval:  30 * time.Second,
		},
		Tracker: TrackerConfig{
			HistoryCap:        25,
			DialTimeout:       10 * time.Second,
			BackoffBase:       time.Second,
			BackoffCapAttempt: 6,
			BackoffMaxDelay:   30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9173",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
