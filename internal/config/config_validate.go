// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded configuration for structural problems.
// It runs every check and returns the first failure.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateBackend,
		c.validateBridge,
		c.validateTracker,
		c.validateMetrics,
	}

	for _, validator := range validators {
		if err := validator(); err != nil {
			return err
		}
	}
	return nil
}

// validateBackend checks the job service base URL when one is set.
// An empty base URL is allowed: the tracker is simply not used then.
func (c *Config) validateBackend() error {
	if c.Backend.BaseURL == "" {
		return nil
	}

	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("BACKEND_BASE_URL failed to parse: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("BACKEND_BASE_URL scheme must be http or https, got: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL host is required")
	}
	if parsed.RawQuery != "" {
		return fmt.Errorf("BACKEND_BASE_URL should not contain query parameters, remove: ?%s", parsed.RawQuery)
	}

	if !strings.HasPrefix(c.Backend.ProgressPath, "/") {
		return fmt.Errorf("BACKEND_PROGRESS_PATH must start with /, got: %s", c.Backend.ProgressPath)
	}
	return nil
}

// validateBridge checks the companion process endpoint and timings.
func (c *Config) validateBridge() error {
	parsed, err := url.Parse(c.Bridge.Endpoint)
	if err != nil {
		return fmt.Errorf("BRIDGE_ENDPOINT failed to parse: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("BRIDGE_ENDPOINT scheme must be ws or wss, got: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("BRIDGE_ENDPOINT host is required")
	}

	if c.Bridge.RequestTimeout <= 0 {
		return fmt.Errorf("BRIDGE_REQUEST_TIMEOUT must be positive")
	}
	if c.Bridge.ReconnectDelay <= 0 {
		return fmt.Errorf("BRIDGE_RECONNECT_DELAY must be positive")
	}
	if c.Bridge.DialTimeout <= 0 {
		return fmt.Errorf("BRIDGE_DIAL_TIMEOUT must be positive")
	}
	return nil
}

// validateTracker checks history and backoff bounds.
func (c *Config) validateTracker() error {
	if c.Tracker.HistoryCap < 1 {
		return fmt.Errorf("TRACKER_HISTORY_CAP must be at least 1")
	}
	if c.Tracker.BackoffBase <= 0 {
		return fmt.Errorf("TRACKER_BACKOFF_BASE must be positive")
	}
	if c.Tracker.BackoffCapAttempt < 1 {
		return fmt.Errorf("TRACKER_BACKOFF_CAP_ATTEMPT must be at least 1")
	}
	if c.Tracker.BackoffMaxDelay < c.Tracker.BackoffBase {
		return fmt.Errorf("TRACKER_BACKOFF_MAX_DELAY must be at least the backoff base")
	}
	return nil
}

// validateMetrics checks the metrics listen address when enabled.
func (c *Config) validateMetrics() error {
	if !c.Metrics.Enabled {
		return nil
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("METRICS_ADDR is required when metrics are enabled")
	}
	return nil
}
