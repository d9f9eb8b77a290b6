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

// ProgressSocketURL derives the job tracker's WebSocket address from the
// backend base URL: the scheme flips to ws/wss, the fixed progress path is
// appended, and the per-session client id rides as a query parameter.
func (c *BackendConfig) ProgressSocketURL(clientID string) (string, error) {
	if c.BaseURL == "" {
		return "", fmt.Errorf("backend base URL is not configured")
	}

	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("backend base URL failed to parse: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
		// Already a socket URL.
	default:
		return "", fmt.Errorf("backend base URL scheme %q is not usable for websockets", parsed.Scheme)
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + c.ProgressPath

	q := parsed.Query()
	q.Set("client_id", clientID)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}
