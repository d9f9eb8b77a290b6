// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package relay

import "time"

// Backoff computes reconnect delays that grow exponentially per attempt
// and saturate at MaxDelay. It carries no state: the caller owns the
// attempt counter and resets it on every successful (re)connection.
type Backoff struct {
	// Base is the delay for the first attempt.
	Base time.Duration

	// CapAttempt bounds the exponent so the doubling stops growing
	// past this attempt number.
	CapAttempt int

	// MaxDelay is the ceiling applied after the exponential growth.
	MaxDelay time.Duration
}

// DefaultBackoff returns the reconnect schedule used by the job tracker:
// 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       time.Second,
		CapAttempt: 6,
		MaxDelay:   30 * time.Second,
	}
}

// Delay returns the wait before reconnect attempt n (1-based).
// Attempts below 1 are treated as the first attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.CapAttempt > 0 && attempt > b.CapAttempt {
		attempt = b.CapAttempt
	}

	d := b.Base << uint(attempt-1)
	if b.MaxDelay > 0 && (d > b.MaxDelay || d <= 0) {
		d = b.MaxDelay
	}
	return d
}
