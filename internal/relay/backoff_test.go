// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package relay

import (
	"testing"
	"time"
)

func TestBackoffDelaySchedule(t *testing.T) {
	b := DefaultBackoff()

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	for i, w := range want {
		attempt := i + 1
		if got := b.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffDelayNonDecreasing(t *testing.T) {
	b := DefaultBackoff()

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := b.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", attempt, d, prev)
		}
		if d > b.MaxDelay {
			t.Fatalf("Delay(%d) = %v exceeds cap %v", attempt, d, b.MaxDelay)
		}
		prev = d
	}
}

func TestBackoffDelayClampsLowAttempts(t *testing.T) {
	b := DefaultBackoff()

	for _, attempt := range []int{-3, 0, 1} {
		if got := b.Delay(attempt); got != b.Base {
			t.Errorf("Delay(%d) = %v, want base %v", attempt, got, b.Base)
		}
	}
}

func TestBackoffCustomSchedule(t *testing.T) {
	b := Backoff{
		Base:       500 * time.Millisecond,
		CapAttempt: 3,
		MaxDelay:   5 * time.Second,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 2 * time.Second}, // exponent capped at attempt 3
		{100, 2 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
