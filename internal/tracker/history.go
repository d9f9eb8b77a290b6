// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package tracker

import "sync"

// defaultHistoryCap bounds the snapshot history when no cap is given.
const defaultHistoryCap = 25

// History is a bounded newest-first snapshot buffer. Pushing past the cap
// drops the oldest (tail) entries. Entry zero is the externally visible
// "latest progress".
type History struct {
	mu      sync.RWMutex
	cap     int
	entries []Snapshot
}

// NewHistory returns a history bounded at cap entries (default 25 when
// cap is not positive).
func NewHistory(cap int) *History {
	if cap < 1 {
		cap = defaultHistoryCap
	}
	return &History{cap: cap}
}

// Push prepends a snapshot, evicting the tail past the cap.
func (h *History) Push(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append([]Snapshot{s}, h.entries...)
	if len(h.entries) > h.cap {
		h.entries = h.entries[:h.cap]
	}
}

// Latest returns the most recent snapshot, if any.
func (h *History) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.entries) == 0 {
		return Snapshot{}, false
	}
	return h.entries[0], true
}

// Snapshots returns a copy of the buffer, newest first.
func (h *History) Snapshots() []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Snapshot, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of buffered snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Cap returns the buffer bound.
func (h *History) Cap() int {
	return h.cap
}

// Clear empties the buffer.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
