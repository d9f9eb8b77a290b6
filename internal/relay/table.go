// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package relay

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrRequestTimeout is returned when no matching response arrives
	// before the per-request deadline.
	ErrRequestTimeout = errors.New("request timed out waiting for response")

	// ErrConnectionClosed rejects every outstanding request when the
	// socket carrying them goes away.
	ErrConnectionClosed = errors.New("connection closed with request in flight")

	// ErrDuplicateID is returned when a request id is registered twice.
	ErrDuplicateID = errors.New("duplicate request id")
)

// Result is the settled outcome of one correlated request: either a raw
// response payload or an error, never both.
type Result struct {
	Payload []byte
	Err     error
}

// Table correlates request ids with their pending completions. Each entry
// settles exactly once, from whichever fires first: a matching response,
// its own timeout, or a connection teardown. A late response for an id
// that already settled is reported as unmatched and dropped by callers.
//
// Entries are scoped to one socket generation; Reset rejects everything
// outstanding and bumps the generation so a stale response from a previous
// socket can never match a new socket's entry.
type Table struct {
	mu      sync.Mutex
	gen     uint64
	pending map[string]*pendingRequest
}

type pendingRequest struct {
	ch     chan Result
	timer  *time.Timer
	sentAt time.Time
}

// NewTable returns an empty correlation table.
func NewTable() *Table {
	return &Table{pending: make(map[string]*pendingRequest)}
}

// Add registers id and returns a channel that receives the single settled
// Result. When timeout is positive, the entry rejects itself with
// ErrRequestTimeout if nothing matches it in time.
func (t *Table) Add(id string, timeout time.Duration) (<-chan Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.pending[id]; exists {
		return nil, ErrDuplicateID
	}

	p := &pendingRequest{
		ch:     make(chan Result, 1),
		sentAt: time.Now(),
	}
	t.pending[id] = p

	if timeout > 0 {
		gen := t.gen
		p.timer = time.AfterFunc(timeout, func() {
			t.expire(id, gen)
		})
	}

	return p.ch, nil
}

// Resolve settles id with a successful payload. It reports whether the id
// was still pending; false means the response was late or stale and the
// caller should drop it silently.
func (t *Table) Resolve(id string, payload []byte) bool {
	return t.settle(id, Result{Payload: payload})
}

// Reject settles id with an error. Reports whether the id was still pending.
func (t *Table) Reject(id string, err error) bool {
	return t.settle(id, Result{Err: err})
}

// Reset rejects every outstanding entry with the given error (defaulting
// to ErrConnectionClosed) and advances the table to a new generation.
// Called on every socket teardown so nothing dangles across reconnects.
func (t *Table) Reset(err error) {
	if err == nil {
		err = ErrConnectionClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, p := range t.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.ch <- Result{Err: err}
		delete(t.pending, id)
	}
	t.gen++
}

// Len returns the number of outstanding requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Table) settle(id string, res Result) bool {
	t.mu.Lock()
	p, ok := t.pending[id]
	if ok {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	p.ch <- res
	return true
}

// expire is the timer path. The generation check makes a timer belonging
// to a previous socket generation a no-op after Reset.
func (t *Table) expire(id string, gen uint64) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	p, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if ok {
		p.ch <- Result{Err: ErrRequestTimeout}
	}
}
