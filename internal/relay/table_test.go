// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package relay

import (
	"errors"
	"testing"
	"time"
)

func TestTableResolve(t *testing.T) {
	tbl := NewTable()

	ch, err := tbl.Add("req-1", time.Minute)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if !tbl.Resolve("req-1", []byte(`{"ok":true}`)) {
		t.Fatal("Resolve reported unmatched for a pending id")
	}

	res := <-ch
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if string(res.Payload) != `{"ok":true}` {
		t.Errorf("payload = %q", res.Payload)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d after resolve, want 0", tbl.Len())
	}
}

func TestTableReject(t *testing.T) {
	tbl := NewTable()

	ch, err := tbl.Add("req-1", time.Minute)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	remoteErr := errors.New("remote said no")
	if !tbl.Reject("req-1", remoteErr) {
		t.Fatal("Reject reported unmatched for a pending id")
	}

	res := <-ch
	if !errors.Is(res.Err, remoteErr) {
		t.Errorf("err = %v, want %v", res.Err, remoteErr)
	}
}

func TestTableDuplicateID(t *testing.T) {
	tbl := NewTable()

	if _, err := tbl.Add("req-1", 0); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if _, err := tbl.Add("req-1", 0); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("second Add err = %v, want ErrDuplicateID", err)
	}
}

func TestTableTimeout(t *testing.T) {
	tbl := NewTable()

	ch, err := tbl.Add("req-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	select {
	case res := <-ch:
		if !errors.Is(res.Err, ErrRequestTimeout) {
			t.Errorf("err = %v, want ErrRequestTimeout", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}

	// A late response for the timed-out id must be reported unmatched
	// so the caller can drop it silently.
	if tbl.Resolve("req-1", []byte("late")) {
		t.Error("late response matched a timed-out id")
	}
}

func TestTableSettlesExactlyOnce(t *testing.T) {
	tbl := NewTable()

	ch, err := tbl.Add("req-1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if !tbl.Resolve("req-1", []byte("first")) {
		t.Fatal("Resolve failed")
	}

	// Wait out the timeout window; the stopped timer must not deliver a
	// second result.
	time.Sleep(50 * time.Millisecond)

	res := <-ch
	if res.Err != nil || string(res.Payload) != "first" {
		t.Fatalf("unexpected result: %+v", res)
	}

	select {
	case extra := <-ch:
		t.Fatalf("entry settled twice: %+v", extra)
	default:
	}
}

func TestTableReset(t *testing.T) {
	tbl := NewTable()

	ch1, _ := tbl.Add("req-1", time.Minute)
	ch2, _ := tbl.Add("req-2", time.Minute)

	tbl.Reset(nil)

	for _, ch := range []<-chan Result{ch1, ch2} {
		res := <-ch
		if !errors.Is(res.Err, ErrConnectionClosed) {
			t.Errorf("err = %v, want ErrConnectionClosed", res.Err)
		}
	}
	if tbl.Len() != 0 {
		t.Errorf("Len = %d after Reset, want 0", tbl.Len())
	}

	// A response correlated on a previous socket generation must not
	// match an id registered after the reset.
	chNew, _ := tbl.Add("req-1", time.Minute)
	if !tbl.Resolve("req-1", []byte("new-gen")) {
		t.Fatal("new-generation id did not resolve")
	}
	res := <-chNew
	if string(res.Payload) != "new-gen" {
		t.Errorf("payload = %q", res.Payload)
	}
}

func TestTableStaleTimerAfterReset(t *testing.T) {
	tbl := NewTable()

	ch, _ := tbl.Add("req-1", 15*time.Millisecond)
	tbl.Reset(nil)

	res := <-ch
	if !errors.Is(res.Err, ErrConnectionClosed) {
		t.Fatalf("err = %v, want ErrConnectionClosed", res.Err)
	}

	// Re-register the same id in the new generation. The old entry's
	// timer fires inside this window and must not evict the new entry.
	chNew, _ := tbl.Add("req-1", time.Minute)
	time.Sleep(40 * time.Millisecond)

	if !tbl.Resolve("req-1", []byte("ok")) {
		t.Fatal("stale timer evicted the new generation's entry")
	}
	if res := <-chNew; res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
}

func TestMachineTransitions(t *testing.T) {
	m := NewMachine()

	if m.State() != StateDisconnected {
		t.Fatalf("initial state = %v", m.State())
	}

	if !m.ToIf(StateDisconnected, StateConnecting) {
		t.Fatal("ToIf(Disconnected, Connecting) failed")
	}
	if m.ToIf(StateDisconnected, StateReady) {
		t.Fatal("ToIf matched a stale from-state")
	}

	m.To(StateReady)
	if m.State() != StateReady {
		t.Fatalf("state = %v, want ready", m.State())
	}
}

func TestMachineStopIsSticky(t *testing.T) {
	m := NewMachine()
	m.To(StateReady)
	m.To(StateStopped)

	// A reconnect timer that fires after a deliberate stop must not be
	// able to transition out of Stopped.
	if m.To(StateReconnecting) {
		t.Fatal("left Stopped via To")
	}
	if m.ToIf(StateStopped, StateConnecting) {
		t.Fatal("left Stopped via ToIf")
	}
	if !m.Stopped() {
		t.Fatal("Stopped() = false")
	}

	m.Restart()
	if m.State() != StateDisconnected {
		t.Fatalf("state after Restart = %v", m.State())
	}
}

func TestConnStateString(t *testing.T) {
	tests := []struct {
		state ConnState
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateHandshaking, "handshaking"},
		{StateReady, "ready"},
		{StateReconnecting, "reconnecting"},
		{StateStopped, "stopped"},
		{StateError, "error"},
		{ConnState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
