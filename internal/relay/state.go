// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package relay

import "sync"

// ConnState is the lifecycle state of one client's socket. Each client owns
// exactly one live socket at a time, so a single state value suffices.
type ConnState int

const (
	// StateDisconnected means no socket exists and none is being opened.
	StateDisconnected ConnState = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateHandshaking means the socket is open and the secure-channel
	// negotiation is running (bridge only).
	StateHandshaking

	// StateReady means the socket is open and usable for requests.
	StateReady

	// StateReconnecting means the socket dropped unexpectedly and a
	// reconnect timer is pending.
	StateReconnecting

	// StateStopped means a deliberate stop was issued. This is terminal
	// for automatic transitions: only an explicit restart leaves it.
	StateStopped

	// StateError means the channel failed in a way that suppresses
	// automatic recovery (for example a failed handshake).
	StateError
)

// String returns the lower-case state name for logging.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Machine is a small guarded state holder. All writes funnel through To
// and ToIf so a firing reconnect timer and a concurrent manual stop cannot
// race each other into an inconsistent state.
type Machine struct {
	mu    sync.Mutex
	state ConnState
}

// NewMachine returns a machine in StateDisconnected.
func NewMachine() *Machine {
	return &Machine{state: StateDisconnected}
}

// State returns the current state.
func (m *Machine) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// To transitions unconditionally, except that nothing leaves StateStopped
// other than an explicit restart via Restart.
func (m *Machine) To(next ConnState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateStopped && next != StateStopped {
		return false
	}
	m.state = next
	return true
}

// ToIf transitions to next only when the current state matches from.
// Reports whether the transition happened.
func (m *Machine) ToIf(from, next ConnState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != from {
		return false
	}
	m.state = next
	return true
}

// Restart leaves StateStopped (or any state) back to StateDisconnected,
// for an explicit caller-initiated re-detect.
func (m *Machine) Restart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateDisconnected
}

// Stopped is a convenience read used by timer callbacks to no-op after a
// deliberate stop.
func (m *Machine) Stopped() bool {
	return m.State() == StateStopped
}
