// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

// Package metrics defines the Prometheus instrumentation for both realtime
// channels. Metrics are registered on the default registry via promauto;
// the daemon exposes them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Channel label values.
const (
	ChannelBridge  = "bridge"
	ChannelTracker = "tracker"
)

var (
	// ConnectionState tracks each channel's current lifecycle state.
	// Values mirror relay.ConnState ordinals.
	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voicelink_connection_state",
			Help: "Current connection state per channel (0=disconnected, 1=connecting, 2=handshaking, 3=ready, 4=reconnecting, 5=stopped, 6=error)",
		},
		[]string{"channel"},
	)

	// ReconnectAttempts counts scheduled reconnects per channel.
	ReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicelink_reconnect_attempts_total",
			Help: "Total reconnect attempts scheduled after unexpected socket loss",
		},
		[]string{"channel"},
	)

	// Handshakes counts secure-channel negotiations by outcome.
	Handshakes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicelink_bridge_handshakes_total",
			Help: "Total secure channel handshake attempts by outcome",
		},
		[]string{"outcome"},
	)

	// BridgeRequests counts bridge RPCs by method and outcome
	// (ok, remote_error, timeout, transport_error).
	BridgeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicelink_bridge_requests_total",
			Help: "Total bridge requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// BridgeRequestDuration observes request round-trip latency.
	BridgeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicelink_bridge_request_duration_seconds",
			Help:    "Bridge request round-trip duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	// SnapshotsReceived counts normalized progress snapshots by status.
	SnapshotsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicelink_tracker_snapshots_total",
			Help: "Total normalized progress snapshots by job status",
		},
		[]string{"status"},
	)

	// MalformedMessages counts inbound messages dropped or surfaced as
	// malformed, per channel.
	MalformedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicelink_malformed_messages_total",
			Help: "Total inbound messages rejected as malformed",
		},
		[]string{"channel"},
	)

	// ManifestRefreshes counts terminal-state manifest refresh triggers.
	ManifestRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicelink_tracker_manifest_refreshes_total",
			Help: "Total manifest refresh callbacks fired on terminal job states",
		},
	)
)
