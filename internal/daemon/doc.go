// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

// Package daemon wires the realtime clients into a suture supervisor for
// the voicelinkd entry point: a keepalive prober for the bridge channel
// and the optional Prometheus metrics endpoint.
package daemon
