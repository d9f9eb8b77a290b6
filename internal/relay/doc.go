// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

// Package relay holds the connection-management leaves shared by the
// bridge and the job tracker: the request/response correlation table,
// the capped exponential reconnect backoff, and the connection state
// machine. It knows nothing about wire formats or sockets.
package relay
