// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

// Package wire defines the JSON message shapes spoken on both sockets:
// the bridge's request/response envelopes (plaintext and sealed) and the
// job service's subscribe/unsubscribe and progress messages. All encoding
// goes through goccy/go-json, matching the rest of the codebase.
package wire
