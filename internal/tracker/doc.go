// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

// Package tracker implements the pub/sub progress client for remote
// narration jobs: it subscribes to one job at a time over a WebSocket,
// normalizes inbound progress events into immutable snapshots, keeps a
// bounded newest-first history, fires a manifest-refresh callback exactly
// once per terminal state, and reconnects with capped exponential backoff
// until explicitly stopped.
package tracker
