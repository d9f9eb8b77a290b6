// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

// Package secure implements the bridge's secure channel: the ephemeral
// RSA-OAEP key-exchange handshake that derives a per-connection AES-256-GCM
// session key, the envelope cipher that seals every subsequent message,
// and the HKDF token-derived fallback key scheme.
//
// Negotiation either fully succeeds or the channel is unusable. Session
// keys live exactly as long as one socket connection and are never
// persisted.
package secure
