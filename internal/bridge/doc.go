// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

// Package bridge implements the encrypted RPC channel to the local
// companion process.
//
// A connection starts with a key exchange: either the asymmetric
// negotiateSession handshake (ephemeral RSA-OAEP keypair, AES-256-GCM
// session key) or, when a shared bridge token is configured, a session key
// derived from that token. After the exchange every request and response
// travels sealed inside a SecureEnvelope. A handshake that fails for any
// reason marks the whole channel unavailable; there is no plaintext
// fallback.
//
// Requests are correlated by id through a relay.Table fed by a single
// demultiplexing read loop. On unexpected close, one reconnect is
// scheduled after a fixed short delay, gated on the injected HostProbe;
// after that the channel stays down until the next explicit
// DetectAndInitialize.
package bridge
