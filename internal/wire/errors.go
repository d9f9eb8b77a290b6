// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package wire

import "errors"

// ErrMalformedPayload marks an inbound message that could not be used:
// JSON that does not parse, a required field that is absent or mistyped,
// or a sealed payload that does not decrypt. It is surfaced to callers as
// a non-fatal error; the connection carrying it stays open.
var ErrMalformedPayload = errors.New("malformed payload")
