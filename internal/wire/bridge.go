// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package wire

import (
	"github.com/goccy/go-json"
)

// Bridge method names understood by the companion process.
const (
	MethodNegotiateSession     = "negotiateSession"
	MethodTestConnection       = "testConnection"
	MethodEmbedAudioFromFile   = "embedAudioFromFile"
	MethodGetSlideAudioInfo    = "getSlideAudioInfo"
	MethodSetAudioSettings     = "setAudioSettings"
	MethodRemoveAudioFromSlide = "removeAudioFromSlides"
)

// Request is the logical bridge request. Pre-handshake it travels as-is;
// post-handshake it is serialized and sealed into a SecureEnvelope.
type Request struct {
	ID         string `json:"id"`
	Method     string `json:"method"`
	Parameters any    `json:"parameters,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Response is the logical bridge response, matched to its Request by ID.
type Response struct {
	ID        string          `json:"id"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// SecureEnvelope is the outer encrypted wrapper: the payload is the
// serialized Request/Response sealed under the session key with a fresh
// IV per message. A message with an empty EncryptedPayload is plaintext.
type SecureEnvelope struct {
	ID               string `json:"id"`
	EncryptedPayload string `json:"encryptedPayload"`
	IV               string `json:"iv"`
}

// Sealed reports whether the message actually carries ciphertext.
func (e SecureEnvelope) Sealed() bool {
	return e.EncryptedPayload != ""
}

// NegotiateParams carries the client's ephemeral public key in the one
// plaintext request a connection is allowed to send.
type NegotiateParams struct {
	PublicKey string `json:"publicKey"`
}

// HandshakeResult is the peer's reply to negotiateSession: the session key
// sealed under the client's public key, plus an IV and optional challenge
// the client must decrypt under the derived session key.
type HandshakeResult struct {
	EncryptedSessionKey string `json:"encryptedSessionKey"`
	IV                  string `json:"iv"`
	EncryptedChallenge  string `json:"encryptedChallenge,omitempty"`
}

// EmbedAudioParams addresses one slide's audio embed operation.
type EmbedAudioParams struct {
	FilePath   string `json:"filePath"`
	SlideIndex int    `json:"slideIndex"`
}

// SlideAudioInfoParams selects the slide to describe.
type SlideAudioInfoParams struct {
	SlideIndex int `json:"slideIndex"`
}

// AudioSettingsParams mirrors the playback settings the host exposes.
type AudioSettingsParams struct {
	SlideIndex       int     `json:"slideIndex"`
	AutoPlay         bool    `json:"autoPlay"`
	HideWhilePlaying bool    `json:"hideWhilePlaying"`
	Volume           float64 `json:"volume"`
}

// SlideSelector addresses either every slide or an explicit index set for
// removal. It serializes to the string "all" or a JSON array of indexes,
// which is the encoding the companion process expects.
type SlideSelector struct {
	All     bool
	Indexes []int
}

// AllSlides selects every slide.
func AllSlides() SlideSelector {
	return SlideSelector{All: true}
}

// Slides selects an explicit index set.
func Slides(indexes ...int) SlideSelector {
	return SlideSelector{Indexes: indexes}
}

// MarshalJSON implements json.Marshaler.
func (s SlideSelector) MarshalJSON() ([]byte, error) {
	if s.All {
		return json.Marshal("all")
	}
	if s.Indexes == nil {
		return json.Marshal([]int{})
	}
	return json.Marshal(s.Indexes)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SlideSelector) UnmarshalJSON(data []byte) error {
	var all string
	if err := json.Unmarshal(data, &all); err == nil {
		s.All = all == "all"
		s.Indexes = nil
		return nil
	}
	s.All = false
	return json.Unmarshal(data, &s.Indexes)
}

// RemoveAudioParams carries the slide selector for audio removal.
type RemoveAudioParams struct {
	Slides SlideSelector `json:"slides"`
}
