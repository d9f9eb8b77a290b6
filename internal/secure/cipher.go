// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// sessionKeySize is the AES key size in bytes (256 bits).
	sessionKeySize = 32

	// gcmNonceSize is the size of the per-message IV in bytes.
	gcmNonceSize = 12
)

var (
	// ErrEmptyToken is returned when deriving a session key from an
	// empty shared bridge token.
	ErrEmptyToken = errors.New("bridge token cannot be empty")

	// ErrInvalidKeySize is returned for session keys that are not
	// valid AES key lengths.
	ErrInvalidKeySize = errors.New("invalid session key size")

	// ErrDecryptFailed is returned when opening an envelope fails:
	// wrong key, tampered ciphertext, or a bad authentication tag.
	ErrDecryptFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrInvalidEnvelope is returned when the payload or IV is not
	// valid base64 or is structurally too short.
	ErrInvalidEnvelope = errors.New("invalid encrypted envelope")
)

const (
	// tokenDerivationSalt binds HKDF output to this module's bridge
	// channel, so the same token used elsewhere yields unrelated keys.
	tokenDerivationSalt = "voicelink-bridge-session"

	// tokenDerivationInfo is the HKDF info parameter.
	tokenDerivationInfo = "session-key-v1"
)

// SessionCipher seals and opens bridge envelopes under one connection's
// session key using AES-256-GCM with a fresh random IV per message. It is
// scoped to a single socket generation: the owner drops it on close and a
// new handshake produces a new cipher.
type SessionCipher struct {
	aead cipher.AEAD
}

// NewSessionCipher builds a cipher around raw symmetric key material, as
// produced by the key-exchange handshake.
func NewSessionCipher(key []byte) (*SessionCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SessionCipher{aead: aead}, nil
}

// NewTokenSessionCipher derives the session key from a shared out-of-band
// bridge token via HKDF-SHA256. This is the documented fallback for peers
// that cannot run the asymmetric handshake; the two schemes are selected
// at construction time and never mixed within one connection.
func NewTokenSessionCipher(token string) (*SessionCipher, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	r := hkdf.New(sha256.New, []byte(token), []byte(tokenDerivationSalt), []byte(tokenDerivationInfo))
	key := make([]byte, sessionKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}
	return NewSessionCipher(key)
}

// Seal encrypts plaintext and returns the base64 ciphertext and base64 IV
// for the wire envelope. Every call uses a fresh random IV.
func (c *SessionCipher) Seal(plaintext []byte) (payload, iv string, err error) {
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("failed to generate IV: %w", err)
	}

	ct := c.aead.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ct), base64.StdEncoding.EncodeToString(nonce), nil
}

// Open decrypts a wire envelope's payload under this connection's session
// key. Any failure is reported as ErrDecryptFailed or ErrInvalidEnvelope;
// the caller treats both as a malformed payload, not a channel failure.
func (c *SessionCipher) Open(payload, iv string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload base64: %s", ErrInvalidEnvelope, err.Error())
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, fmt.Errorf("%w: iv base64: %s", ErrInvalidEnvelope, err.Error())
	}
	if len(nonce) != c.aead.NonceSize() || len(ct) < c.aead.Overhead() {
		return nil, ErrInvalidEnvelope
	}

	pt, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return pt, nil
}
