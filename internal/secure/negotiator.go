// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package secure

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/slidevoice/voicelink/internal/wire"
)

// rsaKeyBits sizes the ephemeral handshake keypair.
const rsaKeyBits = 2048

// ErrHandshakeFailed is returned for every negotiation failure: key
// generation, the peer's sealed key not decrypting, an undersized key, or
// a challenge that does not open under the derived session key. The caller
// must mark the whole channel unavailable; there is no plaintext fallback.
var ErrHandshakeFailed = errors.New("secure channel handshake failed")

// Negotiator performs one key-exchange handshake: it generates an
// ephemeral RSA-OAEP/SHA-256 keypair, hands the public key to the caller
// for the plaintext negotiateSession request, and derives the session
// cipher from the peer's sealed reply. A Negotiator is single-use; the
// keypair is discarded once Establish returns.
type Negotiator struct {
	priv *rsa.PrivateKey
}

// NewNegotiator generates the ephemeral keypair.
func NewNegotiator() (*Negotiator, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: keypair generation: %s", ErrHandshakeFailed, err.Error())
	}
	return &Negotiator{priv: priv}, nil
}

// PublicKey returns the base64 DER (PKIX) encoding of the ephemeral public
// key, the form sent in the negotiateSession request.
func (n *Negotiator) PublicKey() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&n.priv.PublicKey)
	if err != nil {
		return "", fmt.Errorf("%w: public key encoding: %s", ErrHandshakeFailed, err.Error())
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// Establish completes the handshake from the peer's reply: it unseals the
// session key with the private key, builds the session cipher, verifies
// the optional challenge, and discards the keypair. On any failure the
// returned error wraps ErrHandshakeFailed and no cipher is produced.
func (n *Negotiator) Establish(result wire.HandshakeResult) (*SessionCipher, error) {
	defer func() { n.priv = nil }()

	if n.priv == nil {
		return nil, fmt.Errorf("%w: negotiator already used", ErrHandshakeFailed)
	}
	if result.EncryptedSessionKey == "" {
		return nil, fmt.Errorf("%w: peer sent no session key", ErrHandshakeFailed)
	}

	sealed, err := base64.StdEncoding.DecodeString(result.EncryptedSessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: session key base64: %s", ErrHandshakeFailed, err.Error())
	}

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, n.priv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: session key decrypt: %s", ErrHandshakeFailed, err.Error())
	}

	cipher, err := NewSessionCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHandshakeFailed, err.Error())
	}

	// The challenge proves both sides derived the same key before any
	// application request flows.
	if result.EncryptedChallenge != "" {
		if _, err := cipher.Open(result.EncryptedChallenge, result.IV); err != nil {
			return nil, fmt.Errorf("%w: challenge verification: %s", ErrHandshakeFailed, err.Error())
		}
	}

	return cipher, nil
}
