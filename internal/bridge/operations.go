// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/slidevoice/voicelink/internal/relay"
	"github.com/slidevoice/voicelink/internal/wire"
)

// TestConnection asks the companion process to affirm readiness. It
// returns true only on an explicit affirmative; a well-formed but negative
// reply is (false, nil).
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	raw, err := c.call(ctx, wire.MethodTestConnection, nil)
	if err != nil {
		return false, err
	}

	var ready bool
	if err := json.Unmarshal(raw, &ready); err != nil {
		// Some peer builds reply with an object instead of a bare bool.
		var obj struct {
			Ready bool `json:"ready"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return false, fmt.Errorf("%w: testConnection result", wire.ErrMalformedPayload)
		}
		ready = obj.Ready
	}
	return ready, nil
}

// EmbedAudioFromFile instructs the host to embed the audio file on the
// given slide.
func (c *Client) EmbedAudioFromFile(ctx context.Context, filePath string, slideIndex int) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	_, err := c.call(ctx, wire.MethodEmbedAudioFromFile, wire.EmbedAudioParams{
		FilePath:   filePath,
		SlideIndex: slideIndex,
	})
	return err
}

// GetSlideAudioInfo returns a human-readable description of the slide's
// embedded audio. It never fails: errors come back as the description
// itself, since callers display whatever they get as-is.
func (c *Client) GetSlideAudioInfo(ctx context.Context, slideIndex int) string {
	if err := c.requireReady(); err != nil {
		return err.Error()
	}

	raw, err := c.call(ctx, wire.MethodGetSlideAudioInfo, wire.SlideAudioInfoParams{
		SlideIndex: slideIndex,
	})
	if err != nil {
		return err.Error()
	}

	var info string
	if err := json.Unmarshal(raw, &info); err != nil {
		// Not a JSON string: show the raw result rather than nothing.
		return strings.TrimSpace(string(raw))
	}
	return info
}

// SetAudioSettings updates the playback settings for one slide's audio.
func (c *Client) SetAudioSettings(ctx context.Context, slideIndex int, autoPlay, hideWhilePlaying bool, volume float64) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	_, err := c.call(ctx, wire.MethodSetAudioSettings, wire.AudioSettingsParams{
		SlideIndex:       slideIndex,
		AutoPlay:         autoPlay,
		HideWhilePlaying: hideWhilePlaying,
		Volume:           volume,
	})
	return err
}

// RemoveAudioFromSlides removes embedded audio from the selected slides.
func (c *Client) RemoveAudioFromSlides(ctx context.Context, selector wire.SlideSelector) error {
	if err := c.requireReady(); err != nil {
		return err
	}
	_, err := c.call(ctx, wire.MethodRemoveAudioFromSlide, wire.RemoveAudioParams{
		Slides: selector,
	})
	return err
}

// requireReady gates application operations on a completed handshake;
// only negotiateSession may travel before that.
func (c *Client) requireReady() error {
	if c.machine.State() != relay.StateReady {
		return ErrNotConnected
	}
	return nil
}
