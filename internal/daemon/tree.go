// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package daemon

import (
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/slidevoice/voicelink/internal/logging"
)

// NewSupervisor builds the daemon's root supervisor with supervision
// events routed into the zerolog pipeline via the slog adapter.
func NewSupervisor(name string) *suture.Supervisor {
	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}

	return suture.New(name, suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
}
