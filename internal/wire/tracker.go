// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package wire

import (
	"github.com/goccy/go-json"
)

// Tracker actions sent by the client.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Tracker control events sent by the job service.
const (
	EventConnected    = "connected"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventError        = "error"
)

// Job statuses that end a job's lifecycle.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TrackAction is the outbound subscribe/unsubscribe message.
type TrackAction struct {
	Action string `json:"action"`
	JobID  string `json:"job_id"`
}

// JobMessage is every inbound job-tracking message. Control events carry
// Event; progress updates leave it empty and carry Status plus a required
// Progress fraction. Progress is a pointer so a missing field can be told
// apart from a literal zero.
type JobMessage struct {
	Event string `json:"event,omitempty"`

	JobID                  string   `json:"job_id,omitempty"`
	Status                 string   `json:"status,omitempty"`
	Progress               *float64 `json:"progress,omitempty"`
	CurrentStep            string   `json:"current_step,omitempty"`
	CurrentSlide           int      `json:"current_slide,omitempty"`
	TotalSlides            int      `json:"total_slides,omitempty"`
	EstimatedTimeRemaining float64  `json:"estimated_time_remaining,omitempty"`
	Message                string   `json:"message,omitempty"`
	Error                  string   `json:"error,omitempty"`

	// Partial-result payloads. The service has shipped these under a few
	// different keys; all are folded into the same normalized snapshot.
	Result             json.RawMessage `json:"result,omitempty"`
	SlideResult        json.RawMessage `json:"slide_result,omitempty"`
	Audio              json.RawMessage `json:"audio,omitempty"`
	ContextualMetadata map[string]any  `json:"contextual_metadata,omitempty"`
}

// IsControl reports whether the message is a control event rather than a
// progress update.
func (m *JobMessage) IsControl() bool {
	return m.Event != ""
}

// RawTimelineEntry is one un-normalized timeline item as received on the
// wire. Fields are pointers so absent values are distinguishable.
type RawTimelineEntry struct {
	SlideID  string   `json:"slide_id"`
	Start    *float64 `json:"start,omitempty"`
	End      *float64 `json:"end,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// RawAudioExport is one un-normalized audio export item.
type RawAudioExport struct {
	Format      string `json:"format,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Path        string `json:"path,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// ResultPayload is the partial-result body carried by progress messages.
type ResultPayload struct {
	Timeline     []RawTimelineEntry `json:"timeline,omitempty"`
	AudioExports []RawAudioExport   `json:"audio_exports,omitempty"`
}
