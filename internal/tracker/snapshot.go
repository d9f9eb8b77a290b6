// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package tracker

import (
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/slidevoice/voicelink/internal/wire"
)

// Snapshot is one normalized, immutable progress observation for a job.
// Snapshots are constructed once from an inbound message and never
// mutated afterward.
type Snapshot struct {
	JobID                  string
	Status                 string
	Progress               float64
	CurrentStep            string
	CurrentSlide           int
	TotalSlides            int
	EstimatedTimeRemaining float64
	Message                string
	Error                  string
	ReceivedAt             time.Time

	Timeline           []TimelineEntry
	AudioExports       []AudioExport
	ContextualMetadata map[string]any
}

// Terminal reports whether the snapshot ends the job's lifecycle.
func (s Snapshot) Terminal() bool {
	return s.Status == wire.StatusCompleted || s.Status == wire.StatusFailed
}

// TimelineEntry is one normalized slide timing. Duration always equals
// End minus Start; both are finite and non-negative.
type TimelineEntry struct {
	SlideID  string
	Start    float64
	End      float64
	Duration float64
}

// AudioExport is one normalized audio export descriptor.
type AudioExport struct {
	Format      string
	Path        string
	FileSize    int64
	CreatedAt   string
	DownloadURL string
}

// newSnapshot normalizes one progress message. The progress field is
// required: a missing or out-of-range value is a malformed payload.
func newSnapshot(msg *wire.JobMessage, receivedAt time.Time) (Snapshot, error) {
	if msg.Progress == nil {
		return Snapshot{}, fmt.Errorf("%w: progress field missing", wire.ErrMalformedPayload)
	}
	progress := *msg.Progress
	if math.IsNaN(progress) || math.IsInf(progress, 0) {
		return Snapshot{}, fmt.Errorf("%w: progress is not finite", wire.ErrMalformedPayload)
	}
	progress = math.Min(1, math.Max(0, progress))

	snap := Snapshot{
		JobID:                  msg.JobID,
		Status:                 msg.Status,
		Progress:               progress,
		CurrentStep:            msg.CurrentStep,
		CurrentSlide:           msg.CurrentSlide,
		TotalSlides:            msg.TotalSlides,
		EstimatedTimeRemaining: msg.EstimatedTimeRemaining,
		Message:                msg.Message,
		Error:                  msg.Error,
		ReceivedAt:             receivedAt,
		ContextualMetadata:     msg.ContextualMetadata,
	}

	// Partial results arrive under result or slide_result depending on
	// the service version; both carry the same shape.
	for _, raw := range []json.RawMessage{msg.Result, msg.SlideResult} {
		if len(raw) == 0 {
			continue
		}
		var payload wire.ResultPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		snap.Timeline = append(snap.Timeline, normalizeTimeline(payload.Timeline)...)
		snap.AudioExports = append(snap.AudioExports, normalizeAudioExports(payload.AudioExports)...)
	}

	if len(msg.Audio) > 0 {
		snap.AudioExports = append(snap.AudioExports, normalizeAudioField(msg.Audio)...)
	}

	return snap, nil
}

// normalizeTimeline derives the missing one of end/duration from the
// other. Entries that cannot be made finite and non-negative are dropped.
func normalizeTimeline(raw []wire.RawTimelineEntry) []TimelineEntry {
	if len(raw) == 0 {
		return nil
	}

	out := make([]TimelineEntry, 0, len(raw))
	for _, r := range raw {
		start := 0.0
		if r.Start != nil {
			start = *r.Start
		}

		var end, duration float64
		switch {
		case r.End != nil && r.Duration != nil:
			end = *r.End
			duration = *r.Duration
		case r.End != nil:
			end = *r.End
			duration = end - start
		case r.Duration != nil:
			duration = *r.Duration
			end = start + duration
		default:
			end = start
			duration = 0
		}

		if !finite(start) || !finite(end) || !finite(duration) {
			continue
		}
		if start < 0 || duration < 0 || end < start {
			continue
		}

		out = append(out, TimelineEntry{
			SlideID:  r.SlideID,
			Start:    start,
			End:      end,
			Duration: duration,
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeAudioExports drops entries without a resolvable format.
func normalizeAudioExports(raw []wire.RawAudioExport) []AudioExport {
	if len(raw) == 0 {
		return nil
	}

	out := make([]AudioExport, 0, len(raw))
	for _, r := range raw {
		format := resolveFormat(r)
		if format == "" {
			continue
		}
		out = append(out, AudioExport{
			Format:      format,
			Path:        r.Path,
			FileSize:    r.FileSize,
			CreatedAt:   r.CreatedAt,
			DownloadURL: r.DownloadURL,
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeAudioField accepts the audio key as either a single export or
// a list of them.
func normalizeAudioField(raw json.RawMessage) []AudioExport {
	var list []wire.RawAudioExport
	if err := json.Unmarshal(raw, &list); err == nil {
		return normalizeAudioExports(list)
	}

	var single wire.RawAudioExport
	if err := json.Unmarshal(raw, &single); err == nil {
		return normalizeAudioExports([]wire.RawAudioExport{single})
	}
	return nil
}

// resolveFormat picks the export format from, in order: the explicit
// format field, the MIME subtype, the path extension.
func resolveFormat(r wire.RawAudioExport) string {
	if r.Format != "" {
		return strings.ToLower(r.Format)
	}
	if r.ContentType != "" {
		if _, sub, ok := strings.Cut(r.ContentType, "/"); ok && sub != "" {
			return strings.ToLower(sub)
		}
	}
	if ext := strings.TrimPrefix(path.Ext(r.Path), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return ""
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
