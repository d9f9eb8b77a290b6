// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package wire

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestSlideSelectorEncoding(t *testing.T) {
	tests := []struct {
		name string
		sel  SlideSelector
		want string
	}{
		{"all slides", AllSlides(), `"all"`},
		{"index set", Slides(1, 4, 7), `[1,4,7]`},
		{"empty set", Slides(), `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.sel)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal = %s, want %s", got, tt.want)
			}

			var back SlideSelector
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if back.All != tt.sel.All {
				t.Errorf("round-trip All = %v, want %v", back.All, tt.sel.All)
			}
		})
	}
}

func TestJobMessageProgressPointer(t *testing.T) {
	// A progress value of exactly zero must be distinguishable from an
	// absent progress field.
	var withZero JobMessage
	if err := json.Unmarshal([]byte(`{"job_id":"j","status":"queued","progress":0}`), &withZero); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if withZero.Progress == nil || *withZero.Progress != 0 {
		t.Errorf("progress 0 not preserved: %+v", withZero.Progress)
	}

	var missing JobMessage
	if err := json.Unmarshal([]byte(`{"job_id":"j","status":"queued"}`), &missing); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if missing.Progress != nil {
		t.Errorf("absent progress decoded as %v", *missing.Progress)
	}
}

func TestJobMessageIsControl(t *testing.T) {
	var ev JobMessage
	if err := json.Unmarshal([]byte(`{"event":"subscribed","job_id":"j"}`), &ev); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !ev.IsControl() {
		t.Error("subscribed event not recognized as control message")
	}

	p := 0.5
	progress := JobMessage{JobID: "j", Status: "processing", Progress: &p}
	if progress.IsControl() {
		t.Error("progress update misclassified as control message")
	}
}
