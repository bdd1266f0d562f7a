package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/rockola/internal/app/playback"
	"github.com/osa030/rockola/internal/domain/queue"
)

func TestOverlayFor(t *testing.T) {
	waiting := make([]queue.Item, 0, 7)
	for i := 1; i <= 7; i++ {
		waiting = append(waiting, queue.Item{QueueID: int64(i), TrackName: fmt.Sprintf("Track %d", i), ArtistName: "Band"})
	}

	tests := []struct {
		name     string
		snap     playback.Snapshot
		title    string
		phase    string
		waiting  int
		firstUp  string
		hasError bool
	}{
		{
			name:    "playing with queue",
			snap:    playback.Snapshot{Phase: playback.PhasePlaying, Title: "One — Metallica", Waiting: waiting},
			title:   "One — Metallica",
			phase:   "playing",
			waiting: 5,
			firstUp: "Track 1 — Band",
		},
		{
			name:  "fallback without title",
			snap:  playback.Snapshot{Phase: playback.PhaseFallback, Fallback: playback.FallbackState{Active: true}},
			title: "Fallback playlist",
			phase: "fallback",
		},
		{
			name:     "errored",
			snap:     playback.Snapshot{Phase: playback.PhaseErrored, LastError: "Recover failed."},
			phase:    "errored",
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := overlayFor(tt.snap)
			assert.Equal(t, tt.title, o.Title)
			assert.Equal(t, tt.phase, o.Phase)
			assert.Len(t, o.Waiting, tt.waiting)
			if tt.firstUp != "" {
				assert.Equal(t, tt.firstUp, o.Waiting[0])
			}
			assert.Equal(t, tt.hasError, o.Error != "")
		})
	}
}
