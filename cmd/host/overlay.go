package main

import (
	"github.com/osa030/rockola/internal/app/playback"
	"github.com/osa030/rockola/internal/app/player/screen"
	"github.com/osa030/rockola/internal/domain/queue"
)

// overlayWaiting is how many upcoming requests the screen lists.
const overlayWaiting = 5

// overlayFor renders a controller snapshot for the host screen.
func overlayFor(s playback.Snapshot) screen.Overlay {
	o := screen.Overlay{
		Title:   s.Title,
		Phase:   s.Phase.String(),
		Notice:  s.Notice,
		Error:   s.LastError,
		Waiting: []string{},
	}
	if o.Title == "" && s.Fallback.Active {
		o.Title = "Fallback playlist"
	}
	for i, it := range s.Waiting {
		if i == overlayWaiting {
			break
		}
		o.Waiting = append(o.Waiting, queue.Title(it.TrackName, it.ArtistName))
	}
	return o
}
