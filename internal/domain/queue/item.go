// Package queue provides the QueueItem domain entity as served by the jukebox API.
package queue

import (
	"sort"
	"time"
)

// Status represents the server-assigned status of a queue item.
type Status int

const (
	StatusWaiting    Status = 0 // Waiting to be played
	StatusNowPlaying Status = 1 // Currently marked as playing by the server
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusNowPlaying:
		return "now_playing"
	case StatusWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// Item represents one request in the shared queue.
type Item struct {
	QueueID       int64     `mapstructure:"QueueId" json:"queueId"`
	TrackName     string    `mapstructure:"TrackName" json:"trackName"`
	ArtistName    string    `mapstructure:"ArtistName" json:"artistName"`
	DurationMs    int64     `mapstructure:"DurationMs" json:"durationMs"`
	AlbumImageURL string    `mapstructure:"AlbumImageUrl" json:"albumImageUrl"`
	Status        Status    `mapstructure:"Status" json:"status"`
	RequestedBy   string    `mapstructure:"RequestedBy" json:"requestedBy,omitempty"`
	TableCode     string    `mapstructure:"TableCode" json:"tableCode,omitempty"`
	EnqueuedAt    time.Time `mapstructure:"EnqueuedAtUtc" json:"enqueuedAtUtc"`
}

// Duration returns the track duration.
func (i Item) Duration() time.Duration {
	return time.Duration(i.DurationMs) * time.Millisecond
}

// IsNowPlaying reports whether the server marks this item as playing.
func (i Item) IsNowPlaying() bool {
	return i.Status == StatusNowPlaying
}

// Title returns "Track — Artist", or whichever part is present.
func Title(trackName, artistName string) string {
	switch {
	case trackName != "" && artistName != "":
		return trackName + " — " + artistName
	case trackName != "":
		return trackName
	default:
		return artistName
	}
}

// NowPlaying returns the item the server marks as playing, if any.
func NowPlaying(items []Item) (Item, bool) {
	for _, it := range items {
		if it.IsNowPlaying() {
			return it, true
		}
	}
	return Item{}, false
}

// Waiting returns the items that are not playing, in canonical queue order:
// enqueue time ascending, queue id ascending as tie-break. Items without an
// enqueue time sort after timestamped ones.
// The input slice is not modified.
func Waiting(items []Item) []Item {
	waiting := make([]Item, 0, len(items))
	for _, it := range items {
		if !it.IsNowPlaying() {
			waiting = append(waiting, it)
		}
	}

	sort.SliceStable(waiting, func(a, b int) bool {
		ta, tb := waiting[a].EnqueuedAt, waiting[b].EnqueuedAt
		if ta.IsZero() != tb.IsZero() {
			return !ta.IsZero()
		}
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return waiting[a].QueueID < waiting[b].QueueID
	})
	return waiting
}

// Head returns the first waiting item in canonical order.
func Head(items []Item) (Item, bool) {
	waiting := Waiting(items)
	if len(waiting) == 0 {
		return Item{}, false
	}
	return waiting[0], true
}
