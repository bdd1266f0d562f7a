// Package fallback resolves the playlist played when the queue is empty.
package fallback

import (
	"context"

	"github.com/osa030/rockola/internal/domain/media"
)

// Source is one way of choosing a fallback playlist.
type Source interface {
	// Resolve returns the playlist to use, or a zero reference when this
	// source has none. serverPlaylistID is what the jukebox API suggested.
	Resolve(ctx context.Context, serverPlaylistID string) (media.Reference, error)

	// Name returns the source name (used in config).
	Name() string
}

// ServerSource uses the playlist suggested by the jukebox API.
type ServerSource struct{}

// Resolve implements Source.
func (ServerSource) Resolve(ctx context.Context, serverPlaylistID string) (media.Reference, error) {
	return media.Playlist(media.ExtractPlaylistID(serverPlaylistID)), nil
}

// Name implements Source.
func (ServerSource) Name() string {
	return "server"
}

// StaticSource always uses a configured playlist.
type StaticSource struct {
	playlist media.Reference
}

// NewStaticSource creates a static source from a playlist id or URL.
func NewStaticSource(playlist string) *StaticSource {
	return &StaticSource{playlist: media.Playlist(media.ExtractPlaylistID(playlist))}
}

// Resolve implements Source.
func (s *StaticSource) Resolve(ctx context.Context, serverPlaylistID string) (media.Reference, error) {
	return s.playlist, nil
}

// Name implements Source.
func (s *StaticSource) Name() string {
	return "static"
}
