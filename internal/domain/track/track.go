// Package track provides the catalog Track domain entity.
package track

import (
	"fmt"
	"time"
)

// Track represents a catalog search result that a patron can request.
// Contains only information returned by the catalog search API.
type Track struct {
	DeezerTrackID int64  `mapstructure:"DeezerTrackId" json:"deezerTrackId"`
	Title         string `mapstructure:"Title" json:"title"`
	ArtistName    string `mapstructure:"ArtistName" json:"artistName"`
	AlbumTitle    string `mapstructure:"AlbumTitle" json:"albumTitle"`
	AlbumImageURL string `mapstructure:"AlbumImageUrl" json:"albumImageUrl"`
	DurationSec   int64  `mapstructure:"DurationSec" json:"durationSec"`
	PreviewURL    string `mapstructure:"PreviewUrl" json:"previewUrl"`
	Explicit      bool   `mapstructure:"ExplicitLyrics" json:"explicitLyrics"`
}

// Duration returns the track duration.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.DurationSec) * time.Second
}

// IsRequestable reports whether the track carries an id the request API accepts.
func (t *Track) IsRequestable() bool {
	return t.DeezerTrackID > 0
}

// FormatDuration renders a duration as m:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
