// Package media provides references to playable videos and playlists.
package media

import (
	"net/url"
	"strings"
)

// Kind distinguishes a single video from a playlist.
type Kind int

const (
	KindVideo    Kind = iota // Single video
	KindPlaylist             // Playlist of videos
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindPlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// Reference identifies something the player can load.
type Reference struct {
	Kind Kind
	ID   string
}

// Video returns a reference to a single video.
func Video(id string) Reference {
	return Reference{Kind: KindVideo, ID: strings.TrimSpace(id)}
}

// Playlist returns a reference to a playlist.
func Playlist(id string) Reference {
	return Reference{Kind: KindPlaylist, ID: strings.TrimSpace(id)}
}

// IsZero reports whether the reference has no id.
func (r Reference) IsZero() bool {
	return r.ID == ""
}

// String returns "kind:id".
func (r Reference) String() string {
	return r.Kind.String() + ":" + r.ID
}

// URL returns the watch URL for the reference.
func (r Reference) URL() string {
	if r.Kind == KindPlaylist {
		return "https://www.youtube.com/playlist?list=" + url.QueryEscape(r.ID)
	}
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(r.ID)
}

// ExtractVideoID extracts the video id from a YouTube URL, or returns the
// trimmed input when it is already an id.
func ExtractVideoID(input string) string {
	input = strings.TrimSpace(input)

	u, ok := parseYouTubeURL(input)
	if !ok {
		return input
	}

	// Handle short links: https://youtu.be/VIDEO_ID
	if strings.EqualFold(u.Host, "youtu.be") {
		return strings.Trim(u.Path, "/")
	}

	// Handle https://www.youtube.com/watch?v=VIDEO_ID
	if v := u.Query().Get("v"); v != "" {
		return v
	}

	// Handle https://www.youtube.com/embed/VIDEO_ID and /shorts/VIDEO_ID
	for _, prefix := range []string{"/embed/", "/shorts/", "/live/"} {
		if strings.HasPrefix(u.Path, prefix) {
			return strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
		}
	}

	return input
}

// ExtractPlaylistID extracts the playlist id from a YouTube URL, or returns
// the trimmed input when it is already an id.
func ExtractPlaylistID(input string) string {
	input = strings.TrimSpace(input)

	u, ok := parseYouTubeURL(input)
	if !ok {
		return input
	}

	// Handle https://www.youtube.com/playlist?list=PLAYLIST_ID and watch URLs carrying a list
	if list := u.Query().Get("list"); list != "" {
		return list
	}

	return input
}

func parseYouTubeURL(input string) (*url.URL, bool) {
	if !strings.Contains(input, "://") {
		return nil, false
	}
	u, err := url.Parse(input)
	if err != nil {
		return nil, false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be", "youtube-nocookie.com":
		return u, true
	default:
		return nil, false
	}
}
