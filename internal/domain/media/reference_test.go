package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare id", input: "dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "bare id with spaces", input: "  dQw4w9WgXcQ ", expected: "dQw4w9WgXcQ"},
		{name: "watch url", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42", expected: "dQw4w9WgXcQ"},
		{name: "short link", input: "https://youtu.be/dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "embed url", input: "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "mobile url", input: "https://m.youtube.com/watch?v=abc", expected: "abc"},
		{name: "foreign host kept", input: "https://example.com/watch?v=abc", expected: "https://example.com/watch?v=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractVideoID(tt.input))
		})
	}
}

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare id", input: "PL123", expected: "PL123"},
		{name: "playlist url", input: "https://www.youtube.com/playlist?list=PL123", expected: "PL123"},
		{name: "watch url with list", input: "https://www.youtube.com/watch?v=abc&list=PL456", expected: "PL456"},
		{name: "url without list", input: "https://www.youtube.com/watch?v=abc", expected: "https://www.youtube.com/watch?v=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractPlaylistID(tt.input))
		})
	}
}

func TestReference_URL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", Video("abc").URL())
	assert.Equal(t, "https://www.youtube.com/playlist?list=PL123", Playlist(" PL123 ").URL())
	assert.True(t, Playlist("  ").IsZero())
	assert.Equal(t, "playlist", KindPlaylist.String())
	assert.Equal(t, "video:abc", Video("abc").String())
}
