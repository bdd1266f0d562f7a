// Package player defines the embedded video player contract shared by the
// host screen and local media backends.
package player

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/osa030/rockola/internal/domain/media"
)

// Errors
var (
	ErrAcquireTimeout = errors.New("timed out waiting for the player API")
	ErrCreateTimeout  = errors.New("could not initialize the player")
	ErrDestroyed      = errors.New("player destroyed")
)

// State is a player state. Values follow the YouTube IFrame API.
type State int

const (
	StateUnstarted State = -1
	StateEnded     State = 0
	StatePlaying   State = 1
	StatePaused    State = 2
	StateBuffering State = 3
	StateCued      State = 5
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateEnded:
		return "ended"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateCued:
		return "cued"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrorCode is a player error code. Values follow the YouTube IFrame API.
type ErrorCode int

const (
	ErrorInvalidParam     ErrorCode = 2
	ErrorHTML5            ErrorCode = 5
	ErrorNotFound         ErrorCode = 100
	ErrorEmbedNotAllowed  ErrorCode = 101
	ErrorEmbedNotAllowed2 ErrorCode = 150 // same as 101, reported for some uploads
)

// IsEmbedBlocked reports whether the owner disallows embedded playback.
func (c ErrorCode) IsEmbedBlocked() bool {
	return c == ErrorEmbedNotAllowed || c == ErrorEmbedNotAllowed2
}

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrorInvalidParam:
		return "invalid_param"
	case ErrorHTML5:
		return "html5"
	case ErrorNotFound:
		return "not_found"
	case ErrorEmbedNotAllowed, ErrorEmbedNotAllowed2:
		return "embed_not_allowed"
	default:
		return fmt.Sprintf("error(%d)", int(c))
	}
}

// Listener receives player callbacks. Callbacks may arrive on the
// backend's own goroutine and must not block on the player.
type Listener interface {
	OnReady()
	OnStateChange(s State)
	OnError(code ErrorCode)
}

// Player is one constructed player instance, bound to a single video or a playlist.
type Player interface {
	Source() media.Reference
	LoadVideo(videoID string) error
	NextVideo() error
	PlayVideo() error
	SetVolume(volume int) error
	Destroy() error // idempotent
}

// Backend provides the player capability.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Acquire loads the global player capability. It may block until ctx is done.
	Acquire(ctx context.Context) error
	// Create constructs a player. Readiness is reported through l.OnReady.
	Create(src media.Reference, l Listener) (Player, error)
}
