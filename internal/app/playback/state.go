// Package playback drives the host player through the jukebox queue.
package playback

import "github.com/cockroachdb/errors"

// Phase represents the host playback phase.
type Phase int

const (
	PhaseInitializing Phase = iota // Player not yet available
	PhaseRecovering                // Asking the server what should be playing
	PhasePlaying                   // A queued track is playing
	PhaseIdle                      // Queue empty, no fallback
	PhaseFallback                  // Playing the fallback playlist
	PhaseErrored                   // Automatic progress halted until an operator acts
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRecovering:
		return "recovering"
	case PhasePlaying:
		return "playing"
	case PhaseIdle:
		return "idle"
	case PhaseFallback:
		return "fallback"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseInitializing; candidate <= PhaseErrored; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return errors.Newf("unknown phase %q", string(text))
}
