package playback

import "github.com/cockroachdb/errors"

// EventType represents a playback event type.
type EventType int

const (
	EventPhaseChanged EventType = iota // Phase changed
	EventTrackStarted                  // A queued track was loaded
	EventAdvisory                      // Error or notice text changed
	EventQueueUpdated                  // A new queue snapshot was observed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventPhaseChanged:
		return "phase_changed"
	case EventTrackStarted:
		return "track_started"
	case EventAdvisory:
		return "advisory"
	case EventQueueUpdated:
		return "queue_updated"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e EventType) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EventType) UnmarshalText(text []byte) error {
	for candidate := EventPhaseChanged; candidate <= EventQueueUpdated; candidate++ {
		if candidate.String() == string(text) {
			*e = candidate
			return nil
		}
	}
	return errors.Newf("unknown event type %q", string(text))
}

// Event represents a playback event.
type Event struct {
	Type  EventType `json:"type"`
	State Snapshot  `json:"state"`
}
