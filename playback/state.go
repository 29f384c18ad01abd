// Package playback unifies recorded narration and synthesized speech under
// one play/pause/seek/next/prev contract, tracks the playback position
// against the fragment index, and captures audio sub-segments for export.
package playback

import "time"

// Mode selects the playback source.
type Mode int

const (
	// ModeRecorded plays the document's narration track.
	ModeRecorded Mode = iota
	// ModeSynthesized speaks the visible page through a synthesizer.
	ModeSynthesized
)

func (m Mode) String() string {
	switch m {
	case ModeRecorded:
		return "recorded"
	case ModeSynthesized:
		return "synthesized"
	default:
		return "unknown"
	}
}

// Status is the controller's lifecycle state.
type Status int

const (
	// StatusIdle means no playback is active.
	StatusIdle Status = iota
	// StatusPlaying means the active source is advancing.
	StatusPlaying
	// StatusPaused means playback is suspended at a position.
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// State is the complete playback state. The Controller is its only writer;
// every other component requests changes through the controller.
type State struct {
	Status         Status
	Mode           Mode
	ActiveResource string        // audio resource being played, "" when none
	Position       time.Duration // position within the active resource
	ActiveFragment int           // fragment Index, -1 when none
}

// validTransitions is the controller's transition table.
var validTransitions = map[Status][]Status{
	StatusIdle:    {StatusPlaying},
	StatusPlaying: {StatusPaused, StatusIdle},
	StatusPaused:  {StatusPlaying, StatusIdle},
}

// canTransition reports whether from -> to is a legal status change.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
