package ui

import (
	"github.com/lectorapp/lector/playback"
)

type (
	// stateMsg carries a playback state change into the update loop.
	stateMsg playback.State

	// playbackErrMsg carries an asynchronous playback failure.
	playbackErrMsg struct{ err error }

	// capturedMsg reports the outcome of a capture-and-export.
	capturedMsg struct {
		noteID int64
		bytes  int
		err    error
	}

	// statusTimeoutMsg clears a transient status message.
	statusTimeoutMsg struct{ id int }
)
