// Package speech drives synthesized narration for documents that carry no
// recorded audio: it segments visible page text into utterances, speaks
// them one at a time through a Synthesizer, and turns the page when the
// queue runs out.
package speech

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/lectorapp/lector/audio"
)

// Voice identifies a synthesizer voice.
type Voice struct {
	ID       string
	Name     string
	Language string
	Gender   string
}

// Synthesizer converts text to PCM audio. Implementations must honor
// context cancellation; a canceled synthesis is routine (the user stopped
// or navigated), not an error worth surfacing.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*audio.Clip, error)
	Voices(ctx context.Context) ([]Voice, error)
}

// ResolveVoice validates the requested voice against the synthesizer's
// catalog and falls back when it is not offered. When the catalog itself
// cannot be listed the request is kept as-is; the synthesizer will reject
// it at speaking time if it must.
func ResolveVoice(ctx context.Context, synth Synthesizer, want, fallback string) string {
	voices, err := synth.Voices(ctx)
	if err != nil {
		log.Debug("listing voices", "error", err)
		return want
	}
	for _, v := range voices {
		if v.ID == want {
			return want
		}
	}
	log.Warn("configured voice not offered, falling back", "voice", want, "fallback", fallback)
	return fallback
}

var (
	// ErrNoUtterances is returned when a page yields nothing speakable.
	ErrNoUtterances = errors.New("no utterances in page text")
	// ErrSpeakerBusy is returned when Start is called while speaking.
	ErrSpeakerBusy = errors.New("speaker already active")
	// ErrPageTurnTimeout is returned when the renderer does not settle a
	// page turn within the grace window.
	ErrPageTurnTimeout = errors.New("page turn did not settle in time")
)
