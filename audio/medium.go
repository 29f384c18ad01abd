// Package audio provides the playback medium abstraction used for recorded
// narration and synthesized speech, an oto-backed implementation, and the
// PCM plumbing (WAV container, MP3 decode, recording tap) around it.
package audio

import "time"

// Clip is interleaved 16-bit little-endian PCM with its format.
type Clip struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Duration returns the clip's play time at 1x rate.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	bytesPerSecond := c.SampleRate * c.Channels * 2
	return time.Duration(len(c.Data)) * time.Second / time.Duration(bytesPerSecond)
}

// Medium is the audio output the engine plays through. It mirrors what a
// platform media element offers: a current source, transport controls, a
// clock, and completion/error callbacks at the medium's natural tick rate.
type Medium interface {
	// Load replaces the current source. Loading implicitly stops any
	// playback of the previous source.
	Load(clip *Clip) error

	Play() error
	Pause() error

	// Seek moves the playback position. Seeking past the end clamps.
	Seek(to time.Duration) error

	Position() time.Duration
	Duration() time.Duration
	Playing() bool

	SetVolume(v float64)

	// OnTimeUpdate registers the playback-clock callback. It fires at the
	// medium's tick rate while playing, never while paused.
	OnTimeUpdate(fn func(time.Duration))

	// OnEnded registers the end-of-source callback.
	OnEnded(fn func())

	// OnError registers the playback-failure callback.
	OnError(fn func(error))
}

// Tap receives a copy of every PCM chunk the medium emits while attached.
type Tap func(pcm []byte)

// Tappable is implemented by media whose output can be recorded. The
// returned release function detaches the tap and must be called on every
// exit path.
type Tappable interface {
	AttachTap(t Tap) (release func())
}
