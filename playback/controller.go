package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lectorapp/lector/audio"
	"github.com/lectorapp/lector/overlay"
	"github.com/lectorapp/lector/speech"
)

var (
	// ErrNoPlayback means the document has no narration and no synthesizer
	// is available to fall back to.
	ErrNoPlayback = errors.New("playback: no narration and no synthesizer")

	// ErrSeekUnsupported means time-based seeking was requested in
	// synthesized mode, where there is no persistent timeline to seek on.
	ErrSeekUnsupported = errors.New("playback: seeking is unsupported for synthesized speech")
)

// MediaOpener resolves an audio resource named by the narration descriptor
// to a decoded clip. The book package implements it over the publication
// container.
type MediaOpener interface {
	OpenAudio(resource string) (*audio.Clip, error)
}

// Controller is the single entry point for transport commands. It picks
// recorded or synthesized playback per document, owns the shared State, and
// is the only writer of it.
//
// Recorded mode drives the medium directly: the clock callback feeds the
// tracker and the end callback advances to the next audio resource.
// Synthesized mode delegates to the speech fallback engine, mirroring its
// phase into State. The two modes never run concurrently because the medium
// callbacks are re-claimed at every activation.
type Controller struct {
	index   *overlay.Index
	medium  audio.Medium
	opener  MediaOpener
	tracker *Tracker        // nil disables synchronized highlighting
	speaker *speech.Speaker // nil disables the synthesized fallback

	mu         sync.Mutex
	state      State
	generation uint64

	onStateChange func(State)
	onError       func(error)
}

// NewController wires the transport. tracker and speaker are optional;
// passing both as nil yields a controller that can only refuse to play.
func NewController(idx *overlay.Index, medium audio.Medium, opener MediaOpener, tracker *Tracker, speaker *speech.Speaker) *Controller {
	c := &Controller{
		index:   idx,
		medium:  medium,
		opener:  opener,
		tracker: tracker,
		speaker: speaker,
		state:   State{Status: StatusIdle, ActiveFragment: -1},
	}
	if speaker != nil {
		speaker.OnPhaseChange(c.speakerPhaseChanged)
		speaker.OnError(c.speakerFailed)
	}
	return c
}

// OnStateChange registers the state observer. It fires after every state
// transition with a copy of the new state.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnError registers the playback-failure observer. Failures stop playback
// before the observer fires.
func (c *Controller) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// State returns a copy of the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Play starts or resumes playback. On an idle controller it selects the
// mode: recorded when the document carries narration, otherwise synthesized
// when a speaker is available, otherwise ErrNoPlayback.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	switch c.state.Status {
	case StatusPlaying:
		c.mu.Unlock()
		return nil
	case StatusPaused:
		mode := c.state.Mode
		c.mu.Unlock()
		if mode == ModeSynthesized {
			if err := c.speaker.Resume(); err != nil {
				return err
			}
			return nil
		}
		if err := c.medium.Play(); err != nil {
			return err
		}
		c.transition(StatusPlaying, func(s *State) {})
		return nil
	}

	// Idle: pick the mode.
	if c.index.HasNarration() {
		return c.startRecordedLocked(ctx, c.index.Resources()[0], 0)
	}
	c.mu.Unlock()
	if c.speaker == nil {
		return ErrNoPlayback
	}
	return c.speaker.Start("")
}

// PlayFrom starts recorded playback of resource at the given offset,
// bypassing mode selection. It is how a saved reading position is resumed.
func (c *Controller) PlayFrom(ctx context.Context, resource string, at time.Duration) error {
	c.mu.Lock()
	if len(c.index.Fragments(resource)) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("playback: unknown audio resource %q", resource)
	}
	return c.startRecordedLocked(ctx, resource, at)
}

// startRecordedLocked activates recorded mode. The mutex is held on entry
// and released before returning.
func (c *Controller) startRecordedLocked(ctx context.Context, resource string, at time.Duration) error {
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	clip, err := c.opener.OpenAudio(resource)
	if err != nil {
		return fmt.Errorf("opening %s: %w", resource, err)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Claim the medium callbacks for this recorded session. The speaker
	// does the same on its Start, so whichever mode activated last owns
	// the medium.
	c.medium.OnTimeUpdate(func(pos time.Duration) { c.clockTick(gen, resource, pos) })
	c.medium.OnEnded(func() { c.resourceEnded(gen, resource) })
	c.medium.OnError(func(err error) { c.mediumFailed(gen, err) })

	if err := c.medium.Load(clip); err != nil {
		return fmt.Errorf("loading %s: %w", resource, err)
	}
	if at > 0 {
		if err := c.medium.Seek(at); err != nil {
			return fmt.Errorf("seeking %s: %w", resource, err)
		}
	}
	if err := c.medium.Play(); err != nil {
		return fmt.Errorf("playing %s: %w", resource, err)
	}

	c.transition(StatusPlaying, func(s *State) {
		s.Mode = ModeRecorded
		s.ActiveResource = resource
		s.Position = at
	})
	if c.tracker != nil {
		c.tracker.Update(ctx, resource, at)
	}
	return nil
}

// Pause suspends playback, keeping the position. Pausing an idle or paused
// controller is a no-op.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state.Status != StatusPlaying {
		c.mu.Unlock()
		return nil
	}
	mode := c.state.Mode
	c.mu.Unlock()

	if mode == ModeSynthesized {
		return c.speaker.Pause()
	}
	if err := c.medium.Pause(); err != nil {
		return err
	}
	c.transition(StatusPaused, func(s *State) {})
	return nil
}

// Toggle plays when idle or paused and pauses when playing.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.State().Status == StatusPlaying {
		return c.Pause()
	}
	return c.Play(ctx)
}

// Stop halts playback and resets to idle. It is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state.Status == StatusIdle {
		c.mu.Unlock()
		return
	}
	mode := c.state.Mode
	c.generation++
	c.mu.Unlock()

	if mode == ModeSynthesized {
		c.speaker.Stop()
		// The phase observer would also reset the state, but Stop must
		// leave the controller idle even if the speaker already was.
	} else {
		if err := c.medium.Pause(); err != nil {
			log.Debug("pausing medium on stop", "error", err)
		}
	}
	if c.tracker != nil {
		c.tracker.Reset()
	}
	c.transition(StatusIdle, func(s *State) {
		s.ActiveResource = ""
		s.Position = 0
		s.ActiveFragment = -1
	})
}

// Seek moves the recorded playback position within the active resource.
// In synthesized mode there is no stable timeline, so it fails with
// ErrSeekUnsupported.
func (c *Controller) Seek(ctx context.Context, to time.Duration) error {
	c.mu.Lock()
	if c.state.Status == StatusIdle {
		c.mu.Unlock()
		return nil
	}
	if c.state.Mode == ModeSynthesized {
		c.mu.Unlock()
		return ErrSeekUnsupported
	}
	resource := c.state.ActiveResource
	c.mu.Unlock()

	if to < 0 {
		to = 0
	}
	if err := c.medium.Seek(to); err != nil {
		return err
	}
	c.transition(c.State().Status, func(s *State) { s.Position = to })
	if c.tracker != nil {
		c.tracker.Update(ctx, resource, to)
	}
	return nil
}

// SeekBy moves the recorded position relative to the current one.
func (c *Controller) SeekBy(ctx context.Context, delta time.Duration) error {
	c.mu.Lock()
	if c.state.Status == StatusIdle {
		c.mu.Unlock()
		return nil
	}
	if c.state.Mode == ModeSynthesized {
		c.mu.Unlock()
		return ErrSeekUnsupported
	}
	pos := c.state.Position
	c.mu.Unlock()
	return c.Seek(ctx, pos+delta)
}

// Next skips forward one unit: the next fragment in recorded mode, the next
// utterance in synthesized mode.
func (c *Controller) Next(ctx context.Context) error {
	return c.step(ctx, false)
}

// Prev skips back one unit.
func (c *Controller) Prev(ctx context.Context) error {
	return c.step(ctx, true)
}

func (c *Controller) step(ctx context.Context, back bool) error {
	c.mu.Lock()
	if c.state.Status == StatusIdle {
		c.mu.Unlock()
		return nil
	}
	if c.state.Mode == ModeSynthesized {
		c.mu.Unlock()
		if back {
			return c.speaker.Prev()
		}
		return c.speaker.Next()
	}
	resource := c.state.ActiveResource
	pos := c.state.Position
	c.mu.Unlock()

	var f overlay.Fragment
	var ok bool
	if back {
		f, ok = c.index.Prev(resource, pos)
	} else {
		f, ok = c.index.Next(resource, pos)
	}
	if !ok {
		if back {
			return c.Seek(ctx, 0)
		}
		// Past the last fragment: jump to the next resource.
		next := c.index.NextResource(resource)
		if next == "" {
			return nil
		}
		c.mu.Lock()
		return c.startRecordedLocked(ctx, next, 0)
	}
	return c.Seek(ctx, f.ClipBegin)
}

// ActiveFragment returns the fragment currently highlighted, if tracking is
// enabled and a fragment is active.
func (c *Controller) ActiveFragment() (overlay.Fragment, bool) {
	c.mu.Lock()
	resource := c.state.ActiveResource
	pos := c.state.Position
	mode := c.state.Mode
	status := c.state.Status
	c.mu.Unlock()
	if status == StatusIdle || mode != ModeRecorded {
		return overlay.Fragment{}, false
	}
	return c.index.Lookup(resource, pos)
}

// clockTick is the medium's time callback during recorded playback.
func (c *Controller) clockTick(gen uint64, resource string, pos time.Duration) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.state.Position = pos
	if c.tracker != nil {
		c.state.ActiveFragment = c.tracker.Active()
	}
	fn := c.onStateChange
	st := c.state
	c.mu.Unlock()

	if c.tracker != nil {
		c.tracker.Update(context.Background(), resource, pos)
	}
	if fn != nil {
		fn(st)
	}
}

// resourceEnded auto-advances to the next audio resource in document order,
// or stops at the end of the last one.
func (c *Controller) resourceEnded(gen uint64, resource string) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	next := c.index.NextResource(resource)
	if next == "" {
		c.mu.Unlock()
		c.Stop()
		return
	}
	if err := c.startRecordedLocked(context.Background(), next, 0); err != nil {
		c.fail(gen, err)
	}
}

func (c *Controller) mediumFailed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.fail(gen, err)
}

func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	fn := c.onError
	c.mu.Unlock()

	c.Stop()
	log.Error("playback failed", "error", err)
	if fn != nil {
		fn(err)
	}
}

// speakerPhaseChanged mirrors the fallback engine's phase into State.
func (c *Controller) speakerPhaseChanged(p speech.Phase) {
	switch p {
	case speech.PhaseSpeaking, speech.PhaseTurningPage:
		c.transition(StatusPlaying, func(s *State) {
			s.Mode = ModeSynthesized
			s.ActiveResource = ""
			s.ActiveFragment = -1
		})
	case speech.PhasePaused:
		c.transition(StatusPaused, func(s *State) {})
	case speech.PhaseIdle:
		c.mu.Lock()
		synthesized := c.state.Mode == ModeSynthesized && c.state.Status != StatusIdle
		c.mu.Unlock()
		if synthesized {
			c.transition(StatusIdle, func(s *State) {
				s.Position = 0
				s.ActiveFragment = -1
			})
		}
	}
}

func (c *Controller) speakerFailed(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// transition applies mutate and the status change under the lock and
// notifies the observer outside it.
func (c *Controller) transition(to Status, mutate func(*State)) {
	c.mu.Lock()
	if !canTransition(c.state.Status, to) && c.state.Status != to {
		log.Debug("suppressing invalid status transition",
			"from", c.state.Status, "to", to)
		c.mu.Unlock()
		return
	}
	c.state.Status = to
	mutate(&c.state)
	fn := c.onStateChange
	st := c.state
	c.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}
