package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/panjf2000/ants/v2"

	"github.com/lectorapp/lector/audio"
	"github.com/lectorapp/lector/render"
)

// Phase is the speaker's lifecycle state.
type Phase int

const (
	// PhaseIdle means no synthesized playback is active.
	PhaseIdle Phase = iota
	// PhaseSpeaking means an utterance is being synthesized or played.
	PhaseSpeaking
	// PhasePaused means playback is suspended mid-utterance.
	PhasePaused
	// PhaseTurningPage means the current page is exhausted and the
	// renderer is settling the next one.
	PhaseTurningPage
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSpeaking:
		return "speaking"
	case PhasePaused:
		return "paused"
	case PhaseTurningPage:
		return "turning-page"
	default:
		return "unknown"
	}
}

// SpeakerConfig configures the TTS fallback loop.
type SpeakerConfig struct {
	Voice         string
	SettleTimeout time.Duration // grace window for a page turn to settle
	PrefetchAhead int           // utterances to synthesize ahead
}

// DefaultSpeakerConfig returns sensible defaults.
func DefaultSpeakerConfig() SpeakerConfig {
	return SpeakerConfig{
		SettleTimeout: 5 * time.Second,
		PrefetchAhead: 2,
	}
}

// Speaker drives queued speech synthesis over the visible page: segment,
// speak one utterance at a time, highlight the spoken range, and turn the
// page when the queue runs out.
//
// Every asynchronous continuation (synthesis completion, utterance end,
// page settle) captures the generation counter when it starts and is
// dropped silently if the counter moved on, so a stop or navigation cannot
// be resurrected by a stale callback.
type Speaker struct {
	synth     Synthesizer
	medium    audio.Medium
	pager     render.Pager
	segmenter Segmenter
	cfg       SpeakerConfig

	mu         sync.Mutex
	phase      Phase
	generation uint64
	queue      *Queue
	current    *Utterance

	pool       *ants.Pool
	prefetchMu sync.Mutex
	prefetched map[string]*audio.Clip

	onPhaseChange func(Phase)
	onError       func(error)
}

// NewSpeaker wires the fallback engine. pool may be shared with other
// background work; pass nil to synthesize strictly on demand.
func NewSpeaker(synth Synthesizer, medium audio.Medium, pager render.Pager, seg Segmenter, cfg SpeakerConfig, pool *ants.Pool) *Speaker {
	if seg == nil {
		seg = NewSegmenter()
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = DefaultSpeakerConfig().SettleTimeout
	}
	s := &Speaker{
		synth:      synth,
		medium:     medium,
		pager:      pager,
		segmenter:  seg,
		cfg:        cfg,
		pool:       pool,
		prefetched: make(map[string]*audio.Clip),
	}
	return s
}

// OnPhaseChange registers the phase callback.
func (s *Speaker) OnPhaseChange(fn func(Phase)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPhaseChange = fn
}

// OnError registers the failure callback. Failures always reset the
// speaker to idle first.
func (s *Speaker) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Phase returns the current phase.
func (s *Speaker) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Current returns the utterance being spoken, if any.
func (s *Speaker) Current() (Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Utterance{}, false
	}
	return *s.current, true
}

// Start begins speaking the visible page. fromText, when non-empty,
// re-slices the queue to the first utterance matching a prefix of it
// (jump-to-sentence).
func (s *Speaker) Start(fromText string) error {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return ErrSpeakerBusy
	}
	s.generation++
	gen := s.generation
	// The medium is shared with recorded playback; claim its callbacks
	// for the lifetime of this speech session.
	s.medium.OnEnded(s.utteranceEnded)
	s.medium.OnError(func(err error) {
		s.mu.Lock()
		g := s.generation
		s.mu.Unlock()
		s.fail(g, err)
	})
	if err := s.loadPageLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if fromText != "" && !s.queue.SeekTo(fromText) {
		log.Debug("jump-to-sentence anchor not found on page", "anchor", fromText)
	}
	s.setPhaseLocked(PhaseSpeaking)
	s.mu.Unlock()

	s.speakNext(gen)
	return nil
}

// Pause suspends playback mid-utterance.
func (s *Speaker) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSpeaking {
		return nil
	}
	if err := s.medium.Pause(); err != nil {
		return err
	}
	s.setPhaseLocked(PhasePaused)
	return nil
}

// Resume continues a paused utterance.
func (s *Speaker) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePaused {
		return nil
	}
	if err := s.medium.Play(); err != nil {
		return err
	}
	s.setPhaseLocked(PhaseSpeaking)
	return nil
}

// Stop cancels the current utterance and resets to idle. Pending
// completions are invalidated, not waited for. Stop is idempotent: a
// second call on an idle speaker has no side effects at all.
func (s *Speaker) Stop() {
	s.mu.Lock()
	if s.phase == PhaseIdle {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.current = nil
	s.queue = nil
	if err := s.medium.Pause(); err != nil {
		log.Debug("pausing medium on stop", "error", err)
	}
	s.pager.ClearMark()
	s.setPhaseLocked(PhaseIdle)
	s.mu.Unlock()

	s.dropPrefetched()
}

// Next cancels the current utterance and speaks the following one. The
// in-flight synthesis is invalidated, not awaited.
func (s *Speaker) Next() error {
	return s.skip(0)
}

// Prev cancels the current utterance and re-speaks the one before it.
func (s *Speaker) Prev() error {
	return s.skip(2)
}

func (s *Speaker) skip(back int) error {
	s.mu.Lock()
	if s.phase != PhaseSpeaking && s.phase != PhasePaused {
		s.mu.Unlock()
		return nil
	}
	s.generation++
	gen := s.generation
	s.current = nil
	if back > 0 {
		s.queue.Rewind(back)
	}
	if err := s.medium.Pause(); err != nil {
		log.Debug("pausing medium on skip", "error", err)
	}
	s.pager.ClearMark()
	s.setPhaseLocked(PhaseSpeaking)
	s.mu.Unlock()

	s.speakNext(gen)
	return nil
}

// loadPageLocked extracts and segments the visible page text.
func (s *Speaker) loadPageLocked() error {
	text, err := s.pager.VisibleText()
	if err != nil {
		return fmt.Errorf("extracting page text: %w", err)
	}
	units := s.segmenter.Segment(text)
	if len(units) == 0 {
		return ErrNoUtterances
	}
	s.queue = NewQueue(units)
	return nil
}

// speakNext dequeues and speaks one utterance, or turns the page when the
// queue is exhausted. Synthesis happens off the caller; the result is
// applied only if gen is still current.
func (s *Speaker) speakNext(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.phase == PhaseIdle {
		s.mu.Unlock()
		return
	}
	u, ok := s.queue.Next()
	if !ok {
		s.mu.Unlock()
		s.turnPage(gen)
		return
	}
	s.current = &u
	s.prefetchAhead(gen)
	s.mu.Unlock()

	go func() {
		clip, err := s.synthesize(context.Background(), u.Text)

		s.mu.Lock()
		if gen != s.generation || s.phase == PhaseIdle {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.mu.Unlock()
			s.fail(gen, fmt.Errorf("synthesizing %q: %w", truncate(u.Text, 40), err))
			return
		}
		if err := s.medium.Load(clip); err == nil {
			err = s.medium.Play()
		}
		if err != nil {
			s.mu.Unlock()
			s.fail(gen, fmt.Errorf("playing utterance: %w", err))
			return
		}
		if err := s.pager.MarkRange(u.Span); err != nil {
			log.Debug("marking spoken range", "error", err)
		}
		s.mu.Unlock()
	}()
}

// utteranceEnded is the medium's end-of-source callback. A stale end (the
// utterance was superseded by stop or navigation) is dropped.
func (s *Speaker) utteranceEnded() {
	s.mu.Lock()
	if s.phase != PhaseSpeaking {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	s.current = nil
	s.pager.ClearMark()
	s.mu.Unlock()

	s.speakNext(gen)
}

// turnPage advances the renderer within the settle grace window and
// restarts speaking on the new page.
func (s *Speaker) turnPage(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.phase == PhaseIdle {
		s.mu.Unlock()
		return
	}
	s.setPhaseLocked(PhaseTurningPage)
	timeout := s.cfg.SettleTimeout
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		more, err := s.pager.TurnPage(ctx)

		s.mu.Lock()
		if gen != s.generation || s.phase != PhaseTurningPage {
			s.mu.Unlock()
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			s.mu.Unlock()
			s.fail(gen, ErrPageTurnTimeout)
			return
		}
		if err != nil {
			s.mu.Unlock()
			s.fail(gen, fmt.Errorf("turning page: %w", err))
			return
		}
		if !more {
			// End of document: finish playback cleanly.
			s.mu.Unlock()
			s.Stop()
			return
		}
		if err := s.loadPageLocked(); err != nil {
			s.mu.Unlock()
			s.fail(gen, err)
			return
		}
		s.setPhaseLocked(PhaseSpeaking)
		s.mu.Unlock()

		s.speakNext(gen)
	}()
}

// fail resets to idle and reports the error.
func (s *Speaker) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	fn := s.onError
	s.mu.Unlock()

	s.Stop()
	log.Error("speech playback failed", "error", err)
	if fn != nil {
		fn(err)
	}
}

// synthesize returns a prefetched clip when available, otherwise calls the
// synthesizer directly.
func (s *Speaker) synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	s.prefetchMu.Lock()
	if clip, ok := s.prefetched[text]; ok {
		delete(s.prefetched, text)
		s.prefetchMu.Unlock()
		return clip, nil
	}
	s.prefetchMu.Unlock()
	return s.synth.Synthesize(ctx, text, s.cfg.Voice)
}

// prefetchAhead schedules synthesis of upcoming utterances on the worker
// pool so queue consumption is not gated on network latency.
func (s *Speaker) prefetchAhead(gen uint64) {
	if s.pool == nil {
		return
	}
	for ahead := 0; ahead < s.cfg.PrefetchAhead; ahead++ {
		u, ok := s.queue.Peek(ahead)
		if !ok {
			break
		}
		text := u.Text
		s.prefetchMu.Lock()
		_, have := s.prefetched[text]
		s.prefetchMu.Unlock()
		if have {
			continue
		}
		err := s.pool.Submit(func() {
			clip, err := s.synth.Synthesize(context.Background(), text, s.cfg.Voice)
			if err != nil {
				log.Debug("prefetch synthesis failed", "error", err)
				return
			}
			s.mu.Lock()
			stale := gen != s.generation
			s.mu.Unlock()
			if stale {
				return
			}
			s.prefetchMu.Lock()
			s.prefetched[text] = clip
			s.prefetchMu.Unlock()
		})
		if err != nil {
			log.Debug("prefetch submit failed", "error", err)
			return
		}
	}
}

func (s *Speaker) dropPrefetched() {
	s.prefetchMu.Lock()
	s.prefetched = make(map[string]*audio.Clip)
	s.prefetchMu.Unlock()
}

func (s *Speaker) setPhaseLocked(p Phase) {
	if s.phase == p {
		return
	}
	s.phase = p
	if s.onPhaseChange != nil {
		s.onPhaseChange(p)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
