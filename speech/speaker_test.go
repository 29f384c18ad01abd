package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lectorapp/lector/audio"
	"github.com/lectorapp/lector/render"
)

type mockPager struct {
	mu      sync.Mutex
	pages   []string
	page    int
	marks   []render.Span
	clears  int
	turns   int
	turnErr error
}

func newMockPager(pages ...string) *mockPager {
	return &mockPager{pages: pages}
}

func (p *mockPager) VisibleText() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.page >= len(p.pages) {
		return "", nil
	}
	return p.pages[p.page], nil
}

func (p *mockPager) TurnPage(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns++
	if p.turnErr != nil {
		return false, p.turnErr
	}
	p.page++
	return p.page < len(p.pages), nil
}

func (p *mockPager) MarkRange(span render.Span) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks = append(p.marks, span)
	return nil
}

func (p *mockPager) ClearMark() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
}

func (p *mockPager) clearCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestSpeaker(pages ...string) (*Speaker, *MockSynthesizer, *audio.MockMedium, *mockPager) {
	synth := NewMockSynthesizer()
	medium := audio.NewMockMedium()
	pager := newMockPager(pages...)
	sp := NewSpeaker(synth, medium, pager, nil, DefaultSpeakerConfig(), nil)
	return sp, synth, medium, pager
}

func TestSpeakerSpeaksSequentially(t *testing.T) {
	sp, synth, medium, _ := newTestSpeaker("One here. Two here.")

	if err := sp.Start(""); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, "first utterance", func() bool {
		u, ok := sp.Current()
		return ok && u.Text == "One here." && medium.Playing()
	})

	medium.Advance(time.Second)
	waitFor(t, "second utterance", func() bool {
		u, ok := sp.Current()
		return ok && u.Text == "Two here." && medium.Playing()
	})

	got := synth.Requested()
	if len(got) != 2 || got[0] != "One here." || got[1] != "Two here." {
		t.Errorf("synthesized %q, want the two page sentences in order", got)
	}
}

func TestSpeakerStopsAtEndOfDocument(t *testing.T) {
	sp, _, medium, pager := newTestSpeaker("Only sentence.")

	if err := sp.Start(""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "playback", func() bool { return medium.Playing() })

	medium.Advance(time.Second)
	waitFor(t, "idle after last page", func() bool { return sp.Phase() == PhaseIdle })

	pager.mu.Lock()
	turns := pager.turns
	pager.mu.Unlock()
	if turns != 1 {
		t.Errorf("TurnPage called %d times, want 1", turns)
	}
}

func TestSpeakerTurnsPage(t *testing.T) {
	sp, synth, medium, _ := newTestSpeaker("Page one text.", "Page two text.")

	if err := sp.Start(""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first page playing", func() bool { return medium.Playing() })

	medium.Advance(time.Second)
	waitFor(t, "second page spoken", func() bool {
		for _, text := range synth.Requested() {
			if text == "Page two text." {
				return true
			}
		}
		return false
	})
	if sp.Phase() != PhaseSpeaking {
		t.Errorf("phase after page turn = %v, want speaking", sp.Phase())
	}
}

func TestSpeakerPauseResume(t *testing.T) {
	sp, _, medium, _ := newTestSpeaker("A sentence to pause.")

	if err := sp.Start(""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "playback", func() bool { return medium.Playing() })

	if err := sp.Pause(); err != nil {
		t.Fatalf("Pause error: %v", err)
	}
	if sp.Phase() != PhasePaused || medium.Playing() {
		t.Fatalf("phase = %v playing = %v after Pause", sp.Phase(), medium.Playing())
	}
	// Advancing a paused medium must do nothing.
	medium.Advance(time.Second)
	if sp.Phase() != PhasePaused {
		t.Error("paused speaker advanced")
	}

	if err := sp.Resume(); err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	if sp.Phase() != PhaseSpeaking || !medium.Playing() {
		t.Errorf("phase = %v playing = %v after Resume", sp.Phase(), medium.Playing())
	}
}

func TestSpeakerStopIsIdempotent(t *testing.T) {
	sp, _, medium, pager := newTestSpeaker("Something to say here.")

	if err := sp.Start(""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "playback", func() bool { return medium.Playing() })

	sp.Stop()
	if sp.Phase() != PhaseIdle {
		t.Fatalf("phase after Stop = %v, want idle", sp.Phase())
	}
	clears := pager.clearCount()

	sp.Stop()
	if got := pager.clearCount(); got != clears {
		t.Errorf("second Stop cleared highlights again: %d -> %d", clears, got)
	}
}

func TestSpeakerStaleCompletionDropped(t *testing.T) {
	sp, _, medium, _ := newTestSpeaker("First thing. Second thing.")

	if err := sp.Start(""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "playback", func() bool { return medium.Playing() })

	sp.Stop()
	plays := medium.Plays

	// A completion callback landing after Stop must not resurrect
	// playback.
	medium.FinishTrack()
	time.Sleep(20 * time.Millisecond)
	if medium.Plays != plays {
		t.Errorf("stale completion restarted playback: %d -> %d plays", plays, medium.Plays)
	}
	if sp.Phase() != PhaseIdle {
		t.Errorf("phase = %v after stale completion, want idle", sp.Phase())
	}
}

func TestSpeakerJumpToSentence(t *testing.T) {
	sp, synth, medium, _ := newTestSpeaker("Skip this one. Start from here instead.")

	if err := sp.Start("Start from here"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "playback", func() bool { return medium.Playing() })

	got := synth.Requested()
	if len(got) != 1 || got[0] != "Start from here instead." {
		t.Errorf("synthesized %q, want only the anchored sentence", got)
	}
}

func TestSpeakerEmptyPage(t *testing.T) {
	sp, _, _, _ := newTestSpeaker("   ")
	if err := sp.Start(""); !errors.Is(err, ErrNoUtterances) {
		t.Errorf("Start on empty page = %v, want ErrNoUtterances", err)
	}
	if sp.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle", sp.Phase())
	}
}

func TestSpeakerSynthesisFailureReported(t *testing.T) {
	synth := NewMockSynthesizer()
	synth.Err = errors.New("engine unavailable")
	medium := audio.NewMockMedium()
	sp := NewSpeaker(synth, medium, newMockPager("Some text."), nil, DefaultSpeakerConfig(), nil)

	var mu sync.Mutex
	var reported error
	sp.OnError(func(err error) {
		mu.Lock()
		reported = err
		mu.Unlock()
	})

	if err := sp.Start(""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "error report", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reported != nil
	})
	if sp.Phase() != PhaseIdle {
		t.Errorf("phase after synthesis failure = %v, want idle", sp.Phase())
	}
}
