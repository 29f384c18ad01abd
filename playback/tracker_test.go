package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lectorapp/lector/overlay"
)

type rendererCall struct {
	op     string // "display", "highlight", "clear"
	target string
}

type mockRenderer struct {
	calls      []rendererCall
	displayErr error
}

func (r *mockRenderer) DisplayFragment(_ context.Context, ref overlay.FragmentRef) error {
	if r.displayErr != nil {
		return r.displayErr
	}
	r.calls = append(r.calls, rendererCall{"display", ref.String()})
	return nil
}

func (r *mockRenderer) HighlightAnchor(anchor string) {
	r.calls = append(r.calls, rendererCall{"highlight", anchor})
}

func (r *mockRenderer) ClearHighlight(anchor string) {
	r.calls = append(r.calls, rendererCall{"clear", anchor})
}

func twoFragmentIndex() *overlay.Index {
	return overlay.Build([]overlay.Fragment{
		{
			Text:      overlay.FragmentRef{Path: "ch1.xhtml", Anchor: "s001"},
			Audio:     "ch1.mp3",
			ClipBegin: 0,
			ClipEnd:   2 * time.Second,
			Index:     0,
		},
		{
			Text:      overlay.FragmentRef{Path: "ch1.xhtml", Anchor: "s002"},
			Audio:     "ch1.mp3",
			ClipBegin: 2 * time.Second,
			ClipEnd:   4 * time.Second,
			Index:     1,
		},
	})
}

func TestTrackerSuppressesRepeatedResolutions(t *testing.T) {
	renderer := &mockRenderer{}
	tracker := NewTracker(twoFragmentIndex(), renderer)
	ctx := context.Background()

	for _, at := range []time.Duration{
		500 * time.Millisecond,
		1900 * time.Millisecond,
		2100 * time.Millisecond,
		3999 * time.Millisecond,
	} {
		tracker.Update(ctx, "ch1.mp3", at)
	}

	want := []rendererCall{
		{"display", "ch1.xhtml#s001"},
		{"highlight", "s001"},
		{"display", "ch1.xhtml#s002"},
		{"highlight", "s002"},
		{"clear", "s001"},
	}
	if len(renderer.calls) != len(want) {
		t.Fatalf("renderer calls = %v, want %v", renderer.calls, want)
	}
	for i, c := range renderer.calls {
		if c != want[i] {
			t.Errorf("call %d = %v, want %v", i, c, want[i])
		}
	}
	if tracker.Active() != 1 {
		t.Errorf("Active() = %d, want 1", tracker.Active())
	}
}

func TestTrackerGapLeavesDisplayAlone(t *testing.T) {
	renderer := &mockRenderer{}
	idx := overlay.Build([]overlay.Fragment{
		{
			Text:      overlay.FragmentRef{Path: "ch1.xhtml", Anchor: "s001"},
			Audio:     "ch1.mp3",
			ClipBegin: time.Second,
			ClipEnd:   2 * time.Second,
			Index:     0,
		},
	})
	tracker := NewTracker(idx, renderer)
	ctx := context.Background()

	tracker.Update(ctx, "ch1.mp3", 1500*time.Millisecond)
	tracker.Update(ctx, "ch1.mp3", 2500*time.Millisecond) // past the clip
	tracker.Update(ctx, "ch1.mp3", 500*time.Millisecond)  // before it

	if tracker.Active() != 0 {
		t.Errorf("Active() = %d, want 0", tracker.Active())
	}
	for _, c := range renderer.calls {
		if c.op == "clear" {
			t.Errorf("gap time cleared highlight: %v", renderer.calls)
		}
	}
}

func TestTrackerResetClearsHighlight(t *testing.T) {
	renderer := &mockRenderer{}
	tracker := NewTracker(twoFragmentIndex(), renderer)

	tracker.Update(context.Background(), "ch1.mp3", time.Second)
	tracker.Reset()

	last := renderer.calls[len(renderer.calls)-1]
	if last.op != "clear" || last.target != "s001" {
		t.Errorf("last call = %v, want clear s001", last)
	}
	if tracker.Active() != -1 {
		t.Errorf("Active() after Reset = %d, want -1", tracker.Active())
	}

	// The next update fires a fresh transition for the same fragment.
	renderer.calls = nil
	tracker.Update(context.Background(), "ch1.mp3", time.Second)
	if len(renderer.calls) == 0 {
		t.Fatal("expected transition after Reset")
	}
}

func TestTrackerConcurrentUpdateAndReset(t *testing.T) {
	renderer := &mockRenderer{}
	tracker := NewTracker(twoFragmentIndex(), renderer)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			tracker.Update(ctx, "ch1.mp3", time.Duration(i%4000)*time.Millisecond)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			tracker.Update(ctx, "ch1.mp3", 3*time.Second)
			if i%50 == 0 {
				tracker.Reset()
			}
		}
	}()
	wg.Wait()

	if a := tracker.Active(); a < -1 || a > 1 {
		t.Errorf("Active() = %d, want -1, 0 or 1", a)
	}
}

func TestTrackerDisplayErrorKeepsState(t *testing.T) {
	renderer := &mockRenderer{displayErr: context.Canceled}
	tracker := NewTracker(twoFragmentIndex(), renderer)

	tracker.Update(context.Background(), "ch1.mp3", time.Second)

	if tracker.Active() != -1 {
		t.Errorf("Active() = %d, want -1 after failed display", tracker.Active())
	}
	if len(renderer.calls) != 0 {
		t.Errorf("unexpected renderer calls: %v", renderer.calls)
	}
}
