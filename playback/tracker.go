package playback

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lectorapp/lector/overlay"
	"github.com/lectorapp/lector/render"
)

// Tracker maps the advancing playback clock to the active narration
// fragment and keeps the renderer in lockstep: when the resolved fragment
// changes it displays the fragment's text target, highlights its anchor
// and clears the previous one.
//
// Equality suppression is the tracker's core contract: the clock ticks
// many times per second and repeated resolutions to the same fragment must
// not re-render anything.
//
// Update and Reset are called from the medium's clock goroutine and from
// the UI goroutine (seeks, stop), so the tracker serializes itself.
type Tracker struct {
	index    *overlay.Index
	renderer render.Renderer

	mu           sync.Mutex
	active       int // fragment Index, -1 when none
	activeAnchor string
}

// NewTracker builds a tracker over idx driving renderer. Construct one only
// when synchronized highlighting is enabled; a disabled tracker should not
// exist rather than be called and ignored.
func NewTracker(idx *overlay.Index, renderer render.Renderer) *Tracker {
	return &Tracker{index: idx, renderer: renderer, active: -1}
}

// Active returns the active fragment's Index, or -1.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Update resolves the fragment at (resource, at) and, when it differs from
// the active one, fires the transition: display the fragment's target,
// highlight its anchor, clear the previous anchor. A time falling in a gap
// between fragments leaves the display alone.
func (t *Tracker) Update(ctx context.Context, resource string, at time.Duration) {
	f, ok := t.index.Lookup(resource, at)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if f.Index == t.active {
		return
	}

	if err := t.renderer.DisplayFragment(ctx, f.Text); err != nil {
		log.Debug("displaying fragment", "target", f.Text.String(), "error", err)
		return
	}
	if f.Text.Anchor != "" {
		t.renderer.HighlightAnchor(f.Text.Anchor)
	}
	if t.activeAnchor != "" && t.activeAnchor != f.Text.Anchor {
		t.renderer.ClearHighlight(t.activeAnchor)
	}

	t.active = f.Index
	t.activeAnchor = f.Text.Anchor
}

// Reset clears the active highlight and forgets the active fragment, so
// the next Update fires a fresh transition.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.activeAnchor != "" {
		t.renderer.ClearHighlight(t.activeAnchor)
	}
	t.active = -1
	t.activeAnchor = ""
}
