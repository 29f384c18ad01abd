// Package render defines the contracts between the synchronization engine
// and whatever surface actually displays the document. The engine never
// touches the rendering surface directly; it requests page and highlight
// changes through these interfaces and the surface reports position changes
// back.
package render

import (
	"context"

	"github.com/lectorapp/lector/overlay"
)

// Renderer is the external document renderer the engine drives. Display is
// asynchronous on real surfaces (layout settle, page turn animation), so it
// takes a context and blocks until the fragment is visible or the context
// is canceled.
type Renderer interface {
	// DisplayFragment makes the resource holding ref visible, scrolled so
	// that ref's anchor is on screen.
	DisplayFragment(ctx context.Context, ref overlay.FragmentRef) error

	// HighlightAnchor marks the element with the given anchor id.
	HighlightAnchor(anchor string)

	// ClearHighlight removes the mark from the given anchor id. Clearing
	// an anchor that is not highlighted is a no-op.
	ClearHighlight(anchor string)
}

// Pager exposes the paged text view the TTS fallback reads from.
type Pager interface {
	// VisibleText returns the plain text currently on screen. If the
	// precise page boundary cannot be determined the implementation may
	// return the whole resource's text.
	VisibleText() (string, error)

	// TurnPage advances to the next page. It returns false when the
	// document is exhausted.
	TurnPage(ctx context.Context) (bool, error)

	// MarkRange highlights the given byte range of the visible text while
	// it is being spoken. A new mark replaces the previous one.
	MarkRange(span Span) error

	// ClearMark removes the spoken-text mark, if any.
	ClearMark()
}

// PositionListener receives reading-position updates from the renderer.
type PositionListener interface {
	PositionChanged(ref overlay.FragmentRef)
}
