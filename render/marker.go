package render

import (
	"errors"
	"fmt"
	"strings"
)

// Span is a half-open byte range [Start, End) of a text buffer.
type Span struct {
	Start int
	End   int
}

var (
	// ErrSpanOutOfRange is returned when a span does not fit the buffer.
	ErrSpanOutOfRange = errors.New("span out of range")
	// ErrSpanEmpty is returned for zero or negative-length spans.
	ErrSpanEmpty = errors.New("empty span")
)

// Marker marks one sub-range of a text buffer at a time and can remove the
// mark again without disturbing the surrounding text. Marking works by
// insertion, not replacement, so unmarking always restores the original
// buffer byte for byte.
type Marker struct {
	text   string
	begin  string // marker inserted before the span
	end    string // marker inserted after the span
	active *Span
}

// NewMarker creates a marker over text. begin and end are the strings
// inserted around a marked span (for a terminal surface, ANSI style
// sequences; for tests, plain sentinels).
func NewMarker(text, begin, end string) *Marker {
	return &Marker{text: text, begin: begin, end: end}
}

// Mark marks the span. Any previous mark is removed first; starting a new
// mark supersedes the old one.
func (m *Marker) Mark(span Span) error {
	if span.End <= span.Start {
		return ErrSpanEmpty
	}
	if span.Start < 0 || span.End > len(m.text) {
		return fmt.Errorf("%w: [%d,%d) in %d bytes", ErrSpanOutOfRange, span.Start, span.End, len(m.text))
	}
	m.active = &span
	return nil
}

// Unmark removes the current mark. Removing when nothing is marked is a
// no-op.
func (m *Marker) Unmark() {
	m.active = nil
}

// Marked reports whether a span is currently marked.
func (m *Marker) Marked() bool {
	return m.active != nil
}

// Render returns the buffer with the current mark inserted, or the original
// text unchanged when nothing is marked.
func (m *Marker) Render() string {
	if m.active == nil {
		return m.text
	}
	var b strings.Builder
	b.Grow(len(m.text) + len(m.begin) + len(m.end))
	b.WriteString(m.text[:m.active.Start])
	b.WriteString(m.begin)
	b.WriteString(m.text[m.active.Start:m.active.End])
	b.WriteString(m.end)
	b.WriteString(m.text[m.active.End:])
	return b.String()
}

// Text returns the unmarked buffer.
func (m *Marker) Text() string {
	return m.text
}
