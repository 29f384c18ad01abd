// Package overlay parses synchronized-narration descriptors (EPUB media
// overlays) and indexes their fragments for time-based lookup during
// playback.
package overlay

import "time"

// FragmentRef identifies a sub-element of a document resource: the resource
// path within the publication plus an optional element anchor.
type FragmentRef struct {
	Path   string
	Anchor string
}

// String returns the ref in href form ("path#anchor").
func (r FragmentRef) String() string {
	if r.Anchor == "" {
		return r.Path
	}
	return r.Path + "#" + r.Anchor
}

// Fragment pairs a text anchor with a clip range of an audio resource.
// Fragments are created once at document-load time and never mutated.
type Fragment struct {
	Text      FragmentRef
	Audio     string
	ClipBegin time.Duration
	ClipEnd   time.Duration

	// Index is the fragment's position in the document-wide descriptor
	// sequence. It stays stable across per-resource grouping so transition
	// detection can compare fragments from different resources.
	Index int
}

// Contains reports whether t falls in the fragment's half-open
// [ClipBegin, ClipEnd) interval.
func (f Fragment) Contains(t time.Duration) bool {
	return t >= f.ClipBegin && t < f.ClipEnd
}
