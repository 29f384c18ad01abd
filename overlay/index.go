package overlay

import (
	"sort"
	"time"

	"github.com/charmbracelet/log"
)

// Index groups fragments by audio resource and answers ordered time-range
// queries. It is built once after parsing and read-only during playback.
type Index struct {
	groups    map[string][]Fragment
	resources []string // audio resources in document order
}

// Build groups fragments by audio resource. Within each group fragments are
// ordered by ClipBegin; a fragment that overlaps its predecessor violates
// the descriptor's monotonicity and is dropped with a warning.
func Build(fragments []Fragment) *Index {
	idx := &Index{groups: make(map[string][]Fragment)}

	for _, f := range fragments {
		if _, seen := idx.groups[f.Audio]; !seen {
			idx.resources = append(idx.resources, f.Audio)
		}
		idx.groups[f.Audio] = append(idx.groups[f.Audio], f)
	}

	for res, group := range idx.groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ClipBegin < group[j].ClipBegin
		})
		kept := group[:0]
		var prevEnd time.Duration
		for _, f := range group {
			if f.ClipBegin < prevEnd {
				log.Warn("dropping overlapping narration fragment",
					"audio", res, "clipBegin", f.ClipBegin, "prevEnd", prevEnd)
				continue
			}
			kept = append(kept, f)
			prevEnd = f.ClipEnd
		}
		idx.groups[res] = kept
	}

	return idx
}

// HasNarration reports whether the index holds any fragments at all.
// A document without narration falls back to synthesized speech.
func (x *Index) HasNarration() bool {
	for _, g := range x.groups {
		if len(g) > 0 {
			return true
		}
	}
	return false
}

// Resources returns the audio resources in document order.
func (x *Index) Resources() []string {
	return x.resources
}

// Fragments returns the ordered fragments of one audio resource.
func (x *Index) Fragments(resource string) []Fragment {
	return x.groups[resource]
}

// Lookup returns the fragment of resource whose [ClipBegin, ClipEnd)
// interval contains t. Time falling in a gap between fragments is not an
// error; the second return is false.
func (x *Index) Lookup(resource string, t time.Duration) (Fragment, bool) {
	group := x.groups[resource]
	if len(group) == 0 {
		return Fragment{}, false
	}
	// First fragment starting after t; the candidate is its predecessor.
	i := sort.Search(len(group), func(i int) bool {
		return group[i].ClipBegin > t
	})
	if i == 0 {
		return Fragment{}, false
	}
	if f := group[i-1]; f.Contains(t) {
		return f, true
	}
	return Fragment{}, false
}

// Next returns the first fragment of resource with ClipBegin > t.
func (x *Index) Next(resource string, t time.Duration) (Fragment, bool) {
	group := x.groups[resource]
	i := sort.Search(len(group), func(i int) bool {
		return group[i].ClipBegin > t
	})
	if i >= len(group) {
		return Fragment{}, false
	}
	return group[i], true
}

// Prev returns the last fragment of resource with ClipBegin < t.
func (x *Index) Prev(resource string, t time.Duration) (Fragment, bool) {
	group := x.groups[resource]
	i := sort.Search(len(group), func(i int) bool {
		return group[i].ClipBegin >= t
	})
	if i == 0 {
		return Fragment{}, false
	}
	return group[i-1], true
}

// NextResource returns the audio resource following resource in document
// order, or "" when resource is the last (or unknown).
func (x *Index) NextResource(resource string) string {
	for i, r := range x.resources {
		if r == resource && i+1 < len(x.resources) {
			return x.resources[i+1]
		}
	}
	return ""
}
