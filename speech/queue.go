package speech

import "strings"

// Queue holds the utterances of one page, consumed front to back. It is
// regenerated on every page turn and not safe for concurrent use; the
// Speaker serializes access.
type Queue struct {
	units []Utterance
	next  int
}

// NewQueue builds a queue over units.
func NewQueue(units []Utterance) *Queue {
	return &Queue{units: units}
}

// Next dequeues the next utterance. ok is false when the queue is
// exhausted.
func (q *Queue) Next() (u Utterance, ok bool) {
	if q.next >= len(q.units) {
		return Utterance{}, false
	}
	u = q.units[q.next]
	q.next++
	return u, true
}

// Peek returns the next utterance without consuming it.
func (q *Queue) Peek(ahead int) (Utterance, bool) {
	i := q.next + ahead
	if i < 0 || i >= len(q.units) {
		return Utterance{}, false
	}
	return q.units[i], true
}

// Rewind moves the cursor back n units, clamping at the front.
func (q *Queue) Rewind(n int) {
	q.next = max(q.next-n, 0)
}

// Len returns the number of utterances not yet consumed.
func (q *Queue) Len() int {
	return len(q.units) - q.next
}

// SeekTo re-slices the queue to start at the first unit containing a
// prefix of the requested text (jump-to-sentence). Matching is tolerant:
// progressively shorter prefixes of want are tried, so a selection that
// straddles a unit boundary still lands on its first unit. Returns false,
// leaving the queue untouched, when nothing matches.
func (q *Queue) SeekTo(want string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return false
	}

	for _, prefix := range prefixes(want) {
		for i, u := range q.units {
			if strings.Contains(u.Text, prefix) {
				q.next = i
				return true
			}
		}
	}
	return false
}

// prefixes yields want, then progressively shorter leading portions.
func prefixes(want string) []string {
	runes := []rune(want)
	lengths := []int{len(runes), 32, 16, 8}
	var out []string
	prev := -1
	for _, n := range lengths {
		if n > len(runes) {
			n = len(runes)
		}
		if n == prev || n == 0 {
			continue
		}
		out = append(out, strings.TrimSpace(string(runes[:n])))
		prev = n
	}
	return out
}
