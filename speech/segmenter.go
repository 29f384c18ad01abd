package speech

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lectorapp/lector/render"
)

// Utterance is one sentence-like unit of page text, with its byte span in
// the text it was segmented from so the spoken range can be highlighted.
type Utterance struct {
	Text string
	Span render.Span
}

// Segmenter splits page text into utterances. Sentence-boundary detection
// is heuristic; implementations are swappable and callers must not depend
// on exact boundary placement.
type Segmenter interface {
	Segment(text string) []Utterance
}

// terminators covers sentence-ending punctuation across scripts: Latin,
// CJK fullwidth, Arabic and Devanagari.
var terminators = map[rune]bool{
	'.': true, '!': true, '?': true, '…': true,
	'。': true, '．': true, '！': true, '？': true,
	'؟': true, '۔': true, '।': true, '॥': true,
}

// TerminatorSegmenter is the default Segmenter: it scans for terminator
// runes followed by whitespace (or end of text) and emits the remainder as
// a final unit even when unterminated.
type TerminatorSegmenter struct {
	// MinLength drops units shorter than this many runes (markup débris,
	// stray bullets). Zero keeps everything.
	MinLength int
}

// NewSegmenter returns the default segmenter.
func NewSegmenter() *TerminatorSegmenter {
	return &TerminatorSegmenter{MinLength: 2}
}

// Segment splits text into utterances.
func (s *TerminatorSegmenter) Segment(text string) []Utterance {
	normalized, offsets := normalizeWhitespace(text)

	var units []Utterance
	runes := []rune(normalized)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !terminators[runes[i]] {
			continue
		}
		// Fold runs of terminators ("?!", "...") into one boundary.
		end := i + 1
		for end < len(runes) && terminators[runes[end]] {
			end++
		}
		// A closing quote or bracket still belongs to the sentence.
		for end < len(runes) && isClosing(runes[end]) {
			end++
		}
		// Latin terminators need trailing whitespace to count (decimals,
		// file names); CJK and other fullwidth terminators delimit on
		// their own, since those scripts don't space after sentences.
		if needsSpace(runes[i]) && end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}

		s.emit(&units, runes, start, end, offsets)
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		start = end
		i = end - 1
	}

	// An unterminated remainder is still a speakable unit.
	s.emit(&units, runes, start, len(runes), offsets)
	return units
}

func (s *TerminatorSegmenter) emit(units *[]Utterance, runes []rune, start, end int, offsets []int) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if end-start < max(s.MinLength, 1) {
		return
	}
	*units = append(*units, Utterance{
		Text: string(runes[start:end]),
		Span: render.Span{
			Start: offsets[start],
			End:   offsets[end-1] + utf8.RuneLen(runes[end-1]),
		},
	})
}

func needsSpace(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’', '」', '』':
		return true
	}
	return false
}

// normalizeWhitespace collapses whitespace runs to single spaces while
// keeping, per normalized rune, the byte offset into the original text so
// spans can be mapped back for highlighting.
func normalizeWhitespace(text string) (string, []int) {
	var b strings.Builder
	offsets := make([]int, 0, len(text))
	inSpace := true // leading whitespace is dropped entirely
	for i, r := range text {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteRune(' ')
				offsets = append(offsets, i)
				inSpace = true
			}
			continue
		}
		b.WriteRune(r)
		offsets = append(offsets, i)
		inSpace = false
	}
	return b.String(), offsets
}
