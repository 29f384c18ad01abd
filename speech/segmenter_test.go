package speech

import (
	"testing"
)

func texts(units []Utterance) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Text
	}
	return out
}

func TestSegmentSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple sentences",
			input: "Hello world. How are you? Fine!",
			want:  []string{"Hello world.", "How are you?", "Fine!"},
		},
		{
			name:  "unterminated remainder still emitted",
			input: "First sentence. And then it just stops",
			want:  []string{"First sentence.", "And then it just stops"},
		},
		{
			name:  "whitespace normalized",
			input: "One.\n\n  Two.\tThree.",
			want:  []string{"One.", "Two.", "Three."},
		},
		{
			name:  "stacked punctuation folds",
			input: "Really?! Yes... maybe.",
			want:  []string{"Really?!", "Yes...", "maybe."},
		},
		{
			name:  "cjk terminators",
			input: "これは本です。すごい！終わり",
			want:  []string{"これは本です。", "すごい！", "終わり"},
		},
		{
			name:  "devanagari danda",
			input: "यह एक किताब है। बहुत अच्छा",
			want:  []string{"यह एक किताब है।", "बहुत अच्छा"},
		},
		{
			name:  "decimal point is not a boundary",
			input: "Pi is about 3.14 roughly. Next.",
			want:  []string{"Pi is about 3.14 roughly.", "Next."},
		},
		{
			name:  "closing quote stays with sentence",
			input: `She said "stop." Then left.`,
			want:  []string{`She said "stop."`, "Then left."},
		},
		{
			name:  "empty input",
			input: "   \n\t ",
			want:  nil,
		},
	}

	seg := NewSegmenter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts(seg.Segment(tt.input))
			if len(got) != len(tt.want) {
				t.Fatalf("Segment(%q) = %q, want %q", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("unit %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSegmentSpansMapToSource(t *testing.T) {
	input := "First one.  Second here."
	units := NewSegmenter().Segment(input)
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
	for i, u := range units {
		got := input[u.Span.Start:u.Span.End]
		if got != u.Text {
			t.Errorf("unit %d span [%d,%d) = %q, want %q", i, u.Span.Start, u.Span.End, got, u.Text)
		}
	}
}

func TestSegmentMinLength(t *testing.T) {
	seg := &TerminatorSegmenter{MinLength: 3}
	got := texts(seg.Segment("A. Something real."))
	if len(got) != 1 || got[0] != "Something real." {
		t.Errorf("Segment = %q, want only the real sentence", got)
	}
}
