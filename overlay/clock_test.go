package overlay

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"seconds with suffix", "5s", 5 * time.Second},
		{"fractional seconds", "1.5s", 1500 * time.Millisecond},
		{"bare decimal", "5.2", 5200 * time.Millisecond},
		{"milliseconds", "1500ms", 1500 * time.Millisecond},
		{"minutes", "2min", 2 * time.Minute},
		{"hours", "0.5h", 30 * time.Minute},
		{"minute colon form", "1:30", 90 * time.Second},
		{"hour colon form", "0:01:05", 65 * time.Second},
		{"colon form with fraction", "0:00:01.840", 1840 * time.Millisecond},
		{"full hours", "2:10:05", 2*time.Hour + 10*time.Minute + 5*time.Second},
		{"surrounding whitespace", " 5s ", 5 * time.Second},
		{"zero", "0s", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if err != nil {
				t.Fatalf("ParseClock(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseClockInvalid(t *testing.T) {
	inputs := []string{
		"", "abc", "-5s", "1:99", "1:2:3:4", "1:xx", "0:75:00",
	}
	for _, in := range inputs {
		if _, err := ParseClock(in); err == nil {
			t.Errorf("ParseClock(%q) succeeded, want error", in)
		}
	}
}
