package overlay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errEmptyClock = errors.New("empty clock value")

// ParseClock parses a descriptor clock value into a duration. Three textual
// encodings are accepted: a decimal second count with an optional unit
// suffix ("5s", "1.5s", "1500ms", "0.25h", "2min", bare "5.2"), "MM:SS" and
// "HH:MM:SS", both with optional fractional seconds.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errEmptyClock
	}

	if strings.Contains(s, ":") {
		return parseClockParts(s)
	}

	unit := time.Second
	switch {
	case strings.HasSuffix(s, "ms"):
		unit = time.Millisecond
		s = strings.TrimSuffix(s, "ms")
	case strings.HasSuffix(s, "min"):
		unit = time.Minute
		s = strings.TrimSuffix(s, "min")
	case strings.HasSuffix(s, "h"):
		unit = time.Hour
		s = strings.TrimSuffix(s, "h")
	case strings.HasSuffix(s, "s"):
		s = strings.TrimSuffix(s, "s")
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative clock value %q", s)
	}
	return time.Duration(v * float64(unit)), nil
}

func parseClockParts(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}

	var hours, minutes int64
	var err error
	secPart := parts[len(parts)-1]

	if len(parts) == 3 {
		hours, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil || hours < 0 {
			return 0, fmt.Errorf("invalid hours in clock value %q", s)
		}
	}
	minutes, err = strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minutes in clock value %q", s)
	}
	seconds, err := strconv.ParseFloat(secPart, 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, fmt.Errorf("invalid seconds in clock value %q", s)
	}

	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	return d + time.Duration(seconds*float64(time.Second)), nil
}
