package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/lectorapp/lector/audio"
	"github.com/lectorapp/lector/overlay"
)

var (
	// ErrInvalidRange means the capture range is empty or inverted. It is
	// reported synchronously, before any playback starts.
	ErrInvalidRange = errors.New("capture: empty or inverted time range")

	// ErrCaptureTimeout means the range elapsed plus the grace window
	// without the medium producing any audio data.
	ErrCaptureTimeout = errors.New("capture: no audio data before timeout")

	// ErrCaptureBusy means a capture is already in progress.
	ErrCaptureBusy = errors.New("capture: another capture in progress")

	// ErrNotTappable means the medium cannot be recorded from.
	ErrNotTappable = errors.New("capture: medium does not expose a recording tap")
)

// CaptureResult is one recorded segment, ready for export: a WAV container
// around the tapped PCM plus a unique id to name the attachment after.
type CaptureResult struct {
	ID       uuid.UUID
	Data     []byte
	Ext      string
	Duration time.Duration
}

// Filename returns the result's suggested file name.
func (r *CaptureResult) Filename() string {
	return r.ID.String() + "." + r.Ext
}

// RecorderConfig describes the medium's output format and the grace window
// after the range elapses before an empty capture times out.
type RecorderConfig struct {
	SampleRate int
	Channels   int
	Grace      time.Duration
}

// DefaultRecorderConfig matches the default player format.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{SampleRate: 44100, Channels: 2, Grace: 2 * time.Second}
}

// Recorder captures a sub-range of an audio resource by playing it through
// the medium with a tap attached. Capture commandeers the medium: the
// caller pauses regular playback first and restores it afterwards.
//
// Completion is decided by a wall-clock timer over the range length, not by
// the playback clock: a stalled device cannot hang the capture, it times
// out after the grace window instead.
type Recorder struct {
	medium audio.Medium
	tap    audio.Tappable
	opener MediaOpener
	cfg    RecorderConfig

	mu   sync.Mutex
	busy bool
}

// NewRecorder wires a recorder over medium. The medium must expose a
// recording tap.
func NewRecorder(medium audio.Medium, opener MediaOpener, cfg RecorderConfig) (*Recorder, error) {
	tappable, ok := medium.(audio.Tappable)
	if !ok {
		return nil, ErrNotTappable
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		def := DefaultRecorderConfig()
		cfg.SampleRate, cfg.Channels = def.SampleRate, def.Channels
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultRecorderConfig().Grace
	}
	return &Recorder{medium: medium, tap: tappable, opener: opener, cfg: cfg}, nil
}

// CaptureFragment captures one narration fragment's clip range.
func (r *Recorder) CaptureFragment(ctx context.Context, f overlay.Fragment) (*CaptureResult, error) {
	return r.Capture(ctx, f.Audio, f.ClipBegin, f.ClipEnd)
}

// Capture records the [from, to) range of resource and returns it as a WAV
// clip. An empty or inverted range fails immediately with ErrInvalidRange.
func (r *Recorder) Capture(ctx context.Context, resource string, from, to time.Duration) (*CaptureResult, error) {
	if from < 0 || to <= from {
		return nil, ErrInvalidRange
	}

	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return nil, ErrCaptureBusy
	}
	r.busy = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
	}()

	clip, err := r.opener.OpenAudio(resource)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", resource, err)
	}
	if err := r.medium.Load(clip); err != nil {
		return nil, fmt.Errorf("loading %s: %w", resource, err)
	}
	if err := r.medium.Seek(from); err != nil {
		return nil, fmt.Errorf("seeking %s: %w", resource, err)
	}

	var (
		bufMu     sync.Mutex
		buf       []byte
		firstData = make(chan struct{})
		gotData   bool
	)
	release := r.tap.AttachTap(func(pcm []byte) {
		bufMu.Lock()
		buf = append(buf, pcm...)
		if !gotData && len(pcm) > 0 {
			gotData = true
			close(firstData)
		}
		bufMu.Unlock()
	})
	defer release()
	defer func() {
		if err := r.medium.Pause(); err != nil {
			log.Debug("pausing medium after capture", "error", err)
		}
	}()

	if err := r.medium.Play(); err != nil {
		return nil, fmt.Errorf("playing %s: %w", resource, err)
	}

	span := to - from
	timer := time.NewTimer(span)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	// The range has elapsed on the wall clock. If the device produced
	// nothing yet, give it the grace window to start before giving up. A
	// device that starts late still owes the full range, so the span timer
	// restarts from the first data.
	bufMu.Lock()
	empty := !gotData
	bufMu.Unlock()
	if empty {
		grace := time.NewTimer(r.cfg.Grace)
		defer grace.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-grace.C:
			return nil, ErrCaptureTimeout
		case <-firstData:
			timer.Reset(span)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	bufMu.Lock()
	data := make([]byte, len(buf))
	copy(data, buf)
	bufMu.Unlock()

	// Trim trailing bytes past the requested range; ticks are coarser than
	// the range boundary.
	frame := r.cfg.Channels * 2
	want := int(int64(span) * int64(r.cfg.SampleRate) / int64(time.Second) * int64(frame))
	if len(data) > want {
		data = data[:want]
	}
	data = data[:len(data)/frame*frame]

	wav := audio.EncodeWAV(&audio.Clip{
		Data:       data,
		SampleRate: r.cfg.SampleRate,
		Channels:   r.cfg.Channels,
	})

	result := &CaptureResult{
		ID:       uuid.New(),
		Data:     wav,
		Ext:      "wav",
		Duration: span,
	}
	log.Debug("captured segment",
		"resource", resource, "from", from, "to", to, "bytes", len(result.Data))
	return result, nil
}
