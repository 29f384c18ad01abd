package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeWAV(t *testing.T) {
	clip := &Clip{
		Data:       bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 100),
		SampleRate: 44100,
		Channels:   2,
	}

	decoded, err := DecodeWAV(EncodeWAV(clip))
	if err != nil {
		t.Fatalf("DecodeWAV error: %v", err)
	}
	if decoded.SampleRate != clip.SampleRate || decoded.Channels != clip.Channels {
		t.Errorf("format = %d Hz/%d ch, want %d Hz/%d ch",
			decoded.SampleRate, decoded.Channels, clip.SampleRate, clip.Channels)
	}
	if !bytes.Equal(decoded.Data, clip.Data) {
		t.Error("decoded payload differs from original")
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not audio")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("error = %v, want ErrNotWAV", err)
	}
	if _, err := DecodeWAV(nil); !errors.Is(err, ErrNotWAV) {
		t.Errorf("error for nil = %v, want ErrNotWAV", err)
	}
}

func TestClipDuration(t *testing.T) {
	// One second of 44.1kHz stereo PCM16.
	clip := &Clip{Data: make([]byte, 44100*4), SampleRate: 44100, Channels: 2}
	if got := clip.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}

	var none *Clip
	if got := none.Duration(); got != 0 {
		t.Errorf("nil clip Duration() = %v, want 0", got)
	}
}

func TestResample(t *testing.T) {
	// Half a second of mono at 22050 Hz.
	clip := &Clip{Data: make([]byte, 22050), SampleRate: 22050, Channels: 1}

	out := Resample(clip, 44100, 2)
	if out.SampleRate != 44100 || out.Channels != 2 {
		t.Fatalf("format = %d Hz/%d ch, want 44100 Hz/2 ch", out.SampleRate, out.Channels)
	}
	got := out.Duration()
	want := clip.Duration()
	if diff := got - want; diff < -10*time.Millisecond || diff > 10*time.Millisecond {
		t.Errorf("resampled duration = %v, want ~%v", got, want)
	}
}

func TestResampleIdentity(t *testing.T) {
	clip := &Clip{Data: []byte{1, 2, 3, 4}, SampleRate: 44100, Channels: 2}
	if out := Resample(clip, 44100, 2); out != clip {
		t.Error("identity resample should return the same clip")
	}
}
