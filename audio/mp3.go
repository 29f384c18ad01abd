package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MP3 stream to a PCM16 clip. Narration clips inside
// publications are usually MP3; the playback medium only speaks PCM.
func DecodeMP3(data []byte) (*Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	// go-mp3 always emits 16-bit stereo at the stream's sample rate.
	return &Clip{Data: pcm, SampleRate: dec.SampleRate(), Channels: 2}, nil
}

// DecodeClip sniffs data and decodes WAV or MP3 accordingly.
func DecodeClip(data []byte) (*Clip, error) {
	if len(data) >= 4 && string(data[0:4]) == "RIFF" {
		return DecodeWAV(data)
	}
	return DecodeMP3(data)
}
