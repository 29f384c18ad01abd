package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNotWAV is returned when data lacks a RIFF/WAVE header.
	ErrNotWAV = errors.New("not a WAV stream")
	// ErrUnsupportedWAV is returned for WAV encodings other than PCM16.
	ErrUnsupportedWAV = errors.New("unsupported WAV encoding")
)

// EncodeWAV wraps a PCM16 clip in a RIFF/WAVE container suitable for export
// as a standalone file.
func EncodeWAV(clip *Clip) []byte {
	byteRate := clip.SampleRate * clip.Channels * 2
	blockAlign := clip.Channels * 2

	var b bytes.Buffer
	b.Grow(44 + len(clip.Data))
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(clip.Data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(clip.Channels))
	binary.Write(&b, binary.LittleEndian, uint32(clip.SampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(byteRate))
	binary.Write(&b, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&b, binary.LittleEndian, uint16(16)) // bits per sample
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(clip.Data)))
	b.Write(clip.Data)
	return b.Bytes()
}

// DecodeWAV extracts the PCM16 payload from a RIFF/WAVE container.
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	clip := &Clip{}
	rest := data[12:]
	for len(rest) >= 8 {
		id := string(rest[0:4])
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		rest = rest[8:]
		if size > len(rest) {
			return nil, fmt.Errorf("%w: truncated %q chunk", ErrNotWAV, id)
		}
		body := rest[:size]

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrUnsupportedWAV
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 || bits != 16 {
				return nil, ErrUnsupportedWAV
			}
			clip.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
		case "data":
			clip.Data = body
		}

		// Chunks are word-aligned.
		if size%2 == 1 {
			size++
		}
		if size > len(rest) {
			break
		}
		rest = rest[size:]
	}

	if clip.SampleRate == 0 || clip.Data == nil {
		return nil, ErrNotWAV
	}
	return clip, nil
}
