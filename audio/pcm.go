package audio

import "encoding/binary"

// Resample converts a PCM16 clip to the given sample rate and channel count
// using linear interpolation. Synthesized speech and narration tracks come
// in whatever format their source produced; the output device has one.
func Resample(clip *Clip, sampleRate, channels int) *Clip {
	if clip.SampleRate == sampleRate && clip.Channels == channels {
		return clip
	}

	src := samples(clip)
	srcFrames := len(src) / clip.Channels
	if srcFrames == 0 {
		return &Clip{SampleRate: sampleRate, Channels: channels}
	}
	dstFrames := int(int64(srcFrames) * int64(sampleRate) / int64(clip.SampleRate))

	out := make([]byte, dstFrames*channels*2)
	for frame := 0; frame < dstFrames; frame++ {
		// Linear position in the source.
		pos := float64(frame) * float64(srcFrames-1) / float64(max(dstFrames-1, 1))
		i := int(pos)
		t := pos - float64(i)
		j := min(i+1, srcFrames-1)

		for ch := 0; ch < channels; ch++ {
			sc := min(ch, clip.Channels-1)
			a := float64(src[i*clip.Channels+sc])
			b := float64(src[j*clip.Channels+sc])
			v := int16(a + (b-a)*t)
			binary.LittleEndian.PutUint16(out[(frame*channels+ch)*2:], uint16(v))
		}
	}

	return &Clip{Data: out, SampleRate: sampleRate, Channels: channels}
}

func samples(clip *Clip) []int16 {
	n := len(clip.Data) / 2
	s := make([]int16, n)
	for i := 0; i < n; i++ {
		s[i] = int16(binary.LittleEndian.Uint16(clip.Data[i*2:]))
	}
	return s
}
