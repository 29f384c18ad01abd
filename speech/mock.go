package speech

import (
	"context"
	"sync"

	"github.com/lectorapp/lector/audio"
)

// MockSynthesizer returns canned PCM for any text, recording requests. It
// lives next to the real engines the way the mock player does: tests for
// the playback loop should not depend on a network service.
type MockSynthesizer struct {
	mu       sync.Mutex
	Requests []string
	Err      error
	// ClipLen is the synthetic clip's byte length (PCM16 mono 24kHz).
	ClipLen int
}

// NewMockSynthesizer returns a mock emitting short clips.
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{ClipLen: 4800} // 100ms at 24kHz mono
}

// Synthesize implements Synthesizer.
func (m *MockSynthesizer) Synthesize(ctx context.Context, text, voice string) (*audio.Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.Requests = append(m.Requests, text)
	return &audio.Clip{Data: make([]byte, m.ClipLen), SampleRate: 24000, Channels: 1}, nil
}

// Voices implements Synthesizer.
func (m *MockSynthesizer) Voices(context.Context) ([]Voice, error) {
	return []Voice{{ID: "mock-voice", Name: "Mock", Language: "en-US"}}, nil
}

// Requested returns a copy of the synthesized texts so far.
func (m *MockSynthesizer) Requested() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Requests))
	copy(out, m.Requests)
	return out
}
