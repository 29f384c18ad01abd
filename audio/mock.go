package audio

import (
	"errors"
	"sync"
	"time"
)

// MockMedium is a scripted Medium for tests. The test owns the clock: it
// advances time explicitly and the mock fires the same callbacks a real
// device would, so playback logic can be driven deterministically.
type MockMedium struct {
	mu       sync.Mutex
	clip     *Clip
	duration time.Duration
	pos      time.Duration
	playing  bool
	volume   float64

	onTime  func(time.Duration)
	onEnded func()
	onError func(error)
	tap     Tap

	// Scripted failures.
	PlayErr error
	LoadErr error
	SeekErr error

	// Call records.
	Loads  int
	Plays  int
	Pauses int
	Seeks  []time.Duration
}

// NewMockMedium returns a mock with a 10-second default duration.
func NewMockMedium() *MockMedium {
	return &MockMedium{duration: 10 * time.Second, volume: 1.0}
}

// SetDuration overrides the scripted source duration.
func (m *MockMedium) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

func (m *MockMedium) Load(clip *Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return m.LoadErr
	}
	m.clip = clip
	if clip != nil && clip.Duration() > 0 {
		m.duration = clip.Duration()
	}
	m.pos = 0
	m.playing = false
	m.Loads++
	return nil
}

func (m *MockMedium) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlayErr != nil {
		return m.PlayErr
	}
	m.playing = true
	m.Plays++
	return nil
}

func (m *MockMedium) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.Pauses++
	return nil
}

func (m *MockMedium) Seek(to time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SeekErr != nil {
		return m.SeekErr
	}
	m.pos = min(max(to, 0), m.duration)
	m.Seeks = append(m.Seeks, to)
	return nil
}

func (m *MockMedium) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

func (m *MockMedium) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *MockMedium) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

func (m *MockMedium) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = v
}

func (m *MockMedium) OnTimeUpdate(fn func(time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTime = fn
}

func (m *MockMedium) OnEnded(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnded = fn
}

func (m *MockMedium) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// AttachTap implements Tappable.
func (m *MockMedium) AttachTap(t Tap) (release func()) {
	m.mu.Lock()
	m.tap = t
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.tap = nil
		m.mu.Unlock()
	}
}

// TapAttached reports whether a tap is currently attached.
func (m *MockMedium) TapAttached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tap != nil
}

// Advance moves the scripted clock forward while playing, firing the tap
// with synthetic PCM, the time-update callback, and the ended callback when
// the source runs out. It does nothing while paused, like a real device.
func (m *MockMedium) Advance(d time.Duration) {
	m.mu.Lock()
	if !m.playing {
		m.mu.Unlock()
		return
	}
	m.pos += d
	ended := false
	if m.pos >= m.duration {
		m.pos = m.duration
		m.playing = false
		ended = true
	}
	pos := m.pos
	onTime, onEnded, tap := m.onTime, m.onEnded, m.tap
	m.mu.Unlock()

	if tap != nil {
		// 44.1kHz stereo PCM16 worth of bytes for the elapsed time.
		n := int(int64(d) * 44100 * 4 / int64(time.Second))
		tap(make([]byte, n))
	}
	if onTime != nil {
		onTime(pos)
	}
	if ended && onEnded != nil {
		onEnded()
	}
}

// FinishTrack fires the ended callback unconditionally, for scripting a
// stale completion that lands after the consumer already moved on.
func (m *MockMedium) FinishTrack() {
	m.mu.Lock()
	m.playing = false
	fn := m.onEnded
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// EmitTime fires a bare time update at pos without advancing state, for
// scripting repeated or out-of-order clock callbacks.
func (m *MockMedium) EmitTime(pos time.Duration) {
	m.mu.Lock()
	m.pos = pos
	fn := m.onTime
	m.mu.Unlock()
	if fn != nil {
		fn(pos)
	}
}

// FailWith fires the error callback.
func (m *MockMedium) FailWith(err error) {
	m.mu.Lock()
	fn := m.onError
	m.mu.Unlock()
	if fn == nil {
		err = errors.Join(err, errors.New("no error callback registered"))
		panic(err)
	}
	fn(err)
}
