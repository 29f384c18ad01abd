package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// PlayerConfig configures the output device.
type PlayerConfig struct {
	SampleRate int           // 44100 or 48000 Hz
	Channels   int           // 1 = mono, 2 = stereo
	TickRate   time.Duration // time-update callback interval
}

// DefaultPlayerConfig returns the default device configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 44100,
		Channels:   2,
		TickRate:   100 * time.Millisecond,
	}
}

func validateConfig(cfg PlayerConfig) error {
	// oto only supports these sample rates reliably.
	if cfg.SampleRate != 44100 && cfg.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", cfg.Channels)
	}
	if cfg.TickRate <= 0 {
		return errors.New("tick rate must be positive")
	}
	return nil
}

// Player is the oto-backed Medium. Loaded clips are resampled to the device
// format; the playback clock derives from bytes consumed by the device.
type Player struct {
	ctx *oto.Context
	cfg PlayerConfig

	mu      sync.Mutex
	clip    *Clip
	head    int // byte offset of the current oto player's start
	reader  *tapReader
	player  *oto.Player
	playing bool
	volume  float64

	onTime  func(time.Duration)
	onEnded func()
	onError func(error)
	tap     Tap

	ticker *time.Ticker
	stopCh chan struct{}
}

// NewPlayer opens the audio device.
func NewPlayer(cfg PlayerConfig) (*Player, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid player config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	return &Player{
		ctx:    ctx,
		cfg:    cfg,
		volume: 1.0,
		stopCh: make(chan struct{}),
	}, nil
}

// Load replaces the current source, stopping playback of the previous one.
func (p *Player) Load(clip *Clip) error {
	if clip == nil || len(clip.Data) == 0 {
		return errors.New("empty clip")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.dropPlayerLocked()
	p.clip = Resample(clip, p.cfg.SampleRate, p.cfg.Channels)
	p.head = 0
	p.playing = false
	return nil
}

// Play starts or resumes playback of the loaded source.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clip == nil {
		return errors.New("no source loaded")
	}
	if p.playing {
		return nil
	}

	if p.player == nil {
		p.reader = &tapReader{data: p.clip.Data[p.head:], tap: p.tapFn}
		p.player = p.ctx.NewPlayer(p.reader)
		p.player.SetVolume(p.volume)
	}
	p.player.Play()
	p.playing = true
	p.startClockLocked()
	return nil
}

// Pause suspends playback, keeping the position.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		return nil
	}
	p.player.Pause()
	p.playing = false
	p.stopClockLocked()
	return nil
}

// Seek moves the playback position, clamping to the source bounds.
func (p *Player) Seek(to time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clip == nil {
		return errors.New("no source loaded")
	}

	wasPlaying := p.playing
	p.dropPlayerLocked()

	offset := p.byteOffset(to)
	p.head = offset

	if wasPlaying {
		p.reader = &tapReader{data: p.clip.Data[p.head:], tap: p.tapFn}
		p.player = p.ctx.NewPlayer(p.reader)
		p.player.SetVolume(p.volume)
		p.player.Play()
		p.playing = true
		p.startClockLocked()
	}
	return nil
}

// Position returns the current playback position.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

// Duration returns the loaded source's duration.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clip == nil {
		return 0
	}
	return p.clip.Duration()
}

// Playing reports whether the device is currently playing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SetVolume sets the output volume in [0, 1].
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = min(max(v, 0), 1)
	if p.player != nil {
		p.player.SetVolume(p.volume)
	}
}

// OnTimeUpdate registers the playback-clock callback.
func (p *Player) OnTimeUpdate(fn func(time.Duration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTime = fn
}

// OnEnded registers the end-of-source callback.
func (p *Player) OnEnded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEnded = fn
}

// OnError registers the playback-failure callback.
func (p *Player) OnError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

// AttachTap implements Tappable. One tap at a time; attaching replaces the
// previous tap.
func (p *Player) AttachTap(t Tap) (release func()) {
	p.mu.Lock()
	p.tap = t
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.tap = nil
		p.mu.Unlock()
	}
}

// Close releases the device.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropPlayerLocked()
	p.clip = nil
	return nil
}

func (p *Player) tapFn(chunk []byte) {
	p.mu.Lock()
	t := p.tap
	p.mu.Unlock()
	if t != nil {
		t(chunk)
	}
}

func (p *Player) positionLocked() time.Duration {
	if p.clip == nil {
		return 0
	}
	consumed := p.head
	if p.reader != nil {
		consumed += p.reader.Consumed()
	}
	bytesPerSecond := p.cfg.SampleRate * p.cfg.Channels * 2
	return time.Duration(consumed) * time.Second / time.Duration(bytesPerSecond)
}

func (p *Player) byteOffset(at time.Duration) int {
	bytesPerSecond := p.cfg.SampleRate * p.cfg.Channels * 2
	off := int(int64(at) * int64(bytesPerSecond) / int64(time.Second))
	frame := p.cfg.Channels * 2
	off -= off % frame
	return min(max(off, 0), len(p.clip.Data))
}

func (p *Player) dropPlayerLocked() {
	p.stopClockLocked()
	if p.player != nil {
		if err := p.player.Close(); err != nil {
			log.Debug("closing oto player", "error", err)
		}
		p.player = nil
	}
	p.reader = nil
	p.playing = false
}

// startClockLocked starts the time-update loop. The loop also watches for
// the source running out, which is the device's end-of-track signal.
func (p *Player) startClockLocked() {
	p.stopClockLocked()
	p.ticker = time.NewTicker(p.cfg.TickRate)
	p.stopCh = make(chan struct{})

	go func(ticker *time.Ticker, stop chan struct{}) {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.tick()
			}
		}
	}(p.ticker, p.stopCh)
}

func (p *Player) stopClockLocked() {
	if p.ticker != nil {
		close(p.stopCh)
		p.ticker = nil
	}
}

func (p *Player) tick() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	pos := p.positionLocked()
	onTime := p.onTime
	ended := p.reader != nil && p.reader.Exhausted() && p.player != nil && !p.player.IsPlaying()
	var onEnded func()
	if ended {
		p.dropPlayerLocked()
		p.head = len(p.clip.Data)
		onEnded = p.onEnded
	}
	p.mu.Unlock()

	if onTime != nil {
		onTime(pos)
	}
	if onEnded != nil {
		onEnded()
	}
}

// tapReader feeds clip bytes to the device, counting consumption for the
// clock and copying chunks to the recording tap.
type tapReader struct {
	mu       sync.Mutex
	data     []byte
	consumed int
	tap      Tap
}

func (r *tapReader) Read(b []byte) (int, error) {
	r.mu.Lock()
	if r.consumed >= len(r.data) {
		r.mu.Unlock()
		return 0, io.EOF
	}
	n := copy(b, r.data[r.consumed:])
	r.consumed += n
	tap := r.tap
	chunk := b[:n]
	r.mu.Unlock()

	if tap != nil {
		tap(chunk)
	}
	return n, nil
}

func (r *tapReader) Consumed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumed
}

func (r *tapReader) Exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumed >= len(r.data)
}
