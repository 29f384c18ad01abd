// Package settings holds user preferences and per-book reading positions.
// Preferences live in a viper-managed YAML file; positions are written much
// more often and get their own JSON file in the data directory.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

const (
	// DefaultVoice is used when no voice preference is set.
	DefaultVoice = "en-US-AriaNeural"

	// DefaultCaptureGrace is the capture-timeout grace window.
	DefaultCaptureGrace = 2 * time.Second
)

// Store is the preference store. Reads are safe from any goroutine.
type Store struct {
	v *viper.Viper

	mu        sync.Mutex
	posPath   string
	positions map[string]Position
}

// Position is a saved reading position. For narrated playback Resource and
// Offset locate the spot; for synthesized playback Chapter and Sentence do.
type Position struct {
	Resource string        `json:"resource,omitempty"`
	Offset   time.Duration `json:"offset,omitempty"`
	Chapter  string        `json:"chapter,omitempty"`
	Sentence string        `json:"sentence,omitempty"`
}

// Load reads the config file, falling back to the platform config
// directory when configFile is empty. A missing file is not an error; the
// defaults apply.
func Load(configFile string) (*Store, error) {
	scope := gap.NewScope(gap.User, "lector")

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("lector")
	v.AutomaticEnv()

	v.SetDefault("sync_highlight", true)
	v.SetDefault("tts.enabled", true)
	v.SetDefault("tts.voice", DefaultVoice)
	v.SetDefault("volume", 1.0)
	v.SetDefault("capture.grace", DefaultCaptureGrace.String())
	v.SetDefault("anki.url", "http://127.0.0.1:8765")
	v.SetDefault("anki.deck", "Default")
	v.SetDefault("anki.model", "Basic")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		p, err := scope.ConfigPath("lector.yml")
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		v.SetConfigFile(p)
	}
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
		log.Debug("no config file, using defaults", "path", v.ConfigFileUsed())
	}

	posPath, err := scope.DataPath("positions.json")
	if err != nil {
		return nil, fmt.Errorf("resolving data path: %w", err)
	}
	s := &Store{v: v, posPath: posPath, positions: make(map[string]Position)}
	s.loadPositions()
	return s, nil
}

// SetPositionsPath overrides where reading positions persist. Tests and
// portable setups use it before any SetPosition call.
func (s *Store) SetPositionsPath(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posPath = p
	s.positions = make(map[string]Position)
	s.loadPositionsLocked()
}

func (s *Store) SyncHighlight() bool { return s.v.GetBool("sync_highlight") }
func (s *Store) TTSEnabled() bool    { return s.v.GetBool("tts.enabled") }
func (s *Store) Voice() string       { return s.v.GetString("tts.voice") }
func (s *Store) Volume() float64     { return s.v.GetFloat64("volume") }
func (s *Store) AnkiURL() string     { return s.v.GetString("anki.url") }
func (s *Store) AnkiDeck() string    { return s.v.GetString("anki.deck") }
func (s *Store) AnkiModel() string   { return s.v.GetString("anki.model") }

// CaptureGrace returns the capture grace window, falling back to the
// default when the configured value does not parse.
func (s *Store) CaptureGrace() time.Duration {
	d, err := time.ParseDuration(s.v.GetString("capture.grace"))
	if err != nil || d <= 0 {
		return DefaultCaptureGrace
	}
	return d
}

// Set overrides one preference for this session. It does not write the
// config file; flags and the environment go through here.
func (s *Store) Set(key string, value any) {
	s.v.Set(key, value)
}

// Position returns the saved reading position for a book id.
func (s *Store) Position(bookID string) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[bookID]
	return p, ok
}

// SetPosition saves a reading position and persists it immediately. Losing
// the reading spot to a crash is the one thing this store must not do.
func (s *Store) SetPosition(bookID string, p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[bookID] = p
	return s.savePositionsLocked()
}

func (s *Store) loadPositions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadPositionsLocked()
}

func (s *Store) loadPositionsLocked() {
	data, err := os.ReadFile(s.posPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Debug("reading positions", "path", s.posPath, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, &s.positions); err != nil {
		log.Warn("positions file corrupt, starting fresh", "path", s.posPath, "error", err)
		s.positions = make(map[string]Position)
	}
}

func (s *Store) savePositionsLocked() error {
	data, err := json.MarshalIndent(s.positions, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding positions: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.posPath), 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	tmp := s.posPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing positions: %w", err)
	}
	if err := os.Rename(tmp, s.posPath); err != nil {
		return fmt.Errorf("writing positions: %w", err)
	}
	return nil
}
