// Package ui is the terminal reading surface: a paged book view with
// synchronized narration highlighting, transport controls, and one-key
// export of narration segments to Anki.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/panjf2000/ants/v2"

	"github.com/lectorapp/lector/anki"
	"github.com/lectorapp/lector/audio"
	"github.com/lectorapp/lector/book"
	"github.com/lectorapp/lector/overlay"
	"github.com/lectorapp/lector/playback"
	"github.com/lectorapp/lector/settings"
	"github.com/lectorapp/lector/speech"
)

const (
	statusBarHeight = 1
	titleBarHeight  = 1
	seekStep        = 5 * time.Second
)

// Config wires the reading session.
type Config struct {
	Book   *book.Book
	BookID string
	Store  *settings.Store
	Medium audio.Medium
	// Synth may be nil; synthesized fallback is then unavailable.
	Synth speech.Synthesizer
}

// Run opens the reading surface and blocks until the user quits.
func Run(cfg Config) error {
	idx, err := cfg.Book.Index()
	if err != nil {
		return err
	}
	pager, err := newBookPager(cfg.Book, 80, 24)
	if err != nil {
		return err
	}

	var tracker *playback.Tracker
	if cfg.Store.SyncHighlight() {
		tracker = playback.NewTracker(idx, pager)
	}

	var speaker *speech.Speaker
	var pool *ants.Pool
	if cfg.Synth != nil && cfg.Store.TTSEnabled() {
		pool, err = ants.NewPool(4)
		if err != nil {
			return fmt.Errorf("creating synthesis pool: %w", err)
		}
		defer pool.Release()
		scfg := speech.DefaultSpeakerConfig()
		vctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		scfg.Voice = speech.ResolveVoice(vctx, cfg.Synth, cfg.Store.Voice(), settings.DefaultVoice)
		cancel()
		speaker = speech.NewSpeaker(cfg.Synth, cfg.Medium, pager, nil, scfg, pool)
	}

	controller := playback.NewController(idx, cfg.Medium, cfg.Book, tracker, speaker)
	cfg.Medium.SetVolume(cfg.Store.Volume())

	var recorder *playback.Recorder
	if _, ok := cfg.Medium.(audio.Tappable); ok {
		rcfg := playback.DefaultRecorderConfig()
		rcfg.Grace = cfg.Store.CaptureGrace()
		recorder, err = playback.NewRecorder(cfg.Medium, cfg.Book, rcfg)
		if err != nil {
			return err
		}
	}

	m := &model{
		book:       cfg.Book,
		bookID:     cfg.BookID,
		store:      cfg.Store,
		pager:      pager,
		controller: controller,
		recorder:   recorder,
		anki:       anki.NewClient(cfg.Store.AnkiURL()),
		viewport:   viewport.New(80, 24),
	}
	if pos, ok := cfg.Store.Position(cfg.BookID); ok {
		m.resume = &pos
		if pos.Chapter != "" {
			ref := overlay.FragmentRef{Path: pos.Chapter, Anchor: pos.Sentence}
			if err := pager.DisplayFragment(context.Background(), ref); err != nil {
				log.Debug("restoring reading position", "error", err)
			}
		}
	}
	pager.setPositionListener(positionSaver{store: cfg.Store, bookID: cfg.BookID})

	p := tea.NewProgram(m, tea.WithAltScreen())
	controller.OnStateChange(func(st playback.State) { p.Send(stateMsg(st)) })
	controller.OnError(func(err error) { p.Send(playbackErrMsg{err}) })

	_, err = p.Run()
	controller.Stop()
	return err
}

// positionSaver persists the page location reported by the pager, so a
// book read without narration still reopens where it was left.
type positionSaver struct {
	store  *settings.Store
	bookID string
}

func (s positionSaver) PositionChanged(ref overlay.FragmentRef) {
	err := s.store.SetPosition(s.bookID, settings.Position{
		Chapter:  ref.Path,
		Sentence: ref.Anchor,
	})
	if err != nil {
		log.Warn("saving reading position", "error", err)
	}
}

type model struct {
	book       *book.Book
	bookID     string
	store      *settings.Store
	pager      *bookPager
	controller *playback.Controller
	recorder   *playback.Recorder
	anki       *anki.Client
	viewport   viewport.Model

	state     playback.State
	resume    *settings.Position // saved position, consumed on first play
	capturing bool

	flash   string
	flashID int

	width  int
	height int
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		content := msg.Height - statusBarHeight - titleBarHeight
		m.pager.setSize(msg.Width, content)
		m.viewport.Width = msg.Width
		m.viewport.Height = content
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		m.state = playback.State(msg)
		return m, nil

	case playbackErrMsg:
		return m, m.setFlash("playback error: " + msg.err.Error())

	case capturedMsg:
		m.capturing = false
		if msg.err != nil {
			return m, m.setFlash("capture failed: " + msg.err.Error())
		}
		return m, m.setFlash(captureSummary(msg))

	case statusTimeoutMsg:
		if msg.id == m.flashID {
			m.flash = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.controller.Stop()
		m.savePosition()
		return m, tea.Quit

	case " ":
		if m.resume != nil && m.resume.Resource != "" && m.state.Status == playback.StatusIdle {
			pos := *m.resume
			m.resume = nil
			if err := m.controller.PlayFrom(ctx, pos.Resource, pos.Offset); err != nil {
				return m, m.setFlash(err.Error())
			}
			return m, nil
		}
		m.resume = nil
		if err := m.controller.Toggle(ctx); err != nil {
			return m, m.setFlash(err.Error())
		}
		return m, nil

	case "n", "right":
		if err := m.controller.Next(ctx); err != nil {
			return m, m.setFlash(err.Error())
		}
		return m, nil

	case "p", "left":
		if err := m.controller.Prev(ctx); err != nil {
			return m, m.setFlash(err.Error())
		}
		return m, nil

	case "f":
		return m, m.seek(ctx, seekStep)
	case "b":
		return m, m.seek(ctx, -seekStep)

	case "pgdown", "d":
		if _, err := m.pager.TurnPage(ctx); err != nil {
			return m, m.setFlash(err.Error())
		}
		return m, nil

	case "pgup", "u":
		if err := m.pager.turnBack(); err != nil {
			return m, m.setFlash(err.Error())
		}
		return m, nil

	case "c":
		return m, m.capture()
	}
	return m, nil
}

func (m *model) seek(ctx context.Context, delta time.Duration) tea.Cmd {
	if err := m.controller.SeekBy(ctx, delta); err != nil {
		return m.setFlash(err.Error())
	}
	return nil
}

// capture records the active narration fragment and exports it as a
// flashcard. Playback pauses for the duration; the capture commandeers the
// audio device.
func (m *model) capture() tea.Cmd {
	if m.recorder == nil {
		return m.setFlash("capture unavailable on this audio device")
	}
	if m.capturing {
		return m.setFlash("capture already running")
	}
	frag, ok := m.controller.ActiveFragment()
	if !ok {
		return m.setFlash("no narration fragment at the current position")
	}
	if err := m.controller.Pause(); err != nil {
		return m.setFlash(err.Error())
	}
	m.capturing = true

	sentence := m.pager.anchorText(frag.Text.Anchor)
	deck, noteModel := m.store.AnkiDeck(), m.store.AnkiModel()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := m.recorder.CaptureFragment(ctx, frag)
		if err != nil {
			return capturedMsg{err: err}
		}
		if err := m.anki.VerifyDeck(ctx, deck); err != nil {
			return capturedMsg{err: err}
		}
		id, err := m.anki.AddNote(ctx, anki.Note{
			Deck:   deck,
			Model:  noteModel,
			Fields: map[string]string{"Front": sentence, "Back": m.book.Title()},
			Tags:   []string{"lector"},
			Audio: []anki.Attachment{{
				Data:     res.Data,
				Filename: res.Filename(),
				Fields:   []string{"Front"},
			}},
		})
		if err != nil {
			return capturedMsg{err: err}
		}
		return capturedMsg{noteID: id, bytes: len(res.Data)}
	}
}

func (m *model) setFlash(text string) tea.Cmd {
	m.flash = text
	m.flashID++
	id := m.flashID
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return statusTimeoutMsg{id: id}
	})
}

func (m *model) savePosition() {
	if m.state.Mode != playback.ModeRecorded || m.state.ActiveResource == "" {
		return
	}
	err := m.store.SetPosition(m.bookID, settings.Position{
		Resource: m.state.ActiveResource,
		Offset:   m.state.Position,
	})
	if err != nil {
		log.Warn("saving reading position", "error", err)
	}
}

func (m *model) View() string {
	if m.width == 0 {
		return "loading…"
	}
	m.viewport.SetContent(m.pager.view())
	return titleBar(m.book.Title(), m.width) + "\n" +
		m.viewport.View() + "\n" +
		m.statusBar()
}
