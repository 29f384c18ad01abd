// Package anki exports captured narration segments to an Anki flashcard
// collection through the AnkiConnect HTTP API.
package anki

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// minVersion is the oldest AnkiConnect API version the client speaks.
const minVersion = 6

// ErrVersionMismatch means the connected AnkiConnect is older than the API
// version this client was written against.
var ErrVersionMismatch = errors.New("anki: AnkiConnect version too old")

// ErrUnknownDeck means the configured deck does not exist in the collection.
var ErrUnknownDeck = errors.New("anki: no such deck")

// Client talks to a local AnkiConnect endpoint. The API version is checked
// once per client and remembered; AnkiConnect restarts mid-session are rare
// enough not to re-verify every call.
type Client struct {
	url  string
	http *http.Client

	mu       sync.Mutex
	verified bool
	decks    map[string]bool // decks confirmed to exist
}

// NewClient returns a client for the AnkiConnect endpoint at url
// (conventionally http://127.0.0.1:8765).
func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Note is one flashcard to add.
type Note struct {
	Deck   string
	Model  string
	Fields map[string]string
	Tags   []string
	Audio  []Attachment
}

// Attachment is a media file stored with the note. Fields names the note
// fields the player markup is appended to.
type Attachment struct {
	Data     []byte
	Filename string
	Fields   []string
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Version returns the AnkiConnect API version.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	if err := c.invoke(ctx, "version", nil, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// AddNote adds a note with its audio attachments and returns the new note
// id. The first call on a client verifies the AnkiConnect version.
func (c *Client) AddNote(ctx context.Context, n Note) (int64, error) {
	if err := c.ensureVersion(ctx); err != nil {
		return 0, err
	}

	type wireAudio struct {
		Data     string   `json:"data"`
		Filename string   `json:"filename"`
		Fields   []string `json:"fields"`
	}
	type wireNote struct {
		DeckName  string            `json:"deckName"`
		ModelName string            `json:"modelName"`
		Fields    map[string]string `json:"fields"`
		Tags      []string          `json:"tags,omitempty"`
		Options   struct {
			AllowDuplicate bool `json:"allowDuplicate"`
		} `json:"options"`
		Audio []wireAudio `json:"audio,omitempty"`
	}

	note := wireNote{
		DeckName:  n.Deck,
		ModelName: n.Model,
		Fields:    n.Fields,
		Tags:      n.Tags,
	}
	for _, a := range n.Audio {
		note.Audio = append(note.Audio, wireAudio{
			Data:     base64.StdEncoding.EncodeToString(a.Data),
			Filename: a.Filename,
			Fields:   a.Fields,
		})
	}

	var id int64
	if err := c.invoke(ctx, "addNote", map[string]any{"note": note}, &id); err != nil {
		return 0, err
	}
	log.Debug("added note", "deck", n.Deck, "id", id, "attachments", len(n.Audio))
	return id, nil
}

// DeckNames lists the collection's decks.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.invoke(ctx, "deckNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// VerifyDeck checks that the named deck exists in the collection, so a
// misconfigured deck fails with a clear message instead of AnkiConnect's.
// A positive answer is remembered; later captures skip the round trip.
func (c *Client) VerifyDeck(ctx context.Context, name string) error {
	c.mu.Lock()
	known := c.decks[name]
	c.mu.Unlock()
	if known {
		return nil
	}

	names, err := c.DeckNames(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			c.mu.Lock()
			if c.decks == nil {
				c.decks = make(map[string]bool)
			}
			c.decks[name] = true
			c.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownDeck, name)
}

func (c *Client) ensureVersion(ctx context.Context) error {
	c.mu.Lock()
	done := c.verified
	c.mu.Unlock()
	if done {
		return nil
	}
	v, err := c.Version(ctx)
	if err != nil {
		return err
	}
	if v < minVersion {
		return fmt.Errorf("%w: have %d, need %d", ErrVersionMismatch, v, minVersion)
	}
	c.mu.Lock()
	c.verified = true
	c.mu.Unlock()
	return nil
}

// invoke performs one AnkiConnect action. An API-level error is returned
// with AnkiConnect's own message text intact, because the caller surfaces
// it to the user verbatim.
func (c *Client) invoke(ctx context.Context, action string, params, result any) error {
	body, err := json.Marshal(request{Action: action, Version: minVersion, Params: params})
	if err != nil {
		return fmt.Errorf("anki: encoding %s: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("anki: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("anki: %s: %w", action, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("anki: %s: unexpected status %s", action, resp.Status)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("anki: decoding %s response: %w", action, err)
	}
	if r.Error != nil && *r.Error != "" {
		return fmt.Errorf("anki: %s: %s", action, *r.Error)
	}
	if result != nil && len(r.Result) > 0 {
		if err := json.Unmarshal(r.Result, result); err != nil {
			return fmt.Errorf("anki: decoding %s result: %w", action, err)
		}
	}
	return nil
}
