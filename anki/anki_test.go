package anki

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeConnect scripts an AnkiConnect endpoint.
type fakeConnect struct {
	t            *testing.T
	version      int
	versionCalls atomic.Int64
	deckCalls    atomic.Int64
	notes        []map[string]any
	noteErr      string
}

func (f *fakeConnect) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action  string         `json:"action"`
			Version int            `json:"version"`
			Params  map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("bad request body: %v", err)
		}

		var result any
		var errMsg *string
		switch req.Action {
		case "version":
			f.versionCalls.Add(1)
			result = f.version
		case "addNote":
			if f.noteErr != "" {
				errMsg = &f.noteErr
				break
			}
			note := req.Params["note"].(map[string]any)
			f.notes = append(f.notes, note)
			result = 1496198395707
		case "deckNames":
			f.deckCalls.Add(1)
			result = []string{"Default", "Vocabulary"}
		default:
			f.t.Errorf("unexpected action %q", req.Action)
		}
		json.NewEncoder(w).Encode(map[string]any{"result": result, "error": errMsg})
	}
}

func newFake(t *testing.T) (*fakeConnect, *Client) {
	f := &fakeConnect{t: t, version: 6}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, NewClient(srv.URL)
}

func TestAddNoteWithAudio(t *testing.T) {
	fake, client := newFake(t)

	id, err := client.AddNote(context.Background(), Note{
		Deck:   "Vocabulary",
		Model:  "Basic",
		Fields: map[string]string{"Front": "torrents", "Back": "The rain fell in torrents."},
		Tags:   []string{"lector"},
		Audio: []Attachment{{
			Data:     []byte("RIFFfakewav"),
			Filename: "b277bb4c.wav",
			Fields:   []string{"Back"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != 1496198395707 {
		t.Errorf("id = %d", id)
	}
	if len(fake.notes) != 1 {
		t.Fatalf("server saw %d notes", len(fake.notes))
	}

	note := fake.notes[0]
	if note["deckName"] != "Vocabulary" || note["modelName"] != "Basic" {
		t.Errorf("note = %v", note)
	}
	audio := note["audio"].([]any)[0].(map[string]any)
	if audio["filename"] != "b277bb4c.wav" {
		t.Errorf("filename = %v", audio["filename"])
	}
	decoded, err := base64.StdEncoding.DecodeString(audio["data"].(string))
	if err != nil || string(decoded) != "RIFFfakewav" {
		t.Errorf("attachment data = %q, %v", decoded, err)
	}
}

func TestVersionCheckedOncePerClient(t *testing.T) {
	fake, client := newFake(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.AddNote(ctx, Note{Deck: "Default", Model: "Basic"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := fake.versionCalls.Load(); got != 1 {
		t.Errorf("version checked %d times, want 1", got)
	}
}

func TestOldVersionRefused(t *testing.T) {
	fake, client := newFake(t)
	fake.version = 4

	_, err := client.AddNote(context.Background(), Note{Deck: "Default", Model: "Basic"})
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("AddNote() = %v, want ErrVersionMismatch", err)
	}
	if len(fake.notes) != 0 {
		t.Error("note was added despite version mismatch")
	}
}

func TestServerErrorPassedThroughVerbatim(t *testing.T) {
	fake, client := newFake(t)
	fake.noteErr = "cannot create note because it is a duplicate"

	_, err := client.AddNote(context.Background(), Note{Deck: "Default", Model: "Basic"})
	if err == nil || !strings.Contains(err.Error(), "cannot create note because it is a duplicate") {
		t.Fatalf("AddNote() = %v, want the server's message intact", err)
	}
}

func TestDeckNames(t *testing.T) {
	_, client := newFake(t)

	decks, err := client.DeckNames(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(decks) != 2 || decks[1] != "Vocabulary" {
		t.Errorf("DeckNames() = %v", decks)
	}
}

func TestVerifyDeckCachesKnownDeck(t *testing.T) {
	fake, client := newFake(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := client.VerifyDeck(ctx, "Vocabulary"); err != nil {
			t.Fatal(err)
		}
	}
	if got := fake.deckCalls.Load(); got != 1 {
		t.Errorf("deck list fetched %d times, want 1", got)
	}
}

func TestVerifyDeckUnknown(t *testing.T) {
	_, client := newFake(t)

	err := client.VerifyDeck(context.Background(), "Mining")
	if !errors.Is(err, ErrUnknownDeck) {
		t.Fatalf("VerifyDeck() = %v, want ErrUnknownDeck", err)
	}
	if !strings.Contains(err.Error(), "Mining") {
		t.Errorf("error %q does not name the deck", err)
	}
}
