// Package book opens EPUB publications and exposes what the
// synchronization engine needs from them: the reading spine, the
// synchronized-narration descriptors, the narration audio, and per-chapter
// text.
package book

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/taylorskalyo/goreader/epub"

	"github.com/lectorapp/lector/audio"
	"github.com/lectorapp/lector/overlay"
)

const (
	mediaTypeSMIL = "application/smil+xml"
)

var (
	// ErrNoRootfile means the container holds no package document.
	ErrNoRootfile = errors.New("book: no rootfile in container")

	// ErrMissingItem means a referenced resource is not in the manifest.
	ErrMissingItem = errors.New("book: resource not in manifest")
)

// Book is an open publication. It is safe for concurrent reads; Close
// invalidates all resources opened through it.
type Book struct {
	rc   *epub.ReadCloser
	root *epub.Rootfile
	// Manifest items keyed by cleaned href.
	items map[string]*epub.Item

	clipMu sync.Mutex
	clips  map[string]*audio.Clip
}

// Open reads the publication at p.
func Open(p string) (*Book, error) {
	rc, err := epub.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	if len(rc.Rootfiles) == 0 {
		rc.Close()
		return nil, ErrNoRootfile
	}
	b := &Book{
		rc:    rc,
		root:  rc.Rootfiles[0],
		items: make(map[string]*epub.Item),
		clips: make(map[string]*audio.Clip),
	}
	for i := range b.root.Manifest.Items {
		item := &b.root.Manifest.Items[i]
		b.items[path.Clean(item.HREF)] = item
	}
	log.Debug("opened publication",
		"path", p, "title", b.root.Title, "items", len(b.items))
	return b, nil
}

// Close releases the underlying container.
func (b *Book) Close() error {
	b.rc.Close()
	return nil
}

// Title returns the publication title from the package metadata.
func (b *Book) Title() string {
	return b.root.Title
}

// Chapters returns the spine hrefs in reading order.
func (b *Book) Chapters() []string {
	var out []string
	for _, ref := range b.root.Spine.Itemrefs {
		if ref.Item == nil {
			continue
		}
		out = append(out, path.Clean(ref.Item.HREF))
	}
	return out
}

// Fragments parses every narration descriptor in the manifest, in manifest
// order, into one document-wide fragment sequence. A publication without
// descriptors yields an empty slice, not an error.
func (b *Book) Fragments() ([]overlay.Fragment, error) {
	var all []overlay.Fragment
	for i := range b.root.Manifest.Items {
		item := &b.root.Manifest.Items[i]
		if item.MediaType != mediaTypeSMIL {
			continue
		}
		r, err := item.Open()
		if err != nil {
			return nil, fmt.Errorf("opening descriptor %s: %w", item.HREF, err)
		}
		frags, err := overlay.ParseDescriptor(path.Clean(item.HREF), r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing descriptor %s: %w", item.HREF, err)
		}
		all = append(all, frags...)
	}
	// Re-number across descriptors so the sequence is document-wide.
	for i := range all {
		all[i].Index = i
	}
	return all, nil
}

// Index builds the fragment index for the whole publication.
func (b *Book) Index() (*overlay.Index, error) {
	frags, err := b.Fragments()
	if err != nil {
		return nil, err
	}
	return overlay.Build(frags), nil
}

// OpenItem opens a manifest resource by its cleaned href.
func (b *Book) OpenItem(href string) (io.ReadCloser, error) {
	item, ok := b.items[path.Clean(href)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingItem, href)
	}
	return item.Open()
}

// OpenAudio decodes a narration audio resource to PCM. Decoded clips are
// cached for the lifetime of the book; auto-advance and capture revisit the
// same resources repeatedly.
func (b *Book) OpenAudio(resource string) (*audio.Clip, error) {
	key := path.Clean(resource)

	b.clipMu.Lock()
	if clip, ok := b.clips[key]; ok {
		b.clipMu.Unlock()
		return clip, nil
	}
	b.clipMu.Unlock()

	r, err := b.OpenItem(key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", resource, err)
	}
	clip, err := audio.DecodeClip(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", resource, err)
	}

	b.clipMu.Lock()
	b.clips[key] = clip
	b.clipMu.Unlock()
	return clip, nil
}

// ChapterBlocks extracts the block-level text of a spine chapter, keeping
// element anchors for highlight targeting.
func (b *Book) ChapterBlocks(href string) ([]Block, error) {
	r, err := b.OpenItem(href)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Blocks(r)
}

// ChapterFor returns the spine chapter a fragment ref points into, matching
// by href with or without the container path prefix.
func (b *Book) ChapterFor(ref overlay.FragmentRef) (string, bool) {
	want := path.Clean(ref.Path)
	for _, href := range b.Chapters() {
		if href == want || path.Base(href) == path.Base(want) && strings.HasSuffix(want, path.Base(href)) {
			return href, true
		}
	}
	return "", false
}
