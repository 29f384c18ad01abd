package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"

	"github.com/lectorapp/lector/book"
	"github.com/lectorapp/lector/overlay"
	"github.com/lectorapp/lector/render"
)

var highlightStyle = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#89F0CB"}).
	Bold(true)

// bookPager is the paged document surface. It implements render.Renderer
// for synchronized narration (anchor highlighting) and render.Pager for the
// synthesized fallback (visible text, spoken-range marks, page turns).
//
// It is driven from both the UI goroutine and playback callbacks, so all
// state lives behind one mutex.
type bookPager struct {
	mu sync.Mutex

	book     *book.Book
	chapters []string

	width  int
	height int

	chapter int
	blocks  []book.Block
	pages   [][]int // block indexes per page
	page    int

	anchor string         // highlighted narration anchor, "" when none
	marker *render.Marker // spoken-range mark over the visible text

	listener render.PositionListener
}

func newBookPager(b *book.Book, width, height int) (*bookPager, error) {
	p := &bookPager{
		book:     b,
		chapters: b.Chapters(),
		width:    max(width, 20),
		height:   max(height, 4),
	}
	if len(p.chapters) == 0 {
		return nil, fmt.Errorf("publication has no readable chapters")
	}
	if err := p.openChapter(0); err != nil {
		return nil, err
	}
	return p, nil
}

// setPositionListener registers the reading-position observer. It fires on
// manual and automatic page turns, not on narration-driven display jumps;
// recorded playback saves its own time-based position.
func (p *bookPager) setPositionListener(l render.PositionListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

// notifyPosition reports the current page's location. Called without the
// lock held.
func (p *bookPager) notifyPosition() {
	p.mu.Lock()
	l := p.listener
	ref := p.currentRefLocked()
	p.mu.Unlock()
	if l != nil {
		l.PositionChanged(ref)
	}
}

// currentRefLocked locates the visible page: its chapter plus the first
// anchored block on it.
func (p *bookPager) currentRefLocked() overlay.FragmentRef {
	ref := overlay.FragmentRef{Path: p.chapters[p.chapter]}
	for _, i := range p.pages[p.page] {
		if p.blocks[i].Anchor != "" {
			ref.Anchor = p.blocks[i].Anchor
			break
		}
	}
	return ref
}

// setSize re-paginates for a new terminal size.
func (p *bookPager) setSize(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width = max(width, 20)
	p.height = max(height, 4)
	keep := p.page
	p.paginateLocked()
	p.page = min(keep, len(p.pages)-1)
	p.rebuildMarkerLocked()
}

func (p *bookPager) openChapter(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openChapterLocked(i)
}

func (p *bookPager) openChapterLocked(i int) error {
	blocks, err := p.book.ChapterBlocks(p.chapters[i])
	if err != nil {
		return fmt.Errorf("opening chapter %s: %w", p.chapters[i], err)
	}
	p.chapter = i
	p.blocks = blocks
	p.page = 0
	p.paginateLocked()
	p.rebuildMarkerLocked()
	return nil
}

// paginateLocked assigns blocks to pages by wrapped line count. A block
// never splits across pages; an oversized block gets a page to itself.
func (p *bookPager) paginateLocked() {
	p.pages = nil
	var cur []int
	lines := 0
	for i, b := range p.blocks {
		n := len(strings.Split(wordwrap.String(b.Text, p.width), "\n")) + 1
		if lines+n > p.height && len(cur) > 0 {
			p.pages = append(p.pages, cur)
			cur, lines = nil, 0
		}
		cur = append(cur, i)
		lines += n
	}
	if len(cur) > 0 {
		p.pages = append(p.pages, cur)
	}
	if len(p.pages) == 0 {
		p.pages = [][]int{{}}
	}
}

func (p *bookPager) rebuildMarkerLocked() {
	// Reverse video on/off directly; a full lipgloss render would reset
	// the surrounding page styles at the span boundary.
	p.marker = render.NewMarker(p.visibleTextLocked(), "\x1b[7m", "\x1b[27m")
}

func (p *bookPager) visibleTextLocked() string {
	if p.page >= len(p.pages) {
		return ""
	}
	parts := make([]string, 0, len(p.pages[p.page]))
	for _, i := range p.pages[p.page] {
		parts = append(parts, p.blocks[i].Text)
	}
	return strings.Join(parts, "\n")
}

// DisplayFragment implements render.Renderer: show the page holding ref's
// anchor, switching chapters when needed.
func (p *bookPager) DisplayFragment(_ context.Context, ref overlay.FragmentRef) error {
	href, ok := p.book.ChapterFor(ref)
	if !ok {
		return fmt.Errorf("no chapter for %s", ref)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if href != p.chapters[p.chapter] {
		for i, c := range p.chapters {
			if c == href {
				if err := p.openChapterLocked(i); err != nil {
					return err
				}
				break
			}
		}
	}
	if ref.Anchor == "" {
		return nil
	}
	for pageNo, blockIdxs := range p.pages {
		for _, i := range blockIdxs {
			if p.blocks[i].Anchor == ref.Anchor {
				if pageNo != p.page {
					p.page = pageNo
					p.rebuildMarkerLocked()
				}
				return nil
			}
		}
	}
	log.Debug("anchor not found in chapter", "anchor", ref.Anchor, "chapter", href)
	return nil
}

// HighlightAnchor implements render.Renderer.
func (p *bookPager) HighlightAnchor(anchor string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.anchor = anchor
}

// ClearHighlight implements render.Renderer.
func (p *bookPager) ClearHighlight(anchor string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.anchor == anchor {
		p.anchor = ""
	}
}

// VisibleText implements render.Pager.
func (p *bookPager) VisibleText() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visibleTextLocked(), nil
}

// TurnPage implements render.Pager. It advances within the chapter first,
// then to the next chapter, and reports false past the last page of the
// last chapter.
func (p *bookPager) TurnPage(context.Context) (bool, error) {
	p.mu.Lock()
	switch {
	case p.page+1 < len(p.pages):
		p.page++
		p.rebuildMarkerLocked()
	case p.chapter+1 < len(p.chapters):
		if err := p.openChapterLocked(p.chapter + 1); err != nil {
			p.mu.Unlock()
			return false, err
		}
	default:
		p.mu.Unlock()
		return false, nil
	}
	p.mu.Unlock()
	p.notifyPosition()
	return true, nil
}

// turnBack is the manual reverse page turn; narration never needs it but
// the reader does.
func (p *bookPager) turnBack() error {
	p.mu.Lock()
	switch {
	case p.page > 0:
		p.page--
		p.rebuildMarkerLocked()
	case p.chapter > 0:
		if err := p.openChapterLocked(p.chapter - 1); err != nil {
			p.mu.Unlock()
			return err
		}
		p.page = len(p.pages) - 1
		p.rebuildMarkerLocked()
	default:
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	p.notifyPosition()
	return nil
}

// MarkRange implements render.Pager.
func (p *bookPager) MarkRange(span render.Span) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marker.Mark(span)
}

// ClearMark implements render.Pager.
func (p *bookPager) ClearMark() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marker.Unmark()
}

// view renders the visible page, with the narration anchor's block
// highlighted and the spoken range marked.
func (p *bookPager) view() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.marker.Marked() {
		return wordwrap.String(p.marker.Render(), p.width)
	}

	var b strings.Builder
	for n, i := range p.pages[p.page] {
		if n > 0 {
			b.WriteString("\n")
		}
		blk := p.blocks[i]
		text := wordwrap.String(blk.Text, p.width)
		if p.anchor != "" && blk.Anchor == p.anchor {
			text = highlightStyle.Render(text)
		}
		b.WriteString(text)
	}
	return b.String()
}

// anchorText returns the text of the chapter block carrying anchor.
func (p *bookPager) anchorText(anchor string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.blocks {
		if b.Anchor == anchor {
			return b.Text
		}
	}
	return ""
}

// status returns the reading location for the status bar.
func (p *bookPager) status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("%s · page %d/%d",
		p.chapters[p.chapter], p.page+1, len(p.pages))
}
