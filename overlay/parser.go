package overlay

import (
	"encoding/xml"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/charmbracelet/log"
)

// ParseDescriptor reads one synchronized-narration descriptor and returns
// its fragments in document order. src attributes are resolved against the
// descriptor's own path (descriptorPath, publication-relative).
//
// A malformed timing block is skipped, not fatal: real-world publications
// routinely contain partial markup errors and one corrupt block must not
// void the rest of the descriptor. Only an unreadable document as a whole
// produces an error.
func ParseDescriptor(descriptorPath string, r io.Reader) ([]Fragment, error) {
	dec := xml.NewDecoder(r)
	base := path.Dir(descriptorPath)

	var fragments []Fragment
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Past the last well-formed token nothing more can be
			// recovered; whatever parsed so far is still usable.
			if len(fragments) > 0 {
				log.Debug("descriptor truncated", "path", descriptorPath, "error", err)
				break
			}
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "par" {
			continue
		}

		frag, err := parseTimingBlock(dec, &start, base)
		if err != nil {
			log.Debug("skipping malformed timing block",
				"path", descriptorPath, "error", err)
			continue
		}
		frag.Index = len(fragments)
		fragments = append(fragments, frag)
	}

	return fragments, nil
}

var (
	errNoText      = errors.New("timing block has no text reference")
	errNoAudio     = errors.New("timing block has no audio reference")
	errEmptyClip   = errors.New("clip end does not follow clip begin")
	errMissingClip = errors.New("audio reference missing clip range")
)

// parseTimingBlock consumes one <par> element and extracts its text/audio
// pair. The decoder is always advanced past the element's end tag so a bad
// block cannot desync the surrounding parse.
func parseTimingBlock(dec *xml.Decoder, start *xml.StartElement, base string) (Fragment, error) {
	var block struct {
		Text *struct {
			Src string `xml:"src,attr"`
		} `xml:"text"`
		Audio *struct {
			Src       string `xml:"src,attr"`
			ClipBegin string `xml:"clipBegin,attr"`
			ClipEnd   string `xml:"clipEnd,attr"`
		} `xml:"audio"`
	}
	if err := dec.DecodeElement(&block, start); err != nil {
		return Fragment{}, err
	}

	if block.Text == nil || block.Text.Src == "" {
		return Fragment{}, errNoText
	}
	if block.Audio == nil || block.Audio.Src == "" {
		return Fragment{}, errNoAudio
	}
	if block.Audio.ClipBegin == "" || block.Audio.ClipEnd == "" {
		return Fragment{}, errMissingClip
	}

	begin, err := ParseClock(block.Audio.ClipBegin)
	if err != nil {
		return Fragment{}, err
	}
	end, err := ParseClock(block.Audio.ClipEnd)
	if err != nil {
		return Fragment{}, err
	}
	if end <= begin {
		return Fragment{}, errEmptyClip
	}

	audioPath, _ := resolveHref(base, block.Audio.Src)
	return Fragment{
		Text:      resolveRef(base, block.Text.Src),
		Audio:     audioPath,
		ClipBegin: begin,
		ClipEnd:   end,
	}, nil
}

// resolveHref resolves a possibly-relative href against a base directory,
// collapsing "." and ".." segments, and splits off the anchor.
func resolveHref(base, href string) (resource, anchor string) {
	resource = href
	if i := strings.IndexByte(href, '#'); i >= 0 {
		resource, anchor = href[:i], href[i+1:]
	}
	if resource == "" {
		return "", anchor
	}
	if !strings.HasPrefix(resource, "/") {
		resource = path.Join(base, resource)
	}
	return path.Clean(resource), anchor
}

func resolveRef(base, href string) FragmentRef {
	p, a := resolveHref(base, href)
	return FragmentRef{Path: p, Anchor: a}
}
