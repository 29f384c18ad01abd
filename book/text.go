package book

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Block is one block-level run of chapter text. Anchor is the id of the
// element carrying the text, when it has one; narration descriptors
// highlight by these ids.
type Block struct {
	Anchor string
	Text   string
}

// blockTags are the elements that start a new text block.
var blockTags = map[string]bool{
	"p": true, "div": true, "blockquote": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"td": true, "figcaption": true,
}

// skipTags hold no reader-visible text.
var skipTags = map[string]bool{
	"script": true, "style": true, "head": true, "title": true,
}

// Blocks parses an XHTML chapter into block-level text runs. Inline markup
// is flattened; an inline element's id wins over the enclosing block's when
// the block has none, so sentence-level narration anchors survive.
func Blocks(r io.Reader) ([]Block, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var blocks []Block
	var cur strings.Builder
	var curAnchor string

	flush := func() {
		text := collapseSpace(cur.String())
		cur.Reset()
		if text == "" {
			curAnchor = ""
			return
		}
		blocks = append(blocks, Block{Anchor: curAnchor, Text: text})
		curAnchor = ""
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipTags[n.Data] {
				return
			}
			if blockTags[n.Data] {
				flush()
				curAnchor = attr(n, "id")
			} else if curAnchor == "" {
				if id := attr(n, "id"); id != "" {
					curAnchor = id
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			flush()
		}
	}
	walk(doc)
	flush()
	return blocks, nil
}

// PlainText returns a chapter's text as one whitespace-collapsed string.
func PlainText(r io.Reader) (string, error) {
	blocks, err := Blocks(r)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Text
	}
	return strings.Join(parts, " "), nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
