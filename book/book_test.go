package book

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lectorapp/lector/audio"
)

const testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Narrated Test Book</dc:title>
    <dc:identifier id="uid">test-book-1</dc:identifier>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml" media-overlay="smil1"/>
    <item id="smil1" href="ch1.smil" media-type="application/smil+xml"/>
    <item id="aud1" href="audio/ch1.wav" media-type="audio/wav"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
  </spine>
</package>`

const testChapter = `<?xml version="1.0"?>
<html xmlns="http://www.w3.org/1999/xhtml">
  <head><title>Chapter One</title></head>
  <body>
    <h1 id="c1">Chapter One</h1>
    <p><span id="s001">It was a dark and stormy night.</span>
       <span id="s002">The rain fell in torrents.</span></p>
  </body>
</html>`

const testSMIL = `<?xml version="1.0"?>
<smil xmlns="http://www.w3.org/ns/SMIL" version="3.0">
  <body>
    <par id="p1">
      <text src="ch1.xhtml#s001"/>
      <audio src="audio/ch1.wav" clipBegin="0s" clipEnd="1s"/>
    </par>
    <par id="p2">
      <text src="ch1.xhtml#s002"/>
      <audio src="audio/ch1.wav" clipBegin="1s" clipEnd="2s"/>
    </par>
  </body>
</smil>`

// writeTestEPUB assembles a minimal narrated publication on disk.
func writeTestEPUB(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "test.epub")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	// 2 seconds of 8kHz mono silence.
	wav := audio.EncodeWAV(&audio.Clip{
		Data:       make([]byte, 2*8000*2),
		SampleRate: 8000,
		Channels:   1,
	})

	zw := zip.NewWriter(f)
	files := []struct {
		name string
		data []byte
	}{
		{"mimetype", []byte("application/epub+zip")},
		{"META-INF/container.xml", []byte(testContainer)},
		{"OEBPS/content.opf", []byte(testOPF)},
		{"OEBPS/ch1.xhtml", []byte(testChapter)},
		{"OEBPS/ch1.smil", []byte(testSMIL)},
		{"OEBPS/audio/ch1.wav", wav},
	}
	for _, file := range files {
		w, err := zw.Create(file.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(file.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func openTestBook(t *testing.T) *Book {
	t.Helper()
	b, err := Open(writeTestEPUB(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestOpenReadsMetadataAndSpine(t *testing.T) {
	b := openTestBook(t)

	if got := b.Title(); got != "Narrated Test Book" {
		t.Errorf("Title() = %q", got)
	}
	chapters := b.Chapters()
	if len(chapters) != 1 || chapters[0] != "ch1.xhtml" {
		t.Errorf("Chapters() = %v, want [ch1.xhtml]", chapters)
	}
}

func TestFragmentsFromDescriptors(t *testing.T) {
	b := openTestBook(t)

	frags, err := b.Fragments()
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 2 {
		t.Fatalf("got %d fragments, want 2", len(frags))
	}
	if frags[0].Text.Anchor != "s001" || frags[1].Text.Anchor != "s002" {
		t.Errorf("anchors = %q, %q", frags[0].Text.Anchor, frags[1].Text.Anchor)
	}
	if frags[0].Audio != "audio/ch1.wav" {
		t.Errorf("audio resource = %q, want audio/ch1.wav", frags[0].Audio)
	}
	if frags[1].ClipBegin != time.Second || frags[1].ClipEnd != 2*time.Second {
		t.Errorf("clip range = [%v, %v)", frags[1].ClipBegin, frags[1].ClipEnd)
	}
	for i, f := range frags {
		if f.Index != i {
			t.Errorf("fragment %d has Index %d", i, f.Index)
		}
	}

	idx, err := b.Index()
	if err != nil {
		t.Fatal(err)
	}
	if !idx.HasNarration() {
		t.Error("index reports no narration")
	}
}

func TestOpenAudioDecodesAndCaches(t *testing.T) {
	b := openTestBook(t)

	clip, err := b.OpenAudio("audio/ch1.wav")
	if err != nil {
		t.Fatal(err)
	}
	if clip.SampleRate != 8000 || clip.Channels != 1 {
		t.Errorf("format = %d/%d, want 8000/1", clip.SampleRate, clip.Channels)
	}
	if clip.Duration() != 2*time.Second {
		t.Errorf("Duration() = %v, want 2s", clip.Duration())
	}

	again, err := b.OpenAudio("audio/ch1.wav")
	if err != nil {
		t.Fatal(err)
	}
	if again != clip {
		t.Error("second open decoded again instead of using the cache")
	}
}

func TestOpenAudioUnknownResource(t *testing.T) {
	b := openTestBook(t)
	if _, err := b.OpenAudio("audio/missing.mp3"); !errors.Is(err, ErrMissingItem) {
		t.Errorf("OpenAudio() = %v, want ErrMissingItem", err)
	}
}

func TestChapterBlocksKeepAnchors(t *testing.T) {
	b := openTestBook(t)

	blocks, err := b.ChapterBlocks("ch1.xhtml")
	if err != nil {
		t.Fatal(err)
	}
	byAnchor := make(map[string]string)
	for _, blk := range blocks {
		byAnchor[blk.Anchor] = blk.Text
	}
	if byAnchor["c1"] != "Chapter One" {
		t.Errorf("heading block = %q", byAnchor["c1"])
	}
	// The paragraph carries no id of its own; the first inline anchor
	// stands in for it.
	if text := byAnchor["s001"]; !strings.Contains(text, "dark and stormy") {
		t.Errorf("paragraph block = %q", text)
	}
}

func TestChapterForResolvesFragmentRefs(t *testing.T) {
	b := openTestBook(t)

	frags, err := b.Fragments()
	if err != nil {
		t.Fatal(err)
	}
	href, ok := b.ChapterFor(frags[0].Text)
	if !ok || href != "ch1.xhtml" {
		t.Errorf("ChapterFor() = %q, %v", href, ok)
	}
}
