package epub

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarczewski/bookrag/pkg/types"
)

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func chapterDoc(title string, paragraphs int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>ignored</title></head><body>")
	fmt.Fprintf(&b, "<h1>%s</h1>", title)
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "<p>Paragraph %d of %s with enough words to register as real prose content in the chapter body.</p>", i+1, title)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func writeTestEPUB(t *testing.T, name string, chapters map[string]string) string {
	t.Helper()

	var manifest, spine strings.Builder
	i := 0
	// Deterministic spine order.
	keys := make([]string, 0, len(chapters))
	for href := range chapters {
		keys = append(keys, href)
	}
	sort.Strings(keys)
	for _, href := range keys {
		i++
		fmt.Fprintf(&manifest, `<item id="c%d" href="%s" media-type="application/xhtml+xml"/>`, i, href)
		fmt.Fprintf(&spine, `<itemref idref="c%d"/>`, i)
	}

	opf := fmt.Sprintf(`<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="2.0">
  <metadata>
    <dc:title>The Test Book</dc:title>
    <dc:creator>Jane Writer</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier>urn:uuid:test-book-1</dc:identifier>
  </metadata>
  <manifest>%s</manifest>
  <spine>%s</spine>
</package>`, manifest.String(), spine.String())

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)

	write := func(name, content string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	write("mimetype", "application/epub+zip")
	write("META-INF/container.xml", containerXML)
	write("OEBPS/content.opf", opf)
	for _, href := range keys {
		write("OEBPS/"+href, chapters[href])
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseValidEPUB(t *testing.T) {
	path := writeTestEPUB(t, "book.epub", map[string]string{
		"ch1.xhtml": chapterDoc("The Beginning", 5),
		"ch2.xhtml": chapterDoc("The Middle", 4),
	})

	book, err := New().Parse(path)
	require.NoError(t, err)

	assert.Equal(t, "The Test Book", book.Meta.Title)
	assert.Equal(t, "Jane Writer", book.Meta.Author)
	assert.Equal(t, "en", book.Meta.Language)
	assert.Equal(t, "urn:uuid:test-book-1", book.Meta.Identifier)

	require.Len(t, book.Chapters, 2)
	assert.Equal(t, "The Beginning", book.Chapters[0].Title)
	assert.Equal(t, 1, book.Chapters[0].Number)
	assert.Len(t, book.Chapters[0].Paragraphs, 6) // heading plus 5 paragraphs
	assert.Equal(t, "The Middle", book.Chapters[1].Title)
	assert.Equal(t, 2, book.Chapters[1].Number)
}

func TestParseSkipsShortFrontMatter(t *testing.T) {
	path := writeTestEPUB(t, "book.epub", map[string]string{
		"ch1.xhtml": "<html><body><p>Cover</p></body></html>",
		"ch2.xhtml": chapterDoc("Real Content", 5),
	})

	book, err := New().Parse(path)
	require.NoError(t, err)
	require.Len(t, book.Chapters, 1)
	assert.Equal(t, "Real Content", book.Chapters[0].Title)
	assert.Equal(t, 1, book.Chapters[0].Number)
}

func TestParseNotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.epub")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip archive"), 0o644))

	_, err := New().Parse(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnreadableSource))
}

func TestParseMissingContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nocontainer.epub")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("mimetype")
	require.NoError(t, err)
	_, err = w.Write([]byte("application/epub+zip"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = New().Parse(path)
	assert.True(t, errors.Is(err, types.ErrUnreadableSource))
}

func TestParseMissingFile(t *testing.T) {
	_, err := New().Parse(filepath.Join(t.TempDir(), "absent.epub"))
	assert.True(t, errors.Is(err, types.ErrUnreadableSource))
}

func TestExtractParagraphs(t *testing.T) {
	doc := `<html><head><style>p { color: red }</style></head>
<body><h2>Title</h2><p>First &amp; second.</p><!-- note --><p>Third
spanning lines.</p></body></html>`

	got := extractParagraphs(doc)
	require.Equal(t, []string{"Title", "First & second.", "Third spanning lines."}, got)
}
