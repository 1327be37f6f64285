// Package epub extracts chapters and metadata from EPUB files.
//
// An EPUB is a zip archive with an OCF container descriptor pointing at an
// OPF package document. The package's spine gives the reading order; each
// spine item is an XHTML document that becomes one chapter. Content is
// normalised to plain-text paragraphs before chunking.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/mkarczewski/bookrag/pkg/types"
)

// minChapterChars filters out front-matter spine items (covers, title
// pages) that carry no searchable text.
const minChapterChars = 200

// Parser reads EPUB files into ParsedBook values.
type Parser struct{}

// New creates a Parser.
func New() *Parser {
	return &Parser{}
}

// ocfContainer mirrors META-INF/container.xml.
type ocfContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// opfPackage mirrors the parts of the OPF package document we need.
// Metadata lives under namespaced dc: elements; matching on local names
// keeps this tolerant of both EPUB 2 and 3 packages.
type opfPackage struct {
	Titles      []string  `xml:"metadata>title"`
	Creators    []string  `xml:"metadata>creator"`
	Languages   []string  `xml:"metadata>language"`
	Identifiers []string  `xml:"metadata>identifier"`
	Manifest    []opfItem `xml:"manifest>item"`
	Spine       []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

type opfItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

// Parse reads the EPUB at filePath. Corrupt archives, a missing container
// descriptor, or an unreadable package document all map to
// types.ErrUnreadableSource.
func (p *Parser) Parse(filePath string) (*types.ParsedBook, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", types.ErrUnreadableSource, filePath, err)
	}
	defer func() { _ = zr.Close() }()

	opfPath, err := findPackagePath(&zr.Reader)
	if err != nil {
		return nil, err
	}

	pkgData, err := readZipFile(&zr.Reader, opfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read package document: %v", types.ErrUnreadableSource, err)
	}

	var pkg opfPackage
	if err := xml.Unmarshal(pkgData, &pkg); err != nil {
		return nil, fmt.Errorf("%w: parse package document: %v", types.ErrUnreadableSource, err)
	}
	if len(pkg.Spine) == 0 {
		return nil, fmt.Errorf("%w: package document has no spine", types.ErrUnreadableSource)
	}

	book := &types.ParsedBook{
		Meta: packageMeta(&pkg, filePath),
	}

	manifest := make(map[string]opfItem, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		manifest[item.ID] = item
	}

	opfDir := path.Dir(opfPath)
	number := 0
	for _, ref := range pkg.Spine {
		item, ok := manifest[ref.IDRef]
		if !ok || !isDocumentType(item.MediaType) {
			continue
		}
		data, err := readZipFile(&zr.Reader, resolveHref(opfDir, item.Href))
		if err != nil {
			// A single missing spine document is tolerated; the rest of the
			// book is still usable.
			continue
		}
		paragraphs := extractParagraphs(string(data))
		if totalLen(paragraphs) < minChapterChars {
			continue
		}
		number++
		title := extractTitle(string(data))
		if title == "" {
			title = fmt.Sprintf("Chapter %d", number)
		}
		book.Chapters = append(book.Chapters, types.Chapter{
			Title:      title,
			Number:     number,
			Paragraphs: paragraphs,
		})
	}

	if len(book.Chapters) == 0 {
		return nil, fmt.Errorf("%w: no readable chapters in %s", types.ErrUnreadableSource, filePath)
	}
	return book, nil
}

func findPackagePath(zr *zip.Reader) (string, error) {
	data, err := readZipFile(zr, "META-INF/container.xml")
	if err != nil {
		return "", fmt.Errorf("%w: missing container descriptor", types.ErrUnreadableSource)
	}
	var c ocfContainer
	if err := xml.Unmarshal(data, &c); err != nil || len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return "", fmt.Errorf("%w: invalid container descriptor", types.ErrUnreadableSource)
	}
	return c.Rootfiles[0].FullPath, nil
}

func packageMeta(pkg *opfPackage, filePath string) types.BookMeta {
	meta := types.BookMeta{}
	if len(pkg.Titles) > 0 {
		meta.Title = strings.TrimSpace(pkg.Titles[0])
	}
	if meta.Title == "" {
		base := path.Base(strings.ReplaceAll(filePath, "\\", "/"))
		meta.Title = strings.TrimSuffix(base, path.Ext(base))
	}
	if len(pkg.Creators) > 0 {
		meta.Author = strings.TrimSpace(pkg.Creators[0])
	}
	if meta.Author == "" {
		meta.Author = "Unknown Author"
	}
	if len(pkg.Languages) > 0 {
		meta.Language = strings.TrimSpace(pkg.Languages[0])
	}
	if len(pkg.Identifiers) > 0 {
		meta.Identifier = strings.TrimSpace(pkg.Identifiers[0])
	}
	return meta
}

func isDocumentType(mediaType string) bool {
	switch mediaType {
	case "application/xhtml+xml", "text/html", "application/x-dtbook+xml":
		return true
	}
	return false
}

func resolveHref(opfDir, href string) string {
	if opfDir == "." || opfDir == "" {
		return href
	}
	return path.Join(opfDir, href)
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer func() { _ = rc.Close() }()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("file %s not in archive", name)
}

func totalLen(paragraphs []string) int {
	n := 0
	for _, p := range paragraphs {
		n += len(p)
	}
	return n
}
