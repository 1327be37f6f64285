package types

import "strings"

// BookMeta holds the metadata extracted from a book file.
type BookMeta struct {
	Title      string
	Author     string
	Language   string
	Identifier string
}

// Chapter is one chapter of a parsed book: a title, a 1-based ordinal,
// and the chapter body as an ordered sequence of paragraphs.
type Chapter struct {
	Title      string
	Number     int
	Paragraphs []string
}

// Text returns the chapter body with paragraphs joined by blank lines.
func (c *Chapter) Text() string {
	return strings.Join(c.Paragraphs, "\n\n")
}

// WordCount returns the number of whitespace-separated words in the chapter.
func (c *Chapter) WordCount() int {
	n := 0
	for _, p := range c.Paragraphs {
		n += len(strings.Fields(p))
	}
	return n
}

// ParsedBook is the output of the format parser: book metadata plus the
// spine-ordered chapters. It lives only for the duration of chunking.
type ParsedBook struct {
	Meta     BookMeta
	Chapters []Chapter
}
