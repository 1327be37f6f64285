package types

import "fmt"

// Level is the granularity of a text unit.
type Level string

const (
	// LevelChapter marks units spanning a whole chapter (or a window of one).
	LevelChapter Level = "chapter"
	// LevelParagraph marks units built from a run of consecutive paragraphs.
	LevelParagraph Level = "paragraph"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l == LevelChapter || l == LevelParagraph
}

// CharsPerToken is the heuristic divisor for estimating tokens from
// character count. The estimate is deliberately approximate; size targets
// derived from it are soft bounds, not exact token counts.
const CharsPerToken = 4

// EstimateTokens estimates the number of tokens in text (chars/4).
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

// TextUnit is the atomic object that gets embedded and searched: one chunk
// of book text at a given level, with enough metadata to attribute it back
// to its book and chapter.
type TextUnit struct {
	ID            string
	Level         Level
	Text          string
	TokenEstimate int

	BookKey       string
	BookTitle     string
	BookAuthor    string
	Language      string
	ChapterTitle  string
	ChapterNumber int

	// Ordinal is monotonic per level within one book.
	Ordinal int
}

// UnitID builds the stable identifier for a text unit. It depends only on
// the book key, the level, and the unit's ordinal within that level, so
// re-indexing an unchanged book reproduces identical identifiers and
// upserts overwrite rather than duplicate.
func UnitID(bookKey string, level Level, ordinal int) string {
	return fmt.Sprintf("%s|%s|%04d", bookKey, level, ordinal)
}
