// Package chunker splits parsed books into embeddable text units at two
// granularities. Chapter units capture broad context; paragraph units
// capture precise passages. Both levels cover the full text of the book,
// so any sentence is retrievable at either granularity.
package chunker

import (
	"strings"

	"github.com/mkarczewski/bookrag/internal/config"
	"github.com/mkarczewski/bookrag/pkg/types"
)

// Chunker produces chapter-level and paragraph-level text units.
type Chunker struct {
	cfg config.ChunkingConfig
}

// New creates a Chunker with the given sizing bounds.
func New(cfg config.ChunkingConfig) *Chunker {
	return &Chunker{cfg: cfg}
}

// ChunkBook splits book into chapter and paragraph units. Unit IDs are
// deterministic: the same book content always yields the same IDs, which
// makes re-indexing an idempotent upsert.
func (c *Chunker) ChunkBook(bookKey string, book *types.ParsedBook) (chapters, paragraphs []types.TextUnit) {
	chapters = c.chapterUnits(bookKey, book)
	paragraphs = c.paragraphUnits(bookKey, book)
	return chapters, paragraphs
}

func (c *Chunker) newUnit(bookKey string, book *types.ParsedBook, level types.Level, ordinal int, ch *types.Chapter, text string) types.TextUnit {
	return types.TextUnit{
		ID:            types.UnitID(bookKey, level, ordinal),
		Level:         level,
		Text:          text,
		TokenEstimate: types.EstimateTokens(text),
		BookKey:       bookKey,
		BookTitle:     book.Meta.Title,
		BookAuthor:    book.Meta.Author,
		Language:      book.Meta.Language,
		ChapterTitle:  ch.Title,
		ChapterNumber: ch.Number,
		Ordinal:       ordinal,
	}
}

// chapterUnits emits one unit per chapter when it fits the chapter budget,
// and a sliding window of overlapping slices otherwise. Chapters below the
// minimum are emitted as-is rather than merged, so unit boundaries always
// align with chapter boundaries.
func (c *Chunker) chapterUnits(bookKey string, book *types.ParsedBook) []types.TextUnit {
	var units []types.TextUnit
	ordinal := 0
	for i := range book.Chapters {
		ch := &book.Chapters[i]
		text := ch.Text()
		if types.EstimateTokens(text) <= c.cfg.ChapterMaxTokens {
			ordinal++
			units = append(units, c.newUnit(bookKey, book, types.LevelChapter, ordinal, ch, text))
			continue
		}
		for _, slice := range slideWindow(text, c.cfg.ChapterMaxTokens, c.cfg.OverlapTokens) {
			ordinal++
			units = append(units, c.newUnit(bookKey, book, types.LevelChapter, ordinal, ch, slice))
		}
	}
	return units
}

// paragraphUnits greedily buffers source paragraphs per chapter until the
// buffer reaches the paragraph minimum, then emits it and seeds the next
// buffer with the trailing words of the emitted unit as overlap. A buffer
// that would overshoot the maximum is flushed before the append, so units
// stay inside the size range. The final partial buffer of each chapter is
// always flushed, so no text is dropped.
func (c *Chunker) paragraphUnits(bookKey string, book *types.ParsedBook) []types.TextUnit {
	var units []types.TextUnit
	ordinal := 0
	for i := range book.Chapters {
		ch := &book.Chapters[i]

		var buf []string
		emit := func(text string) {
			ordinal++
			units = append(units, c.newUnit(bookKey, book, types.LevelParagraph, ordinal, ch, text))
		}
		flush := func() string {
			if len(buf) == 0 {
				return ""
			}
			text := strings.Join(buf, "\n\n")
			emit(text)
			buf = nil
			return text
		}
		wouldExceed := func(p string) bool {
			if len(buf) == 0 {
				return false
			}
			joined := strings.Join(buf, "\n\n") + "\n\n" + p
			return types.EstimateTokens(joined) > c.cfg.ParagraphMaxTokens
		}
		overlapOnly := func() bool {
			return len(buf) == 1 && len(units) > 0 && strings.HasSuffix(units[len(units)-1].Text, buf[0])
		}

		for _, p := range ch.Paragraphs {
			if types.EstimateTokens(p) > c.cfg.ParagraphMaxTokens {
				// A single oversized paragraph gets windowed on its own so
				// no buffered unit blows past the maximum.
				flush()
				for _, slice := range slideWindow(p, c.cfg.ParagraphMaxTokens, c.cfg.OverlapTokens) {
					emit(slice)
				}
				continue
			}
			// Flush before a paragraph that would push the buffer past the
			// maximum, so mid-sequence units stay inside the size range. An
			// overlap-only buffer is dropped instead, since its text is
			// already the tail of the previous unit.
			if wouldExceed(p) {
				if overlapOnly() {
					buf = nil
				} else {
					text := flush()
					if carry := tailWords(text, c.cfg.OverlapTokens); carry != "" {
						buf = []string{carry}
						if wouldExceed(p) {
							buf = nil
						}
					}
				}
			}
			buf = append(buf, p)
			if types.EstimateTokens(strings.Join(buf, "\n\n")) >= c.cfg.ParagraphMinTokens {
				text := flush()
				if carry := tailWords(text, c.cfg.OverlapTokens); carry != "" {
					buf = append(buf, carry)
				}
			}
		}
		// Overlap-only leftovers are discarded; real trailing paragraphs
		// are flushed even when below the minimum.
		if overlapOnly() {
			buf = nil
		}
		flush()
	}
	return units
}

// slideWindow slices text into overlapping word-aligned pieces of at most
// maxTokens each, with roughly overlapTokens shared between neighbours.
func slideWindow(text string, maxTokens, overlapTokens int) []string {
	maxChars := maxTokens * types.CharsPerToken
	overlapChars := overlapTokens * types.CharsPerToken
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 4
	}

	var slices []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			slices = append(slices, strings.TrimSpace(text[start:]))
			break
		}
		// Back up to a word boundary so slices never cut words in half.
		cut := strings.LastIndexByte(text[start:end], ' ')
		if cut > 0 {
			end = start + cut
		}
		slices = append(slices, strings.TrimSpace(text[start:end]))

		// A word-boundary cut can land before the overlap width when the
		// slice has a single early space, so clamp before slicing.
		next := end - overlapChars
		if next < start {
			next = start
		}
		if boundary := strings.IndexByte(text[next:end], ' '); boundary >= 0 {
			next += boundary + 1
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return slices
}

// tailWords returns the trailing whole words of text amounting to roughly
// the given token budget.
func tailWords(text string, tokens int) string {
	if tokens <= 0 || text == "" {
		return ""
	}
	budget := tokens * types.CharsPerToken
	if len(text) <= budget {
		return text
	}
	cut := len(text) - budget
	if boundary := strings.IndexByte(text[cut:], ' '); boundary >= 0 {
		cut += boundary + 1
	}
	if cut >= len(text) {
		return ""
	}
	return text[cut:]
}
