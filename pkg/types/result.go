package types

// SearchResult is one ranked hit from the query engine.
type SearchResult struct {
	UnitID        string
	Level         Level
	BookKey       string
	BookTitle     string
	BookAuthor    string
	ChapterTitle  string
	ChapterNumber int
	Text          string
	Score         float64
}

// Preview returns the result text truncated to maxLen characters with an
// ellipsis appended when truncation occurred.
func (r *SearchResult) Preview(maxLen int) string {
	if maxLen <= 0 || len(r.Text) <= maxLen {
		return r.Text
	}
	return r.Text[:maxLen] + "..."
}
