// Package store persists embedded text units in SQLite and answers
// nearest-neighbour queries over them. Two builds are supported: a CGO
// build using the sqlite-vec extension for in-database similarity, and a
// pure Go build that ranks vectors in process.
package store

import (
	"context"

	"github.com/mkarczewski/bookrag/pkg/types"
)

// Record is one stored text unit with its embedding.
type Record struct {
	ID            string
	BookKey       string
	BookTitle     string
	BookAuthor    string
	ChapterTitle  string
	ChapterNumber int
	Level         types.Level
	Language      string
	TokenEstimate int
	Text          string
	Vector        []float32
}

// Filter restricts a query to exact-match fields. These are pushed down
// into SQL; substring filters (author, title) belong to the searcher.
type Filter struct {
	Level    types.Level
	Language string
}

// Hit is a query match with its cosine similarity score.
type Hit struct {
	Record Record
	Score  float64
}

// Stats summarizes store contents.
type Stats struct {
	Units      int
	Books      int
	Chapters   int
	Paragraphs int
}

// VectorStore is the persistence interface the indexer and searcher use.
type VectorStore interface {
	// UpsertBatch inserts or replaces records by ID in one transaction.
	UpsertBatch(ctx context.Context, records []Record) error
	// Query returns the topK most similar records, best first. Ties keep
	// insertion order, so results are stable across identical runs.
	Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Hit, error)
	// DeleteBook removes every unit belonging to a book key.
	DeleteBook(ctx context.Context, bookKey string) error
	// DeleteAll empties the store.
	DeleteAll(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
