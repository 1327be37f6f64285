// Package ledger tracks which books have been indexed and at what content
// fingerprint. The ledger is a single JSON file loaded once per run and
// flushed after every completed book, so an interrupted run loses at most
// the book in flight.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mkarczewski/bookrag/pkg/types"
)

// Entry records one indexed book.
type Entry struct {
	Fingerprint string    `json:"file_hash"`
	Chapters    int       `json:"chapters"`
	Paragraphs  int       `json:"paragraphs"`
	IndexedAt   time.Time `json:"indexed_at"`
	Path        string    `json:"file_path"`
}

type fileFormat struct {
	Books      map[string]Entry `json:"indexed_books"`
	Total      int              `json:"total_indexed"`
	LastUpdate time.Time        `json:"last_update"`
}

// Ledger is the in-memory view of the ledger file. Not safe for concurrent
// use; the indexer serializes access.
type Ledger struct {
	path  string
	books map[string]Entry
}

// New returns an empty ledger that will flush to path.
func New(path string) *Ledger {
	return &Ledger{path: path, books: make(map[string]Entry)}
}

// Load reads the ledger at path. A missing file yields an empty ledger;
// unparseable JSON yields types.ErrLedgerCorrupt, and the caller must not
// proceed with indexing, since silently starting fresh would orphan every
// vector already in the store.
func Load(path string) (*Ledger, error) {
	l := New(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrLedgerCorrupt, path, err)
	}
	if ff.Books != nil {
		l.books = ff.Books
	}
	return l, nil
}

// Get returns the entry for a book key.
func (l *Ledger) Get(key string) (Entry, bool) {
	e, ok := l.books[key]
	return e, ok
}

// SetBook records a freshly indexed book. Flush persists it.
func (l *Ledger) SetBook(key string, e Entry) {
	if e.IndexedAt.IsZero() {
		e.IndexedAt = time.Now().UTC()
	}
	l.books[key] = e
}

// RemoveBook drops a book from the ledger.
func (l *Ledger) RemoveBook(key string) {
	delete(l.books, key)
}

// Keys returns all book keys in sorted order.
func (l *Ledger) Keys() []string {
	keys := make([]string, 0, len(l.books))
	for k := range l.books {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of indexed books.
func (l *Ledger) Len() int { return len(l.books) }

// Stats summarizes the ledger.
func (l *Ledger) Stats() (books, chapters, paragraphs int) {
	for _, e := range l.books {
		books++
		chapters += e.Chapters
		paragraphs += e.Paragraphs
	}
	return books, chapters, paragraphs
}

// Flush writes the ledger atomically: a temp file in the same directory is
// renamed over the target, so a crash mid-write never corrupts the ledger.
func (l *Ledger) Flush() error {
	ff := fileFormat{
		Books:      l.books,
		Total:      len(l.books),
		LastUpdate: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
