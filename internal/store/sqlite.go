package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkarczewski/bookrag/pkg/types"
)

// SQLiteStore implements VectorStore on a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ VectorStore = (*SQLiteStore)(nil)

// Open opens (creating if necessary) the store at dbPath and applies
// pending schema migrations.
func Open(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite benefits from single writer

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const upsertSQL = `
INSERT INTO units (
    id, book_key, book_title, book_author, chapter_title, chapter_number,
    level, language, token_estimate, text, vector, dimension
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    book_key = excluded.book_key,
    book_title = excluded.book_title,
    book_author = excluded.book_author,
    chapter_title = excluded.chapter_title,
    chapter_number = excluded.chapter_number,
    level = excluded.level,
    language = excluded.language,
    token_estimate = excluded.token_estimate,
    text = excluded.text,
    vector = excluded.vector,
    dimension = excluded.dimension,
    updated_at = CURRENT_TIMESTAMP
`

// UpsertBatch writes records in one transaction. Records with IDs already
// present are replaced, which is what makes re-indexing idempotent.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.BookKey, r.BookTitle, r.BookAuthor, r.ChapterTitle, r.ChapterNumber,
			string(r.Level), r.Language, r.TokenEstimate, r.Text,
			serializeVector(r.Vector), len(r.Vector),
		)
		if err != nil {
			return fmt.Errorf("upsert unit %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

const recordColumns = `id, book_key, book_title, book_author, chapter_title, chapter_number,
    level, language, token_estimate, text, vector`

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	var level string
	var chapterTitle, language sql.NullString
	var chapterNumber sql.NullInt64
	var blob []byte
	err := rows.Scan(&r.ID, &r.BookKey, &r.BookTitle, &r.BookAuthor, &chapterTitle, &chapterNumber,
		&level, &language, &r.TokenEstimate, &r.Text, &blob)
	if err != nil {
		return r, err
	}
	r.ChapterTitle = chapterTitle.String
	r.ChapterNumber = int(chapterNumber.Int64)
	r.Level = types.Level(level)
	r.Language = language.String
	r.Vector = deserializeVector(blob)
	return r, nil
}

// Query returns the topK nearest records under the filter. With sqlite-vec
// available the distance runs in SQL; otherwise all candidates are ranked
// in Go, which is acceptable at personal-library scale.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	if VectorExtensionAvailable {
		return s.queryOptimized(ctx, vector, topK, filter)
	}
	return s.queryFallback(ctx, vector, topK, filter)
}

func applyFilter(query string, args []interface{}, filter *Filter) (string, []interface{}) {
	if filter == nil {
		return query, args
	}
	if filter.Level != "" {
		query += " AND level = ?"
		args = append(args, string(filter.Level))
	}
	if filter.Language != "" {
		query += " AND language = ?"
		args = append(args, filter.Language)
	}
	return query, args
}

func (s *SQLiteStore) queryOptimized(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	blob := serializeVector(vector)
	query := fmt.Sprintf(`SELECT %s, 1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM units WHERE dimension = ?`, recordColumns)
	args := []interface{}{blob, len(vector)}
	query, args = applyFilter(query, args, filter)
	query += " ORDER BY similarity DESC, rowid ASC LIMIT ?"
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var r Record
		var level string
		var chapterTitle, language sql.NullString
		var chapterNumber sql.NullInt64
		var blob []byte
		var score float64
		err := rows.Scan(&r.ID, &r.BookKey, &r.BookTitle, &r.BookAuthor, &chapterTitle, &chapterNumber,
			&level, &language, &r.TokenEstimate, &r.Text, &blob, &score)
		if err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.ChapterTitle = chapterTitle.String
		r.ChapterNumber = int(chapterNumber.Int64)
		r.Level = types.Level(level)
		r.Language = language.String
		r.Vector = deserializeVector(blob)
		hits = append(hits, Hit{Record: r, Score: score})
	}
	return hits, rows.Err()
}

func (s *SQLiteStore) queryFallback(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	query := fmt.Sprintf("SELECT %s FROM units WHERE dimension = ?", recordColumns)
	args := []interface{}{len(vector)}
	query, args = applyFilter(query, args, filter)
	query += " ORDER BY rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []candidate
	order := 0
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, candidate{
			hit:   Hit{Record: r, Score: cosineSimilarity(vector, r.Vector)},
			order: order,
		})
		order++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	if topK > len(candidates) {
		topK = len(candidates)
	}
	hits := make([]Hit, 0, topK)
	for _, c := range candidates[:topK] {
		hits = append(hits, c.hit)
	}
	return hits, nil
}

// DeleteBook removes all units of a book.
func (s *SQLiteStore) DeleteBook(ctx context.Context, bookKey string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM units WHERE book_key = ?", bookKey)
	if err != nil {
		return fmt.Errorf("delete book %s: %w", bookKey, err)
	}
	return nil
}

// DeleteAll empties the store but keeps the schema.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM units"); err != nil {
		return fmt.Errorf("delete all units: %w", err)
	}
	return nil
}

// Stats reports unit counts by level and the number of distinct books.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COUNT(DISTINCT book_key),
		COALESCE(SUM(CASE WHEN level = 'chapter' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN level = 'paragraph' THEN 1 ELSE 0 END), 0)
		FROM units`).Scan(&st.Units, &st.Books, &st.Chapters, &st.Paragraphs)
	if err != nil {
		return st, fmt.Errorf("store stats: %w", err)
	}
	return st, nil
}
