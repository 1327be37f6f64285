// Package indexer orchestrates the pipeline from EPUB files to searchable
// vectors: scan, classify against the ledger, parse, chunk, embed, store.
// One book at a time, each under a watchdog timeout, with the ledger
// flushed after every completed book so progress survives interruption.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkarczewski/bookrag/internal/embedder"
	"github.com/mkarczewski/bookrag/internal/ledger"
	"github.com/mkarczewski/bookrag/internal/logger"
	"github.com/mkarczewski/bookrag/internal/store"
	"github.com/mkarczewski/bookrag/pkg/types"
)

// BookParser turns an EPUB file into a ParsedBook.
type BookParser interface {
	Parse(path string) (*types.ParsedBook, error)
}

// BookChunker splits a parsed book into chapter and paragraph units.
type BookChunker interface {
	ChunkBook(bookKey string, book *types.ParsedBook) (chapters, paragraphs []types.TextUnit)
}

// UnitEmbedder embeds text units, reporting per-unit failures.
type UnitEmbedder interface {
	EmbedUnits(ctx context.Context, units []types.TextUnit) (*embedder.Result, error)
}

// Outcome classifies what happened to one file during a run.
type Outcome string

const (
	OutcomeIndexed  Outcome = "indexed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
)

// FileReport describes the handling of one library file.
type FileReport struct {
	Key        string
	Outcome    Outcome
	Chapters   int
	Paragraphs int
	Err        error
	Duration   time.Duration
}

// Summary is the result of an indexing run.
type Summary struct {
	RunID     string
	Indexed   int
	Skipped   int
	Failed    int
	TimedOut  int
	Removed   int
	Reports   []FileReport
	StartedAt time.Time
	Duration  time.Duration
}

// Options select what a run does.
type Options struct {
	// Force re-indexes files whose fingerprints are unchanged.
	Force bool
	// Books restricts the run to the given book keys.
	Books []string
	// KeepMissing leaves vectors of disappeared files in place.
	KeepMissing bool
}

// Indexer wires the pipeline stages together.
type Indexer struct {
	parser      BookParser
	chunker     BookChunker
	embed       UnitEmbedder
	store       store.VectorStore
	libraryDir  string
	ledgerPath  string
	lockPath    string
	fileTimeout time.Duration
}

// New creates an Indexer.
func New(parser BookParser, chunker BookChunker, embed UnitEmbedder, vs store.VectorStore, libraryDir, ledgerPath, lockPath string, fileTimeout time.Duration) *Indexer {
	return &Indexer{
		parser:      parser,
		chunker:     chunker,
		embed:       embed,
		store:       vs,
		libraryDir:  libraryDir,
		ledgerPath:  ledgerPath,
		lockPath:    lockPath,
		fileTimeout: fileTimeout,
	}
}

type fileResult struct {
	report FileReport
	entry  ledger.Entry
}

// Run executes one indexing pass. It returns an error only for run-level
// problems (lock held, corrupt ledger, unreadable library); per-file
// problems are reported in the Summary.
func (i *Indexer) Run(ctx context.Context, opts Options) (*Summary, error) {
	lock, err := AcquireLock(i.lockPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	led, err := ledger.Load(i.ledgerPath)
	if err != nil {
		return nil, err
	}
	files, err := ledger.Scan(i.libraryDir)
	if err != nil {
		return nil, err
	}
	changes := ledger.Classify(led, files)

	summary := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	start := time.Now()
	defer func() { summary.Duration = time.Since(start) }()

	work := append(append([]ledger.SourceFile{}, changes.New...), changes.Changed...)
	if opts.Force {
		work = append(work, changes.Unchanged...)
	} else {
		for _, f := range changes.Unchanged {
			if selected(opts.Books, f.Key) {
				summary.Skipped++
				summary.Reports = append(summary.Reports, FileReport{Key: f.Key, Outcome: OutcomeSkipped})
			}
		}
	}

	if !opts.KeepMissing && len(opts.Books) == 0 {
		for _, key := range changes.Missing {
			if err := i.store.DeleteBook(ctx, key); err != nil {
				return summary, fmt.Errorf("remove vanished book %s: %w", key, err)
			}
			led.RemoveBook(key)
			summary.Removed++
			logger.Info("removed vanished book %s from index", key)
		}
		if summary.Removed > 0 {
			if err := led.Flush(); err != nil {
				return summary, err
			}
		}
	}

	for _, f := range work {
		if !selected(opts.Books, f.Key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res := i.superviseFile(ctx, f)
		summary.Reports = append(summary.Reports, res.report)
		switch res.report.Outcome {
		case OutcomeIndexed:
			summary.Indexed++
			// The ledger is only touched from this loop, never from the
			// worker goroutine, so an abandoned worker cannot race a
			// later run's bookkeeping.
			led.SetBook(f.Key, res.entry)
			if err := led.Flush(); err != nil {
				return summary, err
			}
		case OutcomeFailed:
			summary.Failed++
			logger.Warn("indexing %s failed: %v", f.Key, res.report.Err)
		case OutcomeTimedOut:
			summary.TimedOut++
			logger.Warn("indexing %s timed out after %s", f.Key, i.fileTimeout)
		}
	}
	return summary, nil
}

func selected(books []string, key string) bool {
	if len(books) == 0 {
		return true
	}
	for _, b := range books {
		if b == key {
			return true
		}
	}
	return false
}

// superviseFile runs processFile under the per-file timeout. On timeout
// the worker goroutine is abandoned, not killed: its context is cancelled
// so network calls unwind, and because it never writes the ledger, the
// worst it can leave behind is idempotent store upserts.
func (i *Indexer) superviseFile(parent context.Context, f ledger.SourceFile) fileResult {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make(chan fileResult, 1)
	start := time.Now()
	go func() {
		results <- i.processFile(ctx, f)
	}()

	timeout := i.fileTimeout
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	select {
	case res := <-results:
		res.report.Duration = time.Since(start)
		return res
	case <-time.After(timeout):
		cancel()
		return fileResult{report: FileReport{
			Key:      f.Key,
			Outcome:  OutcomeTimedOut,
			Err:      fmt.Errorf("no progress after %s", timeout),
			Duration: time.Since(start),
		}}
	case <-parent.Done():
		cancel()
		return fileResult{report: FileReport{
			Key:     f.Key,
			Outcome: OutcomeFailed,
			Err:     parent.Err(),
		}}
	}
}

func (i *Indexer) processFile(ctx context.Context, f ledger.SourceFile) fileResult {
	fail := func(err error) fileResult {
		return fileResult{report: FileReport{Key: f.Key, Outcome: OutcomeFailed, Err: err}}
	}

	book, err := i.parser.Parse(f.Path)
	if err != nil {
		return fail(err)
	}
	chapters, paragraphs := i.chunker.ChunkBook(f.Key, book)
	units := append(append([]types.TextUnit{}, chapters...), paragraphs...)
	logger.Debug("%s: %d chapter units, %d paragraph units", f.Key, len(chapters), len(paragraphs))

	res, err := i.embed.EmbedUnits(ctx, units)
	if err != nil {
		return fail(err)
	}

	byID := make(map[string]types.TextUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	records := make([]store.Record, 0, len(res.Embeddings))
	for _, e := range res.Embeddings {
		u := byID[e.ID]
		records = append(records, store.Record{
			ID:            u.ID,
			BookKey:       u.BookKey,
			BookTitle:     u.BookTitle,
			BookAuthor:    u.BookAuthor,
			ChapterTitle:  u.ChapterTitle,
			ChapterNumber: u.ChapterNumber,
			Level:         u.Level,
			Language:      u.Language,
			TokenEstimate: u.TokenEstimate,
			Text:          u.Text,
			Vector:        e.Vector,
		})
	}
	// Successful vectors are stored even when the book as a whole failed:
	// upserts are idempotent and the retry on the next run reuses them
	// through the embedding cache.
	if err := i.store.UpsertBatch(ctx, records); err != nil {
		return fail(fmt.Errorf("store units: %w", err))
	}

	if len(res.Failures) > 0 {
		first := res.Failures[0]
		return fail(fmt.Errorf("%d of %d units not embedded (first: %s: %w)",
			len(res.Failures), len(units), first.ID, first.Err))
	}

	return fileResult{
		report: FileReport{
			Key:        f.Key,
			Outcome:    OutcomeIndexed,
			Chapters:   len(chapters),
			Paragraphs: len(paragraphs),
		},
		entry: ledger.Entry{
			Fingerprint: f.Fingerprint,
			Chapters:    len(chapters),
			Paragraphs:  len(paragraphs),
			Path:        f.Path,
		},
	}
}

// Clear removes every vector and the ledger, leaving an empty index.
func (i *Indexer) Clear(ctx context.Context) error {
	lock, err := AcquireLock(i.lockPath)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	if err := i.store.DeleteAll(ctx); err != nil {
		return err
	}
	// A corrupt ledger is exactly what clearing is for, so no Load here:
	// an empty ledger simply replaces whatever was on disk.
	return ledger.New(i.ledgerPath).Flush()
}
