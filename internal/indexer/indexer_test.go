package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarczewski/bookrag/internal/embedder"
	"github.com/mkarczewski/bookrag/internal/ledger"
	"github.com/mkarczewski/bookrag/internal/store"
	"github.com/mkarczewski/bookrag/pkg/types"
)

type stubParser struct {
	mu     sync.Mutex
	hangOn string        // book title (file base name) that blocks
	hang   chan struct{} // closed to release a hung parse
	calls  []string
	broken map[string]bool
}

func (p *stubParser) Parse(path string) (*types.ParsedBook, error) {
	base := filepath.Base(path)
	p.mu.Lock()
	p.calls = append(p.calls, base)
	broken := p.broken[base]
	hang := p.hangOn == base
	p.mu.Unlock()

	if hang {
		<-p.hang
	}
	if broken {
		return nil, fmt.Errorf("%w: stub refuses %s", types.ErrUnreadableSource, base)
	}
	return &types.ParsedBook{
		Meta: types.BookMeta{Title: base, Author: "Stub Author", Language: "en"},
		Chapters: []types.Chapter{
			{Title: "One", Number: 1, Paragraphs: []string{"First paragraph.", "Second paragraph."}},
		},
	}, nil
}

type stubChunker struct{}

func (stubChunker) ChunkBook(bookKey string, book *types.ParsedBook) (chapters, paragraphs []types.TextUnit) {
	ch := types.TextUnit{
		ID:      types.UnitID(bookKey, types.LevelChapter, 1),
		Level:   types.LevelChapter,
		Text:    book.Chapters[0].Text(),
		BookKey: bookKey, BookTitle: book.Meta.Title, BookAuthor: book.Meta.Author,
		Language: book.Meta.Language, Ordinal: 1,
	}
	pa := ch
	pa.ID = types.UnitID(bookKey, types.LevelParagraph, 1)
	pa.Level = types.LevelParagraph
	return []types.TextUnit{ch}, []types.TextUnit{pa}
}

type stubEmbedder struct {
	mu      sync.Mutex
	batches int
	units   int
	failIDs map[string]bool
}

func (e *stubEmbedder) EmbedUnits(ctx context.Context, units []types.TextUnit) (*embedder.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.batches++
	e.units += len(units)
	failIDs := e.failIDs
	e.mu.Unlock()

	res := &embedder.Result{}
	for _, u := range units {
		if failIDs[u.ID] {
			res.Failures = append(res.Failures, embedder.UnitFailure{
				ID:  u.ID,
				Err: fmt.Errorf("%w: forced", types.ErrServiceUnavailable),
			})
			continue
		}
		res.Embeddings = append(res.Embeddings, embedder.UnitEmbedding{ID: u.ID, Vector: []float32{1, 0}})
	}
	return res, nil
}

type harness struct {
	idx      *Indexer
	parser   *stubParser
	embed    *stubEmbedder
	store    *store.SQLiteStore
	library  string
	ledgerAt string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	library := filepath.Join(dir, "library")
	require.NoError(t, os.MkdirAll(library, 0o755))

	vs, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	h := &harness{
		parser:   &stubParser{hang: make(chan struct{}), broken: map[string]bool{}},
		embed:    &stubEmbedder{},
		store:    vs,
		library:  library,
		ledgerAt: filepath.Join(dir, "ledger.json"),
	}
	h.idx = New(h.parser, stubChunker{}, h.embed, vs, library,
		h.ledgerAt, filepath.Join(dir, "index.lock"), 30*time.Second)
	return h
}

func (h *harness) addBook(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(h.library, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunIndexesNewBooks(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Austen/Emma.epub", "emma v1")
	h.addBook(t, "Tolstoy/War.epub", "war v1")

	sum, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Indexed)
	assert.Equal(t, 0, sum.Failed)
	assert.NotEmpty(t, sum.RunID)

	st, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.Units) // one chapter + one paragraph unit per book
	assert.Equal(t, 2, st.Books)

	led, err := ledger.Load(h.ledgerAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"Austen/Emma", "Tolstoy/War"}, led.Keys())
}

func TestRerunSkipsUnchanged(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Austen/Emma.epub", "emma v1")

	_, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)
	firstBatches := h.embed.batches

	sum, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Indexed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, firstBatches, h.embed.batches, "unchanged book must not be re-embedded")
}

func TestChangedBookReindexed(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Austen/Emma.epub", "emma v1")
	_, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)

	h.addBook(t, "Austen/Emma.epub", "emma v2 with fixed typos")
	sum, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Indexed)

	// Deterministic unit IDs mean the rewrite replaced rows, not added.
	st, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Units)
}

func TestForceReindexesEverything(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Austen/Emma.epub", "emma v1")
	_, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)

	sum, err := h.idx.Run(context.Background(), Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 0, sum.Skipped)
}

func TestVanishedBookRemoved(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Austen/Emma.epub", "emma v1")
	h.addBook(t, "Tolstoy/War.epub", "war v1")
	_, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(h.library, "Tolstoy", "War.epub")))
	sum, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Removed)

	st, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Books)
	led, err := ledger.Load(h.ledgerAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"Austen/Emma"}, led.Keys())
}

func TestUnreadableBookReportedFailed(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Good/Fine.epub", "fine")
	h.addBook(t, "Bad/Mangled.epub", "corrupt")
	h.parser.broken["Mangled.epub"] = true

	sum, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 1, sum.Failed)

	// A failed book never lands in the ledger, so the next run retries it.
	led, err := ledger.Load(h.ledgerAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"Good/Fine"}, led.Keys())
	for _, r := range sum.Reports {
		if r.Outcome == OutcomeFailed {
			assert.True(t, errors.Is(r.Err, types.ErrUnreadableSource))
		}
	}
}

func TestPartialEmbeddingFailureFailsBook(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Austen/Emma.epub", "emma v1")
	h.embed.failIDs = map[string]bool{
		types.UnitID("Austen/Emma", types.LevelParagraph, 1): true,
	}

	sum, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	// The successful chapter vector is stored anyway; the ledger is not
	// updated, so the book retries next run.
	st, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Units)
	led, err := ledger.Load(h.ledgerAt)
	require.NoError(t, err)
	assert.Equal(t, 0, led.Len())
}

func TestStuckBookTimesOutOthersProceed(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Stuck/Frozen.epub", "never finishes")
	h.addBook(t, "Good/Quick.epub", "fine")
	h.parser.hangOn = "Frozen.epub"
	h.idx.fileTimeout = 50 * time.Millisecond
	defer close(h.parser.hang) // release the abandoned worker

	sum, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TimedOut)
	assert.Equal(t, 1, sum.Indexed)

	led, err := ledger.Load(h.ledgerAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"Good/Quick"}, led.Keys())
}

func TestConcurrentRunBlockedByLock(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Austen/Emma.epub", "emma v1")

	lock, err := AcquireLock(filepath.Join(filepath.Dir(h.ledgerAt), "index.lock"))
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	_, err = h.idx.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrIndexLocked))
}

func TestLockReleaseAllowsNextRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.lock")
	lock, err := AcquireLock(path)
	require.NoError(t, err)

	_, err = AcquireLock(path)
	assert.True(t, errors.Is(err, types.ErrIndexLocked))

	require.NoError(t, lock.Release())
	again, err := AcquireLock(path)
	require.NoError(t, err)
	_ = again.Release()
}

func TestSingleBookRun(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Austen/Emma.epub", "emma v1")
	h.addBook(t, "Tolstoy/War.epub", "war v1")

	sum, err := h.idx.Run(context.Background(), Options{Books: []string{"Austen/Emma"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Indexed)

	led, err := ledger.Load(h.ledgerAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"Austen/Emma"}, led.Keys())
}

func TestClear(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Austen/Emma.epub", "emma v1")
	_, err := h.idx.Run(context.Background(), Options{})
	require.NoError(t, err)

	require.NoError(t, h.idx.Clear(context.Background()))

	st, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Units)
	led, err := ledger.Load(h.ledgerAt)
	require.NoError(t, err)
	assert.Equal(t, 0, led.Len())
}

func TestCorruptLedgerAborts(t *testing.T) {
	h := newHarness(t)
	h.addBook(t, "Austen/Emma.epub", "emma v1")
	require.NoError(t, os.WriteFile(h.ledgerAt, []byte("{broken"), 0o644))

	_, err := h.idx.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrLedgerCorrupt))
	assert.Equal(t, 0, h.embed.batches, "no embedding on a corrupt ledger")
}
