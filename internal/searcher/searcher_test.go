package searcher

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarczewski/bookrag/internal/config"
	"github.com/mkarczewski/bookrag/internal/store"
	"github.com/mkarczewski/bookrag/pkg/types"
)

type stubQueryEmbedder struct {
	calls  atomic.Int64
	vector []float32
}

func (e *stubQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return e.vector, nil
}

func searchCfg() config.SearchConfig {
	return config.SearchConfig{DefaultResults: 3, MaxResults: 10, Oversample: 4}
}

func seedStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	recs := []store.Record{
		{ID: "austen|paragraph|0001", BookKey: "Austen/Emma", BookTitle: "Emma", BookAuthor: "Jane Austen",
			Level: types.LevelParagraph, Language: "en", Text: "Emma Woodhouse, handsome, clever, and rich.",
			Vector: []float32{1, 0, 0}},
		{ID: "austen|chapter|0001", BookKey: "Austen/Emma", BookTitle: "Emma", BookAuthor: "Jane Austen",
			Level: types.LevelChapter, Language: "en", Text: "Chapter one of Emma.",
			Vector: []float32{0.95, 0.05, 0}},
		{ID: "tolstoy|paragraph|0001", BookKey: "Tolstoy/War", BookTitle: "War and Peace", BookAuthor: "Leo Tolstoy",
			Level: types.LevelParagraph, Language: "en", Text: "All happy families are at war, or at peace.",
			Vector: []float32{0.9, 0.1, 0}},
		{ID: "tolstoy|paragraph|0002", BookKey: "Tolstoy/War", BookTitle: "War and Peace", BookAuthor: "Leo Tolstoy",
			Level: types.LevelParagraph, Language: "en", Text: "Prince Andrew rode on.",
			Vector: []float32{0.5, 0.5, 0}},
	}
	require.NoError(t, s.UpsertBatch(context.Background(), recs))
	return s
}

func newSearcher(t *testing.T) (*Searcher, *stubQueryEmbedder) {
	t.Helper()
	embed := &stubQueryEmbedder{vector: []float32{1, 0, 0}}
	s, err := New(embed, seedStore(t), searchCfg(), 32)
	require.NoError(t, err)
	return s, embed
}

func TestSearchRanked(t *testing.T) {
	s, _ := newSearcher(t)

	results, err := s.Search(context.Background(), Request{Query: "who is emma"})
	require.NoError(t, err)
	require.Len(t, results, 3) // DefaultResults
	assert.Equal(t, "austen|paragraph|0001", results[0].UnitID)
	assert.Equal(t, "austen|chapter|0001", results[1].UnitID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchEmptyQueryRejected(t *testing.T) {
	s, _ := newSearcher(t)
	_, err := s.Search(context.Background(), Request{Query: "   "})
	assert.Error(t, err)
}

func TestSearchLevelFilter(t *testing.T) {
	s, _ := newSearcher(t)

	results, err := s.Search(context.Background(), Request{Query: "emma", Level: types.LevelChapter})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.LevelChapter, results[0].Level)
}

func TestSearchInvalidLevelRejected(t *testing.T) {
	s, _ := newSearcher(t)
	_, err := s.Search(context.Background(), Request{Query: "emma", Level: types.Level("verse")})
	assert.Error(t, err)
}

func TestSearchAuthorSubstringFilter(t *testing.T) {
	s, _ := newSearcher(t)

	results, err := s.Search(context.Background(), Request{Query: "war", Author: "tolstoy", TopN: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "Leo Tolstoy", r.BookAuthor)
	}
}

func TestSearchTitleSubstringFilter(t *testing.T) {
	s, _ := newSearcher(t)

	results, err := s.Search(context.Background(), Request{Query: "anything", BookTitle: "peace", TopN: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "War and Peace", r.BookTitle)
	}
}

func TestSearchOversamplesForSubstringFilters(t *testing.T) {
	// With TopN=1 and an author filter, the Austen units outrank the
	// Tolstoy ones; only oversampling lets the filter still find a match.
	s, _ := newSearcher(t)

	results, err := s.Search(context.Background(), Request{Query: "war", Author: "tolstoy", TopN: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Leo Tolstoy", results[0].BookAuthor)
}

func TestSearchTopNCapped(t *testing.T) {
	s, _ := newSearcher(t)

	results, err := s.Search(context.Background(), Request{Query: "emma", TopN: 500})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), searchCfg().MaxResults)
}

func TestSearchCacheHit(t *testing.T) {
	s, embed := newSearcher(t)

	first, err := s.Search(context.Background(), Request{Query: "emma"})
	require.NoError(t, err)
	second, err := s.Search(context.Background(), Request{Query: "emma"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), embed.calls.Load(), "second search served from cache")
}

func TestSearchNoCacheBypasses(t *testing.T) {
	s, embed := newSearcher(t)

	_, err := s.Search(context.Background(), Request{Query: "emma", NoCache: true})
	require.NoError(t, err)
	_, err = s.Search(context.Background(), Request{Query: "emma", NoCache: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), embed.calls.Load())
}

func TestSearchCachedResultsAreCopies(t *testing.T) {
	s, _ := newSearcher(t)

	first, err := s.Search(context.Background(), Request{Query: "emma"})
	require.NoError(t, err)
	first[0].Text = "mutated"

	second, err := s.Search(context.Background(), Request{Query: "emma"})
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second[0].Text)
}

func TestSearchDeterministicAcrossRuns(t *testing.T) {
	s, _ := newSearcher(t)

	var runs [][]types.SearchResult
	for i := 0; i < 3; i++ {
		r, err := s.Search(context.Background(), Request{Query: "emma", NoCache: true})
		require.NoError(t, err)
		runs = append(runs, r)
	}
	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, runs[1], runs[2])
}

func TestSearchConcurrentIdenticalRequests(t *testing.T) {
	s, _ := newSearcher(t)

	var wg sync.WaitGroup
	results := make([][]types.SearchResult, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.Search(context.Background(), Request{Query: "emma"})
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()
	for i := 1; i < 8; i++ {
		assert.Equal(t, results[0], results[i])
	}
}
