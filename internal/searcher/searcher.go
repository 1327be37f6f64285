// Package searcher answers natural-language queries against the vector
// store: embed the query, rank by cosine similarity, post-filter by book
// metadata. Results for identical requests are cached, and concurrent
// identical requests share one execution.
package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/mkarczewski/bookrag/internal/config"
	"github.com/mkarczewski/bookrag/internal/logger"
	"github.com/mkarczewski/bookrag/internal/store"
	"github.com/mkarczewski/bookrag/pkg/types"
)

// QueryEmbedder embeds a query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Request is one search.
type Request struct {
	Query string
	// TopN caps returned results; zero means the configured default.
	TopN int
	// Level restricts to chapter or paragraph units; empty means both.
	Level types.Level
	// Author and BookTitle are case-insensitive substring filters.
	Author    string
	BookTitle string
	// Language is an exact-match filter (BCP 47 tag as stored).
	Language string
	// NoCache bypasses the result cache.
	NoCache bool
}

// Searcher executes search requests.
type Searcher struct {
	embed QueryEmbedder
	store store.VectorStore
	cfg   config.SearchConfig
	cache *lru.Cache[string, []types.SearchResult]
	group singleflight.Group
}

// New creates a Searcher with a result cache of cacheSize entries.
func New(embed QueryEmbedder, vs store.VectorStore, cfg config.SearchConfig, cacheSize int) (*Searcher, error) {
	cache, err := lru.New[string, []types.SearchResult](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Searcher{embed: embed, store: vs, cfg: cfg, cache: cache}, nil
}

// Search runs the request. Results come back best first; ties keep the
// store's insertion order, so the same request always returns the same
// list.
func (s *Searcher) Search(ctx context.Context, req Request) ([]types.SearchResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if req.Level != "" && !req.Level.Valid() {
		return nil, fmt.Errorf("unknown level %q", req.Level)
	}
	if req.TopN <= 0 {
		req.TopN = s.cfg.DefaultResults
	}
	if req.TopN > s.cfg.MaxResults {
		req.TopN = s.cfg.MaxResults
	}

	key := requestKey(req)
	if !req.NoCache {
		if cached, ok := s.cache.Get(key); ok {
			logger.Debug("search cache hit for %q", req.Query)
			return copyResults(cached), nil
		}
	}

	// Concurrent identical requests collapse into one embedding call and
	// one store query.
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		results, err := s.execute(ctx, req)
		if err != nil {
			return nil, err
		}
		if !req.NoCache {
			s.cache.Add(key, results)
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return copyResults(v.([]types.SearchResult)), nil
}

func (s *Searcher) execute(ctx context.Context, req Request) ([]types.SearchResult, error) {
	vector, err := s.embed.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Substring filters run after ranking, so fetch extra candidates to
	// avoid under-returning when many top hits get filtered out.
	fetch := req.TopN
	if req.Author != "" || req.BookTitle != "" {
		oversample := s.cfg.Oversample
		if oversample < 1 {
			oversample = 1
		}
		fetch = req.TopN * oversample
	}

	hits, err := s.store.Query(ctx, vector, fetch, &store.Filter{
		Level:    req.Level,
		Language: req.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	author := strings.ToLower(req.Author)
	title := strings.ToLower(req.BookTitle)
	results := make([]types.SearchResult, 0, req.TopN)
	for _, h := range hits {
		if author != "" && !strings.Contains(strings.ToLower(h.Record.BookAuthor), author) {
			continue
		}
		if title != "" && !strings.Contains(strings.ToLower(h.Record.BookTitle), title) {
			continue
		}
		results = append(results, types.SearchResult{
			UnitID:        h.Record.ID,
			Level:         h.Record.Level,
			BookKey:       h.Record.BookKey,
			BookTitle:     h.Record.BookTitle,
			BookAuthor:    h.Record.BookAuthor,
			ChapterTitle:  h.Record.ChapterTitle,
			ChapterNumber: h.Record.ChapterNumber,
			Text:          h.Record.Text,
			Score:         h.Score,
		})
		if len(results) == req.TopN {
			break
		}
	}
	return results, nil
}

// requestKey hashes every request field that affects the result set.
func requestKey(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00%s\x00%s\x00%s",
		req.Query, req.TopN, req.Level, strings.ToLower(req.Author),
		strings.ToLower(req.BookTitle), req.Language)
	return hex.EncodeToString(h.Sum(nil))
}

func copyResults(results []types.SearchResult) []types.SearchResult {
	out := make([]types.SearchResult, len(results))
	copy(out, results)
	return out
}
