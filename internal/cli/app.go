package cli

import (
	"fmt"
	"time"

	"github.com/mkarczewski/bookrag/internal/answerer"
	"github.com/mkarczewski/bookrag/internal/chunker"
	"github.com/mkarczewski/bookrag/internal/config"
	"github.com/mkarczewski/bookrag/internal/embedder"
	"github.com/mkarczewski/bookrag/internal/epub"
	"github.com/mkarczewski/bookrag/internal/indexer"
	"github.com/mkarczewski/bookrag/internal/searcher"
	"github.com/mkarczewski/bookrag/internal/store"
)

const embedCacheSize = 8192

func buildEmbedClient(cfg *config.Config) (*embedder.AdaptiveClient, error) {
	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	cache, err := embedder.NewCache(embedCacheSize)
	if err != nil {
		return nil, err
	}
	provider := embedder.NewOpenAIProvider(cfg.OpenAI, key)
	return embedder.NewAdaptiveClient(provider, cfg.Embedding, cache), nil
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.Open(cfg.StorePath())
}

func buildIndexer(cfg *config.Config, vs *store.SQLiteStore) (*indexer.Indexer, error) {
	if cfg.LibraryDir == "" {
		return nil, fmt.Errorf("no library directory configured; run 'bookrag init <library-dir>' first")
	}
	embed, err := buildEmbedClient(cfg)
	if err != nil {
		return nil, err
	}
	return indexer.New(
		epub.New(),
		chunker.New(cfg.Chunking),
		embed,
		vs,
		cfg.LibraryDir,
		cfg.LedgerPath(),
		cfg.LockPath(),
		time.Duration(cfg.Index.FileTimeoutSecs)*time.Second,
	), nil
}

func buildSearcher(cfg *config.Config, vs *store.SQLiteStore) (*searcher.Searcher, error) {
	embed, err := buildEmbedClient(cfg)
	if err != nil {
		return nil, err
	}
	return searcher.New(embed, vs, cfg.Search, 128)
}

func buildAnswerer(cfg *config.Config) (*answerer.Answerer, error) {
	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	return answerer.New(cfg.OpenAI, key), nil
}
