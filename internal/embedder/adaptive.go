package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mkarczewski/bookrag/internal/config"
	"github.com/mkarczewski/bookrag/internal/logger"
	"github.com/mkarczewski/bookrag/pkg/types"
)

// UnitEmbedding pairs a unit ID with its vector.
type UnitEmbedding struct {
	ID     string
	Vector []float32
}

// UnitFailure records a unit that could not be embedded and why.
type UnitFailure struct {
	ID  string
	Err error
}

// Result is the outcome of an EmbedUnits call. Every input unit appears
// exactly once, either in Embeddings or in Failures.
type Result struct {
	Embeddings []UnitEmbedding
	Failures   []UnitFailure
}

// AdaptiveClient batches units for embedding under a descending ladder of
// token ceilings. It starts optimistic at the largest ceiling; when the
// service rejects a request for size, all not-yet-processed units are
// re-packed at the next smaller ceiling. Units already embedded are never
// resubmitted.
type AdaptiveClient struct {
	provider Provider
	cache    *Cache
	ceilings []int
	maxItems int
}

// NewAdaptiveClient wraps provider with adaptive batching. cache may be nil.
func NewAdaptiveClient(provider Provider, cfg config.EmbeddingConfig, cache *Cache) *AdaptiveClient {
	return &AdaptiveClient{
		provider: provider,
		cache:    cache,
		ceilings: cfg.TokenCeilings,
		maxItems: cfg.MaxBatchItems,
	}
}

// Provider exposes the wrapped backend.
func (c *AdaptiveClient) Provider() Provider { return c.provider }

// EmbedUnits embeds all units, adapting batch sizes to the service's
// limits. It only returns an error when ctx is cancelled; per-unit
// problems are reported in Result.Failures.
func (c *AdaptiveClient) EmbedUnits(ctx context.Context, units []types.TextUnit) (*Result, error) {
	res := &Result{}

	pending := make([]types.TextUnit, 0, len(units))
	for _, u := range units {
		if c.cache != nil {
			if v, ok := c.cache.Get(ComputeHash(c.provider.Model(), u.Text)); ok {
				res.Embeddings = append(res.Embeddings, UnitEmbedding{ID: u.ID, Vector: v})
				continue
			}
		}
		pending = append(pending, u)
	}

	for i, ceiling := range c.ceilings {
		if len(pending) == 0 {
			break
		}
		lastCeiling := i == len(c.ceilings)-1
		batches := c.packBatches(pending, ceiling)
		logger.Debug("embedding %d units in %d batches at ceiling %d", len(pending), len(batches), ceiling)

		var carry []types.TextUnit
		for bi, b := range batches {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			vectors, err := c.provider.EmbedBatch(ctx, b.texts)
			if err == nil {
				for j, u := range b.units {
					if c.cache != nil && b.texts[j] == u.Text {
						c.cache.Put(ComputeHash(c.provider.Model(), u.Text), vectors[j])
					}
					res.Embeddings = append(res.Embeddings, UnitEmbedding{ID: u.ID, Vector: vectors[j]})
				}
				continue
			}
			if errors.Is(err, types.ErrTokenLimitExceeded) && !lastCeiling {
				// The ceiling is too optimistic. Everything not yet
				// processed at this ceiling drops to the next one.
				for _, rest := range batches[bi:] {
					carry = append(carry, rest.units...)
				}
				logger.Debug("ceiling %d rejected, re-packing %d units at next ceiling", ceiling, len(carry))
				break
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			for _, u := range b.units {
				res.Failures = append(res.Failures, UnitFailure{ID: u.ID, Err: err})
			}
		}
		pending = carry
	}

	// Ceilings exhausted with units still unprocessed.
	for _, u := range pending {
		res.Failures = append(res.Failures, UnitFailure{
			ID:  u.ID,
			Err: fmt.Errorf("%w: unit rejected at smallest ceiling", types.ErrTokenLimitExceeded),
		})
	}
	return res, nil
}

// EmbedQuery embeds a single query string, consulting the cache first.
func (c *AdaptiveClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := ComputeHash(c.provider.Model(), text)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}
	}
	vectors, err := c.provider.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("service returned %d embeddings for one input", len(vectors))
	}
	if c.cache != nil {
		c.cache.Put(key, vectors[0])
	}
	return vectors[0], nil
}

type unitBatch struct {
	units  []types.TextUnit
	texts  []string
	tokens int
}

// packBatches greedily fills batches so each stays under the token ceiling
// and the item cap. A single unit estimated above the ceiling is truncated
// to fit and sent alone.
func (c *AdaptiveClient) packBatches(units []types.TextUnit, ceiling int) []unitBatch {
	var batches []unitBatch
	var cur unitBatch
	flush := func() {
		if len(cur.units) > 0 {
			batches = append(batches, cur)
			cur = unitBatch{}
		}
	}
	for _, u := range units {
		est := types.EstimateTokens(u.Text)
		if est > ceiling {
			flush()
			batches = append(batches, unitBatch{
				units:  []types.TextUnit{u},
				texts:  []string{truncateToTokens(u.Text, ceiling)},
				tokens: ceiling,
			})
			continue
		}
		if len(cur.units) >= c.maxItems || cur.tokens+est > ceiling {
			flush()
		}
		cur.units = append(cur.units, u)
		cur.texts = append(cur.texts, u.Text)
		cur.tokens += est
	}
	flush()
	return batches
}

// truncateToTokens cuts text to roughly the given token budget at a word
// boundary.
func truncateToTokens(text string, tokens int) string {
	budget := tokens * types.CharsPerToken
	if len(text) <= budget {
		return text
	}
	cut := strings.LastIndexByte(text[:budget], ' ')
	if cut <= 0 {
		cut = budget
	}
	return strings.TrimSpace(text[:cut])
}
