package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedEmbedder memoizes embeddings per text. Only the misses of a call are sent to
// the wrapped embedder.
type CachedEmbedder struct {
	next  Embedder
	cache *cache.Cache
}

func NewCachedEmbedder(next Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProvider, len(vecs), len(missing))
	}
	for j, v := range vecs {
		c.cache.Set(missing[j], v, cache.DefaultExpiration)
		out[missingIdx[j]] = v
	}
	return out, nil
}
