package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lookatitude/docintel/cache"
)

// CachingEmbedder wraps an Embedder with a cache.Cache keyed by the SHA-256
// of each input text, so repeated chunks (re-ingested documents, recurring
// query phrasing) skip the provider round-trip (spec's embedding-cache
// domain stack entry). A cache miss or decode error falls through to the
// wrapped Embedder rather than failing the call.
type CachingEmbedder struct {
	next  Embedder
	cache cache.Cache
	ttl   time.Duration
}

// NewCachingEmbedder wraps next with cache, caching vectors for ttl (zero
// uses the cache's own default TTL).
func NewCachingEmbedder(next Embedder, c cache.Cache, ttl time.Duration) *CachingEmbedder {
	return &CachingEmbedder{next: next, cache: c, ttl: ttl}
}

func (e *CachingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := embedCacheKey(text, e.next.Dimensions())
		cached, ok, err := e.cache.Get(ctx, key)
		if err != nil || !ok {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
			continue
		}
		vec, ok := decodeVector(cached)
		if !ok {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
			continue
		}
		vectors[i] = vec
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := e.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		vectors[i] = fresh[j]
		key := embedCacheKey(missTexts[j], e.next.Dimensions())
		_ = e.cache.Set(ctx, key, fresh[j], e.ttl)
	}
	return vectors, nil
}

func (e *CachingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *CachingEmbedder) Dimensions() int { return e.next.Dimensions() }

func embedCacheKey(text string, dims int) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embed:%d:%s", dims, hex.EncodeToString(sum[:]))
}

// decodeVector recovers a []float32 from a value round-tripped through a
// cache.Cache backend. In-memory backends return the []float32 untouched;
// JSON-backed backends (redis) decode numbers as []any of float64.
func decodeVector(value any) ([]float32, bool) {
	switch v := value.(type) {
	case []float32:
		return v, true
	case []any:
		vec := make([]float32, len(v))
		for i, n := range v {
			f, ok := n.(float64)
			if !ok {
				return nil, false
			}
			vec[i] = float32(f)
		}
		return vec, true
	default:
		return nil, false
	}
}
