package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// SemanticCache wraps a Cache and keys entries by the hash of an embedding
// vector rather than by raw text, so two call sites that already embedded
// equivalent input (e.g. the same query reaching retrieval twice) share a
// cache entry without either one re-hashing or re-normalizing the source
// text themselves.
type SemanticCache struct {
	cache     Cache
	threshold float64
}

// NewSemanticCache creates a SemanticCache wrapping the given Cache.
// The threshold is clamped to [0, 1] and stored as the default for
// GetSemantic's threshold argument. Lookups match by exact embedding hash,
// so the threshold does not change which entries match.
func NewSemanticCache(cache Cache, threshold float64) *SemanticCache {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	return &SemanticCache{
		cache:     cache,
		threshold: threshold,
	}
}

// GetSemantic looks up the entry stored for an embedding identical to the
// one provided (hashed, not compared by cosine distance — two embeddings
// that merely fall within threshold of each other are not considered the
// same entry). The threshold parameter is accepted for callers that scope
// their own fuzziness decision before calling GetSemantic (e.g. rounding
// or quantizing the embedding first); pass 0 to use the cache's default.
func (sc *SemanticCache) GetSemantic(ctx context.Context, embedding []float32, threshold float64) (any, bool, error) {
	if threshold <= 0 {
		threshold = sc.threshold
	}

	key := embeddingKey(embedding)
	return sc.cache.Get(ctx, key)
}

// SetSemantic stores a value keyed by the hash of its embedding vector.
// The embedding can later be looked up via GetSemantic.
func (sc *SemanticCache) SetSemantic(ctx context.Context, embedding []float32, value any) error {
	key := embeddingKey(embedding)
	return sc.cache.Set(ctx, key, value, 0)
}

// Cache returns the underlying Cache instance.
func (sc *SemanticCache) Cache() Cache {
	return sc.cache
}

// embeddingKey produces a deterministic cache key from an embedding vector
// by hashing the float32 values.
func embeddingKey(embedding []float32) string {
	h := sha256.New()
	for _, v := range embedding {
		// Use fmt to produce a deterministic string representation.
		fmt.Fprintf(h, "%v,", v)
	}
	return fmt.Sprintf("sem:%x", h.Sum(nil))
}
