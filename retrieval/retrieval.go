// Package retrieval implements the hybrid dense+lexical retrieval and
// re-ranking stack (spec §4.4): reciprocal-rank fusion over a vector store
// and a lexical searcher, cross-encoder re-ranking, and context expansion.
// Grounded on the pack's rag/retriever test suite (hybrid_test.go,
// rerank_test.go, crag_test.go) and pkg/retrievers/metrics.go's OpenTelemetry
// wrapping pattern.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lookatitude/docintel/cache"
	"github.com/lookatitude/docintel/embed"
	"github.com/lookatitude/docintel/schema"
	"github.com/lookatitude/docintel/vectorstore"
)

// LexicalSearcher runs a full-text search over chunk content, backing the
// "Lexical" step of the hybrid algorithm (spec §4.4 step 2).
type LexicalSearcher interface {
	Search(ctx context.Context, query string, k int, opts ...vectorstore.SearchOption) ([]schema.Document, error)
}

// Retriever returns the top-k documents relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts ...Option) ([]schema.Document, error)
}

// Options configures a Retrieve call.
type Options struct {
	TopK     int
	Metadata map[string]any
}

// Option mutates Options.
type Option func(*Options)

// WithTopK sets the maximum number of documents to return.
func WithTopK(k int) Option {
	return func(o *Options) { o.TopK = k }
}

// WithMetadata restricts candidates to those whose metadata matches.
func WithMetadata(metadata map[string]any) Option {
	return func(o *Options) { o.Metadata = metadata }
}

// HybridRetriever fuses dense vector search and lexical search results with
// reciprocal rank fusion (spec §4.4 steps 1-3).
type HybridRetriever struct {
	store    vectorstore.VectorStore
	embedder embed.Embedder
	lexical  LexicalSearcher
	rrfK     int

	semanticCache *cache.SemanticCache
}

// HybridOption configures a HybridRetriever at construction time.
type HybridOption func(*HybridRetriever)

// WithHybridRRFK overrides the RRF constant k (default 60). Non-positive
// values are ignored.
func WithHybridRRFK(k int) HybridOption {
	return func(r *HybridRetriever) {
		if k > 0 {
			r.rrfK = k
		}
	}
}

// WithSemanticCache caches fused, unfiltered Retrieve results keyed by the
// query's own embedding, sitting directly behind the embedder so a repeated
// query (the common case for a chat session revisiting the same topic)
// skips both the vector and lexical search. Entries use the underlying
// Cache's default TTL.
func WithSemanticCache(sc *cache.SemanticCache) HybridOption {
	return func(r *HybridRetriever) {
		r.semanticCache = sc
	}
}

// NewHybridRetriever builds a HybridRetriever over the given vector store,
// embedder, and lexical searcher.
func NewHybridRetriever(store vectorstore.VectorStore, embedder embed.Embedder, lexical LexicalSearcher, opts ...HybridOption) *HybridRetriever {
	r := &HybridRetriever{store: store, embedder: embedder, lexical: lexical, rrfK: 60}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Retriever = (*HybridRetriever)(nil)

// Retrieve embeds the query, searches both the vector store and the
// lexical index, and fuses the two ranked lists with RRF.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, opts ...Option) ([]schema.Document, error) {
	o := Options{TopK: 20}
	for _, opt := range opts {
		opt(&o)
	}

	vec, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("hybrid embed: %w", err)
	}

	// A metadata filter scopes candidates to a subset of documents (e.g. the
	// comparison flow's per-document fan-out); caching by embedding alone
	// would return the unfiltered answer to a filtered call, so skip the
	// cache whenever a filter is in play.
	cacheable := r.semanticCache != nil && len(o.Metadata) == 0
	if cacheable {
		if docs, ok := r.cachedDocuments(ctx, vec); ok {
			if o.TopK > 0 && len(docs) > o.TopK {
				docs = docs[:o.TopK]
			}
			return docs, nil
		}
	}

	candidatePool := o.TopK * 2
	var searchOpts []vectorstore.SearchOption
	if len(o.Metadata) > 0 {
		searchOpts = append(searchOpts, vectorstore.WithFilter(o.Metadata))
	}

	vectorDocs, err := r.store.Search(ctx, vec, candidatePool, searchOpts...)
	if err != nil {
		return nil, fmt.Errorf("hybrid vector search: %w", err)
	}

	lexicalDocs, err := r.lexical.Search(ctx, query, candidatePool, searchOpts...)
	if err != nil {
		return nil, fmt.Errorf("hybrid bm25 search: %w", err)
	}

	fused := fuseRRF(r.rrfK, vectorDocs, lexicalDocs)
	if cacheable {
		r.cacheDocuments(ctx, vec, fused)
	}
	if o.TopK > 0 && len(fused) > o.TopK {
		fused = fused[:o.TopK]
	}
	return fused, nil
}

// cachedDocuments returns the fused result previously stored for an
// identical query embedding, if any.
func (r *HybridRetriever) cachedDocuments(ctx context.Context, vec []float32) ([]schema.Document, bool) {
	raw, found, err := r.semanticCache.GetSemantic(ctx, vec, 0)
	if err != nil || !found {
		return nil, false
	}
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	var docs []schema.Document
	if json.Unmarshal([]byte(s), &docs) != nil {
		return nil, false
	}
	return docs, true
}

// cacheDocuments stores a fused result as JSON so it round-trips correctly
// through any Cache backend, including ones (e.g. redis) that re-encode
// stored values as generic any rather than preserving the concrete type.
func (r *HybridRetriever) cacheDocuments(ctx context.Context, vec []float32, docs []schema.Document) {
	b, err := json.Marshal(docs)
	if err != nil {
		return
	}
	_ = r.semanticCache.SetSemantic(ctx, vec, string(b))
}

// fuseRRF combines ranked document lists with reciprocal rank fusion:
// score(d) = sum over lists containing d of 1/(k + rank).
func fuseRRF(k int, lists ...[]schema.Document) []schema.Document {
	scores := make(map[string]float64)
	byID := make(map[string]schema.Document)
	for _, list := range lists {
		for rank, doc := range list {
			scores[doc.ID] += 1.0 / float64(k+rank+1)
			if _, ok := byID[doc.ID]; !ok {
				byID[doc.ID] = doc
			}
		}
	}

	out := make([]schema.Document, 0, len(byID))
	for id, doc := range byID {
		doc.Score = scores[id]
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
