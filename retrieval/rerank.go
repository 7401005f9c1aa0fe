package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/lookatitude/docintel/schema"
)

// Reranker scores a query against a batch of candidate documents with a
// cross-encoder (or any listwise scorer), returning one score per document
// in the same order they were given.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []schema.Document) ([]float64, error)
}

// RerankRetriever re-scores an inner retriever's candidates with a
// cross-encoder and truncates to the top N (spec §4.4 step 4).
type RerankRetriever struct {
	inner    Retriever
	reranker Reranker
	topN     int
}

// RerankOption configures a RerankRetriever at construction time.
type RerankOption func(*RerankRetriever)

// WithRerankTopN sets how many re-ranked documents to keep. Non-positive
// values are ignored (all candidates are kept).
func WithRerankTopN(n int) RerankOption {
	return func(r *RerankRetriever) {
		if n > 0 {
			r.topN = n
		}
	}
}

// NewRerankRetriever wraps inner with a cross-encoder re-ranking pass.
func NewRerankRetriever(inner Retriever, reranker Reranker, opts ...RerankOption) *RerankRetriever {
	r := &RerankRetriever{inner: inner, reranker: reranker}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Retriever = (*RerankRetriever)(nil)

// Retrieve fetches candidates from the inner retriever, re-scores them with
// the cross-encoder, sorts descending by the new score, and truncates to
// topN (or to the caller's requested TopK, whichever is smaller).
func (r *RerankRetriever) Retrieve(ctx context.Context, query string, opts ...Option) ([]schema.Document, error) {
	o := Options{TopK: 20}
	for _, opt := range opts {
		opt(&o)
	}

	candidates, err := r.inner.Retrieve(ctx, query, opts...)
	if err != nil {
		return nil, fmt.Errorf("rerank inner retrieve: %w", err)
	}
	if len(candidates) == 0 {
		return candidates, nil
	}

	scores, err := r.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("rerank: got %d scores for %d candidates", len(scores), len(candidates))
	}

	for i := range candidates {
		candidates[i].Score = scores[i]
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	limit := o.TopK
	if r.topN > 0 && (limit <= 0 || r.topN < limit) {
		limit = r.topN
	}
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	return candidates, nil
}
