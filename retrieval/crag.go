package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lookatitude/docintel/schema"
)

// RelevanceScorer grades how relevant a retrieved document is to a query,
// on a 0.0-1.0 scale. In production this is a cheap LLM call; tests can
// stub it directly.
type RelevanceScorer interface {
	ScoreRelevance(ctx context.Context, query string, doc schema.Document) (float64, error)
}

// WebSearcher is the fallback candidate source used when CRAG judges the
// retrieved set insufficiently relevant.
type WebSearcher interface {
	Search(ctx context.Context, query string, k int) ([]schema.Document, error)
}

// CRAGRetriever implements a corrective-RAG pass: retrieve, grade each
// result's relevance with an LLM, and fall back to a web search when the
// best grade is below a threshold (spec §4.4, corrective retrieval note).
type CRAGRetriever struct {
	inner     Retriever
	scorer    RelevanceScorer
	web       WebSearcher
	threshold float64
}

// CRAGOption configures a CRAGRetriever at construction time.
type CRAGOption func(*CRAGRetriever)

// WithCRAGThreshold overrides the minimum best-of-batch relevance score
// required to skip the web fallback (default 0.5).
func WithCRAGThreshold(threshold float64) CRAGOption {
	return func(r *CRAGRetriever) { r.threshold = threshold }
}

// NewCRAGRetriever wraps inner with a relevance-grading and web-fallback
// pass.
func NewCRAGRetriever(inner Retriever, scorer RelevanceScorer, web WebSearcher, opts ...CRAGOption) *CRAGRetriever {
	r := &CRAGRetriever{inner: inner, scorer: scorer, web: web, threshold: 0.5}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Retriever = (*CRAGRetriever)(nil)

// Retrieve runs the inner retriever, grades each document, and augments
// with web results if the best grade is below threshold.
func (r *CRAGRetriever) Retrieve(ctx context.Context, query string, opts ...Option) ([]schema.Document, error) {
	docs, err := r.inner.Retrieve(ctx, query, opts...)
	if err != nil {
		return nil, fmt.Errorf("crag inner retrieve: %w", err)
	}

	best := 0.0
	for i, doc := range docs {
		score, err := r.scorer.ScoreRelevance(ctx, query, doc)
		if err != nil {
			return nil, fmt.Errorf("crag score relevance: %w", err)
		}
		docs[i].Metadata = withRelevance(doc.Metadata, score)
		if score > best {
			best = score
		}
	}

	if best >= r.threshold || r.web == nil {
		return docs, nil
	}

	o := Options{TopK: 20}
	for _, opt := range opts {
		opt(&o)
	}
	webDocs, err := r.web.Search(ctx, query, o.TopK)
	if err != nil {
		return nil, fmt.Errorf("crag web search: %w", err)
	}
	return append(docs, webDocs...), nil
}

func withRelevance(meta map[string]any, score float64) map[string]any {
	if meta == nil {
		meta = make(map[string]any)
	}
	meta["crag_relevance"] = score
	return meta
}

// ParseRelevanceScore parses a numeric relevance grade out of an LLM
// response that may wrap the number in prose (e.g. "0.8" or "Score: 0.8").
func ParseRelevanceScore(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return clamp01(v), nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r == '.')
	})
	for _, f := range fields {
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			return clamp01(v), nil
		}
	}
	return 0, fmt.Errorf("crag: no numeric score found in %q", raw)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
