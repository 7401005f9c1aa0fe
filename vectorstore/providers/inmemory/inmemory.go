// Package inmemory provides a dependency-free vectorstore.VectorStore
// backed by a slice held in process memory with brute-force similarity
// scoring, grounded on the pack's rag/vectorstore/providers/inmemory test
// suite and vectorstore_test.go's behavioral contract (filter, threshold,
// strategy, k-larger-than-store, delete).
package inmemory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/lookatitude/docintel/config"
	"github.com/lookatitude/docintel/schema"
	"github.com/lookatitude/docintel/vectorstore"
)

func init() {
	vectorstore.Register("inmemory", func(cfg config.ProviderConfig) (vectorstore.VectorStore, error) {
		return New(), nil
	})
}

type entry struct {
	doc       schema.Document
	embedding []float32
}

// Store is a thread-safe, in-memory VectorStore.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

var _ vectorstore.VectorStore = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Add inserts or replaces documents and their embeddings. len(docs) must
// equal len(embeddings).
func (s *Store) Add(_ context.Context, docs []schema.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("vectorstore/inmemory: docs (%d) and embeddings (%d) length mismatch", len(docs), len(embeddings))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range docs {
		s.entries[d.ID] = entry{doc: d, embedding: embeddings[i]}
	}
	return nil
}

// Search returns the k documents most similar to query, after filtering and
// threshold are applied.
func (s *Store) Search(_ context.Context, query []float32, k int, opts ...vectorstore.SearchOption) ([]schema.Document, error) {
	o := vectorstore.SearchOptions{Strategy: vectorstore.Cosine}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   schema.Document
		score float64
	}
	var candidates []scored
	for _, e := range s.entries {
		if !matchesFilter(e.doc.Metadata, o.Filter) {
			continue
		}
		score := score(o.Strategy, query, e.embedding)
		if o.Threshold > 0 && score < o.Threshold {
			continue
		}
		doc := e.doc
		doc.Score = score
		candidates = append(candidates, scored{doc: doc, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]schema.Document, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].doc
	}
	return out, nil
}

// Delete removes documents by id. Unknown ids are ignored.
func (s *Store) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func score(strategy vectorstore.SearchStrategy, a, b []float32) float64 {
	switch strategy {
	case vectorstore.DotProduct:
		return dot(a, b)
	case vectorstore.Euclidean:
		return -euclidean(a, b)
	default:
		return cosine(a, b)
	}
}

func dot(a, b []float32) float64 {
	n := minLen(a, b)
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosine(a, b []float32) float64 {
	n := minLen(a, b)
	var dotP, normA, normB float64
	for i := 0; i < n; i++ {
		dotP += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotP / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclidean(a, b []float32) float64 {
	n := minLen(a, b)
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func minLen(a, b []float32) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}
