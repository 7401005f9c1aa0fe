// Package vectorstore defines the chunk-facing vector search interface and
// a provider registry, grounded on the pack's rag/vectorstore test suite
// (vectorstore_test.go) which exercises exactly this Add/Search/Delete
// shape against an inmemory provider.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lookatitude/docintel/config"
	"github.com/lookatitude/docintel/schema"
)

// SearchStrategy selects the similarity function Search uses.
type SearchStrategy int

const (
	Cosine SearchStrategy = iota
	DotProduct
	Euclidean
)

func (s SearchStrategy) String() string {
	switch s {
	case Cosine:
		return "cosine"
	case DotProduct:
		return "dot_product"
	case Euclidean:
		return "euclidean"
	default:
		return "unknown"
	}
}

// SearchOptions configures a Search call.
type SearchOptions struct {
	Filter    map[string]any
	Threshold float64
	Strategy  SearchStrategy
}

// SearchOption mutates SearchOptions.
type SearchOption func(*SearchOptions)

// WithFilter restricts results to documents whose metadata matches all
// key/value pairs in filter.
func WithFilter(filter map[string]any) SearchOption {
	return func(o *SearchOptions) { o.Filter = filter }
}

// WithThreshold drops results scoring below the given similarity threshold.
func WithThreshold(threshold float64) SearchOption {
	return func(o *SearchOptions) { o.Threshold = threshold }
}

// WithStrategy selects the similarity function used to score candidates.
func WithStrategy(strategy SearchStrategy) SearchOption {
	return func(o *SearchOptions) { o.Strategy = strategy }
}

// VectorStore stores document embeddings and serves nearest-neighbor search.
type VectorStore interface {
	Add(ctx context.Context, docs []schema.Document, embeddings [][]float32) error
	Search(ctx context.Context, query []float32, k int, opts ...SearchOption) ([]schema.Document, error)
	Delete(ctx context.Context, ids []string) error
}

// Factory constructs a VectorStore from a ProviderConfig.
type Factory func(cfg config.ProviderConfig) (VectorStore, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a named vector store factory to the global registry.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// New builds a VectorStore using the named registered factory.
func New(name string, cfg config.ProviderConfig) (VectorStore, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vectorstore: unknown provider %q (registered: %v)", name, List())
	}
	return f(cfg)
}

// List returns the sorted names of all registered vector store providers.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
