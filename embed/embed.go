// Package embed defines the embedding provider interface the retrieval
// stack depends on, plus a registry so concrete providers (Bedrock, or an
// in-memory fake for tests) can register themselves via init(), grounded on
// the same registry pattern as llmclient and cache.
package embed

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lookatitude/docintel/config"
)

// Embedder turns text into dense vectors for similarity search.
type Embedder interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle is a convenience wrapper around Embed for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the length of vectors this embedder produces.
	Dimensions() int
}

// Factory constructs an Embedder from a ProviderConfig.
type Factory func(cfg config.ProviderConfig) (Embedder, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a named embedder factory to the global registry.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// New builds an Embedder using the named registered factory.
func New(name string, cfg config.ProviderConfig) (Embedder, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("embed: unknown provider %q (registered: %v)", name, List())
	}
	return f(cfg)
}

// List returns the sorted names of all registered embedding providers.
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
