// Package inmemory provides a deterministic, hash-based embed.Embedder for
// tests and local development where calling a real embedding provider isn't
// practical — mirroring how the pack's vectorstore/providers/inmemory gives
// the vector store stack a dependency-free default.
package inmemory

import (
	"context"
	"hash/fnv"

	"github.com/lookatitude/docintel/config"
	"github.com/lookatitude/docintel/embed"
)

func init() {
	embed.Register("inmemory", func(cfg config.ProviderConfig) (embed.Embedder, error) {
		dims, _ := config.GetOption[int](cfg, "dimensions")
		if dims == 0 {
			dims = 16
		}
		return New(dims), nil
	})
}

// Embedder produces a deterministic pseudo-embedding by hashing overlapping
// character shingles of the input text into a fixed-size vector. It is not
// semantically meaningful but is stable and fast, which is all tests need.
type Embedder struct {
	dimensions int
}

var _ embed.Embedder = (*Embedder)(nil)

// New creates an Embedder producing vectors of the given dimensionality.
func New(dimensions int) *Embedder {
	return &Embedder{dimensions: dimensions}
}

func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, e.dimensions)
	}
	return out, nil
}

func (e *Embedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return hashEmbed(text, e.dimensions), nil
}

func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func hashEmbed(text string, dims int) []float32 {
	v := make([]float32, dims)
	if len(text) == 0 {
		return v
	}
	shingle := 3
	if len(text) < shingle {
		shingle = len(text)
	}
	for i := 0; i+shingle <= len(text); i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(text[i : i+shingle]))
		v[int(h.Sum32())%dims] += 1
	}
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	inv := float32(1) / sqrt32(norm)
	for i := range v {
		v[i] *= inv
	}
	return v
}

func sqrt32(x float32) float32 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
