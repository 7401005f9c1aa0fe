// Package llmclient provides the completion surface every downstream
// consumer (workflow generation, chat orchestration, query understanding)
// goes through: unstructured completion with JSON repair, schema-enforced
// structured output, and streaming chat, all backed by a provider registry
// in the same Register/New/List shape as cache, embed, and vectorstore.
// Uses the same ChatModel interface shape (iter.Seq2 streaming,
// structured-output retry loop, failover router) generalized to docintel's
// cost/caching/truncation requirements.
package llmclient

import (
	"context"
	"iter"
	"strings"

	"github.com/lookatitude/docintel/config"
	"github.com/lookatitude/docintel/schema"
)

// ChatModel is the capability every provider implements: single-shot
// generation, incremental streaming, tool binding, and a model identifier.
type ChatModel interface {
	Generate(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) (*schema.AIMessage, error)
	Stream(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) iter.Seq2[schema.StreamChunk, error]
	BindTools(tools []schema.ToolDefinition) ChatModel
	ModelID() string
}

// Factory builds a ChatModel from provider configuration.
type Factory func(cfg config.ProviderConfig) (ChatModel, error)

var registry = map[string]Factory{}

// Register adds a named provider factory. Called from each provider
// package's init().
func Register(name string, f Factory) {
	registry[name] = f
}

// New builds a ChatModel for the named, registered provider.
func New(name string, cfg config.ProviderConfig) (ChatModel, error) {
	f, ok := registry[name]
	if !ok {
		return nil, errUnknownProvider(name)
	}
	return f(cfg)
}

// List returns the names of all registered providers.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// truncationMarker is inserted between the kept head and tail when an input
// is truncated.
const truncationMarker = "\n\n[... content truncated ...]\n\n"

// TruncateToBudget keeps a head of 80% of maxChars and a tail of 20% of
// maxChars when text exceeds maxChars, joined by an explicit truncation
// marker. Complete and StreamChat apply this to oversize inputs;
// StructuredOutput.Generate sends its messages untruncated.
func TruncateToBudget(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	headLen := int(float64(maxChars) * 0.8)
	tailLen := maxChars - headLen
	if headLen <= 0 || tailLen <= 0 || headLen+tailLen >= len(text) {
		return text
	}
	head := text[:headLen]
	tail := text[len(text)-tailLen:]
	var b strings.Builder
	b.Grow(len(head) + len(truncationMarker) + len(tail))
	b.WriteString(head)
	b.WriteString(truncationMarker)
	b.WriteString(tail)
	return b.String()
}
