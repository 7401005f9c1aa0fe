package llmclient

import (
	"context"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/internal/jsonutil"
	"github.com/lookatitude/docintel/schema"
)

// StructuredOutput submits messages with a JSON schema derived from T and
// guarantees the returned value unmarshals into T, retrying with a
// self-correction message (appending the invalid response plus a correction
// instruction) up to maxRetries times on unmarshal failure.
type StructuredOutput[T any] struct {
	model      ChatModel
	schema     map[string]any
	maxRetries int
}

// NewStructured builds a StructuredOutput for T, deriving its JSON schema
// via reflection over a zero value of T.
func NewStructured[T any](model ChatModel, opts ...StructuredOption) *StructuredOutput[T] {
	var zero T
	s := &StructuredOutput[T]{
		model:      model,
		schema:     jsonutil.GenerateSchema(zero),
		maxRetries: 2,
	}
	s.applyOptions(opts)
	return s
}

// StructuredOption configures a StructuredOutput.
type StructuredOption func(*structuredConfig)

type structuredConfig struct {
	maxRetries *int
}

// WithMaxRetries overrides the default 2 self-correction retries.
func WithMaxRetries(n int) StructuredOption {
	return func(c *structuredConfig) { c.maxRetries = &n }
}

func (s *StructuredOutput[T]) applyOptions(opts []StructuredOption) {
	var c structuredConfig
	for _, opt := range opts {
		opt(&c)
	}
	if c.maxRetries != nil {
		s.maxRetries = *c.maxRetries
	}
}

// Generate runs the schema-enforced completion with self-correction retry.
func (s *StructuredOutput[T]) Generate(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) (T, error) {
	var zero T
	genOpts := append([]GenerateOption{WithResponseFormat(ResponseFormat{Type: "json_schema", Schema: s.schema})}, opts...)

	working := append([]schema.Message{}, msgs...)
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		ai, err := s.model.Generate(ctx, working, genOpts...)
		if err != nil {
			return zero, core.NewError("llmclient.structured", core.ErrLLM, "structured generate failed", err)
		}

		var out T
		if err := ParseJSON(ai.Text(), &out); err == nil {
			return out, nil
		} else {
			lastErr = err
			working = append(working,
				schema.NewAIMessage(ai.Text()),
				schema.NewHumanMessage("Your previous response was not valid JSON for the requested schema: "+err.Error()+". Return ONLY the corrected JSON object, with no other text."),
			)
		}
	}
	return zero, core.NewError("llmclient.structured", core.ErrSchema, "response did not conform to schema after retries", lastErr)
}
