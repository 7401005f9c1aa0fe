package llmclient

import (
	"context"
	"iter"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/schema"
)

// FailoverRouter tries each model in order, falling through to the next on a
// retryable error (for example [Anthropic, Bedrock]). cmd/docintel does not
// construct one: it calls the primary and fallback models directly.
type FailoverRouter struct {
	models []ChatModel
}

// NewFailoverRouter builds a router that tries models in the given order.
func NewFailoverRouter(models ...ChatModel) *FailoverRouter {
	return &FailoverRouter{models: models}
}

// Generate tries each model in order, returning the first success. A
// non-retryable error from a model aborts the chain immediately rather than
// falling through, since retrying the same failure class on another backend
// rarely helps and masks the real error.
func (r *FailoverRouter) Generate(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) (*schema.AIMessage, error) {
	var lastErr error
	for _, model := range r.models {
		ai, err := model.Generate(ctx, msgs, opts...)
		if err == nil {
			return ai, nil
		}
		lastErr = err
		if !core.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, core.NewError("llmclient.failover", core.ErrLLM, "all models failed", lastErr)
}

// Stream tries each model's stream in order, restarting with the next model
// if the first error encountered in the stream is retryable.
func (r *FailoverRouter) Stream(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	return func(yield func(schema.StreamChunk, error) bool) {
		var lastErr error
		for _, model := range r.models {
			failed := false
			for chunk, err := range model.Stream(ctx, msgs, opts...) {
				if err != nil {
					lastErr = err
					failed = true
					break
				}
				if !yield(chunk, nil) {
					return
				}
			}
			if !failed {
				return
			}
			if !core.IsRetryable(lastErr) {
				yield(schema.StreamChunk{}, lastErr)
				return
			}
		}
		yield(schema.StreamChunk{}, core.NewError("llmclient.failover", core.ErrLLM, "all models failed", lastErr))
	}
}

// BindTools returns a new router with tools bound on every underlying model.
func (r *FailoverRouter) BindTools(tools []schema.ToolDefinition) ChatModel {
	bound := make([]ChatModel, len(r.models))
	for i, m := range r.models {
		bound[i] = m.BindTools(tools)
	}
	return &FailoverRouter{models: bound}
}

// ModelID returns the primary model's identifier.
func (r *FailoverRouter) ModelID() string {
	if len(r.models) == 0 {
		return ""
	}
	return r.models[0].ModelID()
}
