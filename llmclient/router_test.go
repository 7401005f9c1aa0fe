package llmclient

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/schema"
)

type stubModel struct {
	id         string
	generateFn func(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) (*schema.AIMessage, error)
	streamFn   func(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) iter.Seq2[schema.StreamChunk, error]
}

func (s *stubModel) Generate(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) (*schema.AIMessage, error) {
	if s.generateFn != nil {
		return s.generateFn(ctx, msgs, opts...)
	}
	return schema.NewAIMessage(s.id), nil
}

func (s *stubModel) Stream(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	if s.streamFn != nil {
		return s.streamFn(ctx, msgs, opts...)
	}
	return func(yield func(schema.StreamChunk, error) bool) { yield(schema.StreamChunk{Delta: s.id}, nil) }
}

func (s *stubModel) BindTools(tools []schema.ToolDefinition) ChatModel { return s }
func (s *stubModel) ModelID() string                                  { return s.id }

func TestFailoverRouter_Generate_FailsOverOnRetryable(t *testing.T) {
	retryableErr := core.NewError("test", core.ErrProviderDown, "down", nil)
	models := []ChatModel{
		&stubModel{id: "primary", generateFn: func(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) (*schema.AIMessage, error) {
			return nil, retryableErr
		}},
		&stubModel{id: "backup"},
	}

	fr := NewFailoverRouter(models...)
	resp, err := fr.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Content)
}

func TestFailoverRouter_Generate_StopsOnNonRetryable(t *testing.T) {
	nonRetryable := core.NewError("test", core.ErrValidation, "bad request", nil)
	models := []ChatModel{
		&stubModel{id: "failing", generateFn: func(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) (*schema.AIMessage, error) {
			return nil, nonRetryable
		}},
		&stubModel{id: "backup"},
	}

	fr := NewFailoverRouter(models...)
	_, err := fr.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, nonRetryable)
}

func TestFailoverRouter_Generate_AllFail(t *testing.T) {
	retryableErr := core.NewError("test", core.ErrTimeout, "timeout", nil)
	models := []ChatModel{
		&stubModel{id: "a", generateFn: func(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) (*schema.AIMessage, error) {
			return nil, retryableErr
		}},
		&stubModel{id: "b", generateFn: func(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) (*schema.AIMessage, error) {
			return nil, retryableErr
		}},
	}

	fr := NewFailoverRouter(models...)
	_, err := fr.Generate(context.Background(), nil)
	assert.Error(t, err)
}

func TestFailoverRouter_Stream_FailsOver(t *testing.T) {
	retryableErr := core.NewError("test", core.ErrRateLimit, "rate limited", nil)
	models := []ChatModel{
		&stubModel{id: "failing", streamFn: func(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) iter.Seq2[schema.StreamChunk, error] {
			return func(yield func(schema.StreamChunk, error) bool) { yield(schema.StreamChunk{}, retryableErr) }
		}},
		&stubModel{id: "backup", streamFn: func(ctx context.Context, msgs []schema.Message, opts ...GenerateOption) iter.Seq2[schema.StreamChunk, error] {
			return func(yield func(schema.StreamChunk, error) bool) { yield(schema.StreamChunk{Delta: "ok"}, nil) }
		}},
	}

	fr := NewFailoverRouter(models...)
	var deltas []string
	for chunk, err := range fr.Stream(context.Background(), nil) {
		require.NoError(t, err)
		deltas = append(deltas, chunk.Delta)
	}
	assert.Equal(t, []string{"ok"}, deltas)
}

func TestFailoverRouter_ModelID(t *testing.T) {
	fr := NewFailoverRouter(&stubModel{id: "primary"}, &stubModel{id: "backup"})
	assert.Equal(t, "primary", fr.ModelID())
}

func TestFailoverRouter_BindTools(t *testing.T) {
	fr := NewFailoverRouter(&stubModel{id: "primary"})
	bound := fr.BindTools([]schema.ToolDefinition{{Name: "test"}})
	assert.Equal(t, "primary", bound.ModelID())
}

func TestFailoverRouter_EmptyModels_ModelID(t *testing.T) {
	fr := NewFailoverRouter()
	assert.Equal(t, "", fr.ModelID())
}
