package chat

import (
	"context"
	"encoding/json"
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/llmclient"
	"github.com/lookatitude/docintel/schema"
)

type fakeChatModel struct{ response string }

func (m *fakeChatModel) Generate(ctx context.Context, msgs []schema.Message, opts ...llmclient.GenerateOption) (*schema.AIMessage, error) {
	return schema.NewAIMessage(m.response), nil
}

func (m *fakeChatModel) Stream(ctx context.Context, msgs []schema.Message, opts ...llmclient.GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	return func(yield func(schema.StreamChunk, error) bool) {
		if !yield(schema.StreamChunk{Delta: m.response}, nil) {
			return
		}
		yield(schema.StreamChunk{Usage: &schema.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil)
	}
}

func (m *fakeChatModel) BindTools(tools []schema.ToolDefinition) llmclient.ChatModel { return m }
func (m *fakeChatModel) ModelID() string                                            { return "fake-model" }

func toJSONPayload(t *testing.T, v map[string]any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
