package pipeline

import (
	"context"
	"encoding/json"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/llmclient"
	"github.com/lookatitude/docintel/retrieval"
	"github.com/lookatitude/docintel/schema"
)

type fakeSynthesisRetriever struct{}

func (f *fakeSynthesisRetriever) Retrieve(ctx context.Context, query string, opts ...retrieval.Option) ([]schema.Document, error) {
	return []schema.Document{schema.NewDocument("c1", "Revenue grew 10%.", map[string]any{
		"document_id": "doc-1", "page": 1, "section_heading": "Financials",
	})}, nil
}

type fakeFilenames struct{}

func (f *fakeFilenames) Filenames(ctx context.Context, documentIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(documentIDs))
	for _, id := range documentIDs {
		out[id] = id + ".pdf"
	}
	return out, nil
}

type fakeChatModel struct{ response string }

func (m *fakeChatModel) Generate(ctx context.Context, msgs []schema.Message, opts ...llmclient.GenerateOption) (*schema.AIMessage, error) {
	return schema.NewAIMessage(m.response), nil
}
func (m *fakeChatModel) Stream(ctx context.Context, msgs []schema.Message, opts ...llmclient.GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	return func(yield func(schema.StreamChunk, error) bool) {}
}
func (m *fakeChatModel) BindTools(tools []schema.ToolDefinition) llmclient.ChatModel { return m }
func (m *fakeChatModel) ModelID() string                                            { return "fake-model" }

func toJSONPayload(t *testing.T, v map[string]any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestWorkflowSynthesisCatalog_PrepareThenGenerate(t *testing.T) {
	resp := toJSONPayload(t, map[string]any{
		"answer":     "Revenue grew. [D1:p1]",
		"references": []any{"[D1:p1]"},
	})
	model := &fakeChatModel{response: resp}

	catalog := NewWorkflowSynthesisCatalog(&fakeSynthesisRetriever{}, &fakeFilenames{}, model, model)

	p := Payload{
		JobID:       "wf-1",
		DocumentIDs: []string{"doc-1"},
		Template: domain.WorkflowTemplate{
			PromptGenerator: "generic_synthesis",
			OutputSchema:    map[string]any{"type": "object"},
			Retrieval:       []domain.RetrievalSpec{{Key: "overview", Queries: []string{"revenue"}, MaxChunks: 5}},
		},
	}

	p, err := catalog[domain.StagePrepareContext](context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Assembled.ContextText)

	p, err = catalog[domain.StageGenerateArtifact](context.Background(), p)
	require.NoError(t, err)
	assert.False(t, p.Generated.Partial)
	assert.NotEmpty(t, p.Generated.Object)
}
