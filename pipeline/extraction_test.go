package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/chunker"
	"github.com/lookatitude/docintel/domain"
)

type fakeParser struct{ output ParserOutput }

func (f *fakeParser) Parse(ctx context.Context, path, pdfType string) (ParserOutput, error) {
	return f.output, nil
}

type fakeResolver struct{ parser Parser }

func (f *fakeResolver) Resolve(tier, pdfType string) (Parser, error) { return f.parser, nil }

type fakeExtractionStore struct {
	saved map[string]any
}

func (s *fakeExtractionStore) Create(ctx context.Context, fields map[string]any, p Payload) error {
	s.saved = fields
	return nil
}

func TestParseTask_PopulatesParsedOutput(t *testing.T) {
	resolver := &fakeResolver{parser: &fakeParser{output: ParserOutput{
		Text: "hello world",
		ParagraphsByRole: []chunker.ParsedParagraph{
			{Role: "sectionHeading", Text: "Intro", Page: 1},
			{Role: "paragraph", Text: "hello world", Page: 1},
		},
	}}}

	task := parseTask(resolver)
	p, err := task(context.Background(), Payload{DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", p.ParsedText)
	assert.Len(t, p.ParserOutput.ParagraphsByRole, 2)
}

func TestParseTask_EmptyOutputIsParseError(t *testing.T) {
	resolver := &fakeResolver{parser: &fakeParser{output: ParserOutput{}}}
	task := parseTask(resolver)
	_, err := task(context.Background(), Payload{DocumentID: "doc-1"})
	require.Error(t, err)
}

func TestChunkTask_ProducesChunksFromParsedDocument(t *testing.T) {
	task := chunkTask()
	p := Payload{
		DocumentID: "doc-1",
		ParserOutput: ParserOutput{
			ParagraphsByRole: []chunker.ParsedParagraph{
				{Role: "sectionHeading", Text: "Intro", Page: 1},
				{Role: "paragraph", Text: "hello world", Page: 1},
			},
		},
	}
	p, err := task(context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Chunks)
}

func TestExtractStructuredTask_ParsesSchemaConstrainedResponse(t *testing.T) {
	resp := map[string]any{"total": 42.0}
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	model := &fakeChatModel{response: string(b)}

	task := extractStructuredTask(model)
	p := Payload{
		Chunks:   []domain.Chunk{{Text: "Total: 42"}},
		Template: domain.WorkflowTemplate{OutputSchema: map[string]any{"type": "object"}},
	}
	p, err = task(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 42.0, p.Fields["total"])
}

func TestStoreResultTask_PersistsFields(t *testing.T) {
	store := &fakeExtractionStore{}
	task := storeResultTask(store)
	_, err := task(context.Background(), Payload{Fields: map[string]any{"a": 1.0}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, store.saved["a"])
}
