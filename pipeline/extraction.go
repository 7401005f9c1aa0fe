package pipeline

import (
	"context"
	"strings"

	"github.com/lookatitude/docintel/chunker"
	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/llmclient"
)

// ExtractionStore persists an extraction run's final Fields/Artifact, used
// by storeResultTask. storage/postgres.ExtractionRepo.Create takes a
// domain.ExtractionRecord, so that repository does not satisfy this
// interface as is.
type ExtractionStore interface {
	Create(ctx context.Context, recordJSON map[string]any, payload Payload) error
}

// NewExtractionCatalog builds the extraction pipeline's stage tasks (spec
// §4.1 "Extraction: parse -> chunk -> summarize -> extract_structured ->
// store_result"), wiring chunker.Chunk and llmclient.Complete against the
// already-built packages; resolver supplies the parser for each document's
// tier/PDF type and store persists the final result.
func NewExtractionCatalog(resolver ParserResolver, summaryModel, extractModel llmclient.ChatModel, store ExtractionStore) Catalog {
	return Catalog{
		domain.StageParse:             parseTask(resolver),
		domain.StageChunk:             chunkTask(),
		domain.StageSummarize:         summarizeTask(summaryModel),
		domain.StageExtractStructured: extractStructuredTask(extractModel),
		domain.StageStoreResult:       storeResultTask(store),
	}
}

func parseTask(resolver ParserResolver) Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		parser, err := resolver.Resolve(p.ParserTier, p.PDFType)
		if err != nil {
			return p, wrapParseErr(err)
		}
		out, err := parser.Parse(ctx, p.DocumentPath, p.PDFType)
		if err != nil {
			return p, wrapParseErr(err)
		}
		if strings.TrimSpace(out.Text) == "" && len(out.ParagraphsByRole) == 0 {
			return p, core.NewError("pipeline.ParseTask", core.ErrParse, "parser returned empty output", nil)
		}
		p.ParserOutput = out
		p.ParsedText = out.Text
		return p, nil
	}
}

func chunkTask() Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		doc := toParsedDocument(p.DocumentID, p.ParserOutput)
		chunks, err := chunker.Chunk(doc)
		if err != nil {
			return p, core.NewError("pipeline.ChunkTask", core.ErrParse, "chunking failed", err)
		}
		p.Chunks = chunks
		return p, nil
	}
}

// summarizeTask produces a short whole-document summary with a cheap model,
// giving the structured-extraction prompt a compact overview alongside the
// raw chunks for documents too large to pass in full.
func summarizeTask(model llmclient.ChatModel) Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		var sb strings.Builder
		for _, c := range p.Chunks {
			sb.WriteString(c.Text)
			sb.WriteString("\n\n")
		}
		budgeted := llmclient.TruncateToBudget(sb.String(), 40_000)

		result, err := llmclient.Complete(ctx, model,
			"Summarize the following document excerpts in 3-5 sentences, preserving key facts and figures.",
			budgeted)
		if err != nil {
			return p, core.NewError("pipeline.SummarizeTask", core.ErrLLM, "summarization failed", err)
		}
		p.Summary = result.RawText
		return p, nil
	}
}

func extractStructuredTask(model llmclient.ChatModel) Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		var sb strings.Builder
		sb.WriteString(p.Summary)
		sb.WriteString("\n\n")
		for _, c := range p.Chunks {
			sb.WriteString(c.Text)
			sb.WriteString("\n\n")
		}
		budgeted := llmclient.TruncateToBudget(sb.String(), 400_000)

		systemPrompt := "Extract structured data from the supplied document excerpts according to the requested schema. Never invent values not present in the text."
		result, err := llmclient.Complete(ctx, model, systemPrompt, budgeted,
			llmclient.WithResponseFormat(llmclient.ResponseFormat{Type: "json_schema", Schema: p.Template.OutputSchema}))
		if err != nil {
			return p, core.NewError("pipeline.ExtractStructuredTask", core.ErrLLM, "structured extraction failed", err)
		}
		fields, ok := result.Parsed.(map[string]any)
		if !ok {
			return p, core.NewError("pipeline.ExtractStructuredTask", core.ErrSchema, "extraction response was not a JSON object", nil)
		}
		p.Fields = fields
		return p, nil
	}
}

func storeResultTask(store ExtractionStore) Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		if err := store.Create(ctx, p.Fields, p); err != nil {
			return p, core.NewError("pipeline.StoreResultTask", core.ErrStorage, "failed to persist extraction record", err)
		}
		return p, nil
	}
}
