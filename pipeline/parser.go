package pipeline

import (
	"context"

	"github.com/lookatitude/docintel/chunker"
	"github.com/lookatitude/docintel/core"
)

// ParserOutput is the parser's full output for one document (spec §6
// "Parser": parse(path, pdf_type) -> ParserOutput).
type ParserOutput struct {
	Text             string
	PageCount        int
	Tables           []chunker.ParsedTable
	ParagraphsByRole []chunker.ParsedParagraph
	KeyValuePairs    []chunker.ParsedKeyValue
	CostUSD          float64
}

// Parser extracts text, layout, tables, and key-value pairs from a source
// document. Concrete implementations live outside this module (OCR/layout
// vendors); the pipeline only depends on this interface, never
// instantiating a parser directly (spec §6 "the core never instantiates
// parsers directly").
type Parser interface {
	Parse(ctx context.Context, path, pdfType string) (ParserOutput, error)
}

// ParserResolver selects a Parser by tier and PDF type (spec §6 "The
// parser is selected by tier and PDF type; a factory resolves this").
type ParserResolver interface {
	Resolve(tier, pdfType string) (Parser, error)
}

// ParserResolverFunc adapts a plain function to ParserResolver.
type ParserResolverFunc func(tier, pdfType string) (Parser, error)

func (f ParserResolverFunc) Resolve(tier, pdfType string) (Parser, error) {
	return f(tier, pdfType)
}

// toParsedDocument converts a ParserOutput into chunker's input shape.
func toParsedDocument(documentID string, out ParserOutput) chunker.ParsedDocument {
	return chunker.ParsedDocument{
		DocumentID: documentID,
		Paragraphs: out.ParagraphsByRole,
		Tables:     out.Tables,
		KeyValues:  out.KeyValuePairs,
	}
}

func wrapParseErr(err error) error {
	return core.NewError("pipeline.ParseTask", core.ErrParse, "document parsing failed", err)
}
