package chat

import (
	"context"

	"github.com/lookatitude/docintel/llmclient"
	"github.com/lookatitude/docintel/retrieval"
)

// confidenceFallbackThreshold is the minimum query-understanding
// confidence the orchestrator trusts; below it, sizing falls back to the
// generic profile (spec §4.5 step 4 "Low confidence falls back to generic
// sizing").
const confidenceFallbackThreshold = 0.5

// understandingSystemPrompt asks the cheap model to classify the query
// into the same query_type vocabulary retrieval.SizingFor keys on (spec
// §4.4, §4.5 step 4).
const understandingSystemPrompt = `Classify the user's question. Respond with JSON:
{"query_type": one of "data_extraction","summarization","entity_lookup","general_qa","comparison",
 "reformulated_query": a clearer standalone restatement of the question,
 "entities": array of document names or identifiers the user mentioned, if any,
 "confidence": a number from 0 to 1,
 "hypothetical_answer": a short hypothetical answer to the question, for retrieval purposes (optional)}`

// Understanding is the structured output of query-understanding (spec §4.5
// step 4).
type Understanding struct {
	QueryType           retrieval.QueryType
	ReformulatedQuery   string
	Entities            []string
	Confidence          float64
	HypotheticalAnswer  string
}

// Understand classifies message with a single cheap LLM call. On LLM
// failure or low confidence it degrades to a general_qa classification
// rather than failing the turn.
func Understand(ctx context.Context, model llmclient.ChatModel, message string) Understanding {
	result, err := llmclient.Complete(ctx, model, understandingSystemPrompt, message)
	if err != nil {
		return Understanding{QueryType: retrieval.QueryGeneralQA, ReformulatedQuery: message, Confidence: 0}
	}

	obj, ok := result.Parsed.(map[string]any)
	if !ok {
		return Understanding{QueryType: retrieval.QueryGeneralQA, ReformulatedQuery: message, Confidence: 0}
	}

	u := Understanding{
		QueryType:          retrieval.QueryType(stringField(obj, "query_type")),
		ReformulatedQuery:  stringField(obj, "reformulated_query"),
		Entities:           stringSliceField(obj, "entities"),
		Confidence:         floatField(obj, "confidence"),
		HypotheticalAnswer: stringField(obj, "hypothetical_answer"),
	}
	if u.ReformulatedQuery == "" {
		u.ReformulatedQuery = message
	}
	if u.Confidence < confidenceFallbackThreshold {
		u.QueryType = retrieval.QueryGeneralQA
	}
	return u
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func floatField(obj map[string]any, key string) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func stringSliceField(obj map[string]any, key string) []string {
	raw, _ := obj[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
