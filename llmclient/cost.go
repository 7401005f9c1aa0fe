package llmclient

import "github.com/lookatitude/docintel/schema"

// modelRates is USD per 1,000 tokens, keyed by model id. Cache-read tokens
// are billed at a fraction of the input rate per each provider's published
// pricing; cache-write tokens are billed at a premium over the input rate.
// Complete costs every call through this table; StreamChat leaves the
// computation to its caller, and StructuredOutput.Generate returns only the
// decoded value, with no usage or cost.
type rate struct {
	InputPer1K      float64
	OutputPer1K     float64
	CacheReadPer1K  float64
	CacheWritePer1K float64
}

var modelRates = map[string]rate{
	"claude-sonnet-4-20250514": {InputPer1K: 0.003, OutputPer1K: 0.015, CacheReadPer1K: 0.0003, CacheWritePer1K: 0.00375},
	"claude-opus-4-20250514":   {InputPer1K: 0.015, OutputPer1K: 0.075, CacheReadPer1K: 0.0015, CacheWritePer1K: 0.01875},
	"claude-3-5-haiku-20241022": {InputPer1K: 0.0008, OutputPer1K: 0.004, CacheReadPer1K: 0.00008, CacheWritePer1K: 0.001},
	"amazon.titan-text-premier-v1:0": {InputPer1K: 0.0005, OutputPer1K: 0.0015},
	"anthropic.claude-3-5-sonnet-20241022-v2:0": {InputPer1K: 0.003, OutputPer1K: 0.015},
}

// defaultRate applies to any model id not present in modelRates, so cost
// estimation degrades gracefully for new or unlisted models rather than
// panicking or returning zero.
var defaultRate = rate{InputPer1K: 0.003, OutputPer1K: 0.015}

// EstimateCostUSD computes the dollar cost of one call's token usage for
// the named model.
func EstimateCostUSD(modelID string, u schema.Usage) float64 {
	r, ok := modelRates[modelID]
	if !ok {
		r = defaultRate
	}
	cost := float64(u.PromptTokens) / 1000 * r.InputPer1K
	cost += float64(u.CompletionTokens) / 1000 * r.OutputPer1K
	cost += float64(u.CacheReadTokens) / 1000 * r.CacheReadPer1K
	cost += float64(u.CacheWriteTokens) / 1000 * r.CacheWritePer1K
	return cost
}
