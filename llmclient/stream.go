package llmclient

import (
	"context"
	"iter"

	"github.com/lookatitude/docintel/schema"
)

// StreamChat truncates oversize inputs and streams incremental text chunks
// from model, ending with a chunk carrying final token usage (spec §4.6
// step 3). Cost is not computed inline since it depends only on the final
// usage chunk; callers run EstimateCostUSD(model.ModelID(), *chunk.Usage)
// once the stream ends.
func StreamChat(ctx context.Context, model ChatModel, systemPrompt, prompt string, opts ...GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	systemPrompt = TruncateToBudget(systemPrompt, maxInputChars)
	prompt = TruncateToBudget(prompt, maxInputChars)
	msgs := buildMessages(systemPrompt, prompt)
	return model.Stream(ctx, msgs, opts...)
}
