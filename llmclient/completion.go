package llmclient

import (
	"context"
	"time"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/schema"
)

// backoffSchedule is the exponential backoff used by every retrying
// llmclient call, indexed by the attempt that just failed. With maxAttempts
// at 3, Complete waits 2s and then 4s; the 8s entry is not reached.
var backoffSchedule = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// maxAttempts bounds the retry loop at 3 calls in total, so backoffSchedule
// is consulted only after the first and second attempts.
const maxAttempts = 3

// CompletionResult is the outcome of an unstructured completion call: the
// best-effort parsed JSON value, the raw model text it was parsed from, and
// token usage/cost accounting (spec §4.6 step 1).
type CompletionResult struct {
	Parsed  any
	RawText string
	Usage   schema.Usage
	CostUSD float64
}

// maxInputChars bounds prompt size before truncation kicks in (spec §4.6
// "truncate oversize inputs"). Sized generously above typical context
// windows' character-per-token ratio so truncation only engages for
// genuinely oversize inputs, not ordinary prompts.
const maxInputChars = 600_000

// Complete submits prompt (and optional system prompt) to model, parses a
// JSON value out of the response with repair, and retries on retryable
// errors with exponential backoff up to maxAttempts (spec §4.6 step 1).
func Complete(ctx context.Context, model ChatModel, systemPrompt, prompt string, opts ...GenerateOption) (CompletionResult, error) {
	prompt = TruncateToBudget(prompt, maxInputChars)
	systemPrompt = TruncateToBudget(systemPrompt, maxInputChars)

	msgs := buildMessages(systemPrompt, prompt)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ai, err := model.Generate(ctx, msgs, opts...)
		if err == nil {
			var parsed any
			_ = ParseJSON(ai.Text(), &parsed)
			return CompletionResult{
				Parsed:  parsed,
				RawText: ai.Text(),
				Usage:   ai.Usage,
				CostUSD: EstimateCostUSD(model.ModelID(), ai.Usage),
			}, nil
		}
		lastErr = err
		if !core.IsRetryable(err) || attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return CompletionResult{}, ctx.Err()
		case <-time.After(backoffSchedule[attempt]):
		}
	}
	return CompletionResult{}, core.NewError("llmclient.complete", core.ErrLLM, "completion failed after retries", lastErr)
}

func buildMessages(systemPrompt, prompt string) []schema.Message {
	var msgs []schema.Message
	if systemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage{Content: systemPrompt, Cacheable: true})
	}
	msgs = append(msgs, schema.NewHumanMessage(prompt))
	return msgs
}
