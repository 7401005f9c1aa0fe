package chat

import (
	"context"
	"strings"

	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/llmclient"
)

// summarizeSystemPrompt instructs the cheap model to compress older
// messages into a fact-preserving rolling summary (spec §4.5 step 2
// "preserving key facts").
const summarizeSystemPrompt = `Summarize the following conversation history into a short paragraph plus a
bullet list of key facts a later answer might need (names, numbers, dates,
decisions). Be concise. Do not answer any question, only summarize.`

// History is the loaded conversation state the orchestrator works from:
// the session's cached rolling summary plus the verbatim messages still
// within the window (spec §4.5 step 2).
type History struct {
	SummaryText string
	Verbatim    []domain.ChatMessage
}

// LoadHistory fetches a session's messages and returns its effective
// history, recomputing and caching the rolling summary via summarizer when
// the session's cached summary has fallen stale (spec §4.5 step 2: "reuse
// cached summary if the count hasn't moved past the cached index").
func LoadHistory(ctx context.Context, sessions SessionStore, messages MessageStore, summarizer llmclient.ChatModel, session domain.ChatSession) (History, error) {
	all, err := messages.ListMessages(ctx, session.ID, 0)
	if err != nil {
		return History{}, err
	}

	if !session.NeedsResummarization() || summarizer == nil {
		return History{SummaryText: session.SummaryText, Verbatim: lastN(all, domain.VerbatimThreshold)}, nil
	}

	cutoff := len(all) - domain.VerbatimThreshold
	if cutoff < 0 {
		cutoff = 0
	}
	toFold := all[:cutoff]
	verbatim := all[cutoff:]

	summaryText, facts, err := summarizeMessages(ctx, summarizer, session.SummaryText, toFold)
	if err != nil {
		// A failed resummarization is not fatal to the turn in progress;
		// fall back to the last cached summary rather than losing context.
		return History{SummaryText: session.SummaryText, Verbatim: verbatim}, nil
	}

	if sessions != nil {
		_ = sessions.UpdateSummary(ctx, session.ID, summaryText, facts, cutoff)
	}
	return History{SummaryText: summaryText, Verbatim: verbatim}, nil
}

func summarizeMessages(ctx context.Context, model llmclient.ChatModel, priorSummary string, toFold []domain.ChatMessage) (string, []string, error) {
	var sb strings.Builder
	if priorSummary != "" {
		sb.WriteString("Existing summary:\n")
		sb.WriteString(priorSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("New messages:\n")
	for _, m := range toFold {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	result, err := llmclient.Complete(ctx, model, summarizeSystemPrompt, sb.String())
	if err != nil {
		return "", nil, err
	}

	facts, _ := result.Parsed.([]any)
	var factStrings []string
	for _, f := range facts {
		if s, ok := f.(string); ok {
			factStrings = append(factStrings, s)
		}
	}
	return result.RawText, factStrings, nil
}

func lastN(msgs []domain.ChatMessage, n int) []domain.ChatMessage {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
