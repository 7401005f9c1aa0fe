package chat

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/docmatcher"
	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/llmclient"
	"github.com/lookatitude/docintel/retrieval"
	"github.com/lookatitude/docintel/schema"
)

// Deps bundles every collaborator the orchestrator needs to run a single
// turn (spec §4.5).
type Deps struct {
	Sessions           SessionStore
	Messages           MessageStore
	SummaryModel       llmclient.ChatModel // cheap model, step 2
	UnderstandingModel llmclient.ChatModel // cheap model, step 4
	ChatModel          llmclient.ChatModel // the model that streams the answer, step 11
	Retrieval          RetrievalDeps
	Reranker           retrieval.Reranker
}

// Respond runs the full per-message pipeline (spec §4.5 steps 1-12) and
// streams the result as a sequence of Events, terminated by EventEnd
// (spec §6 "Terminal events ... are always followed by end").
func Respond(ctx context.Context, deps Deps, session domain.ChatSession, sessionDocs []docmatcher.Document, filenames map[string]string, rawMessage string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		message, err := Validate(rawMessage)
		if err != nil {
			emitError(yield, "validation_error", err.Error(), false)
			return
		}

		if IsLowSignal(message) {
			msg := domain.ChatMessage{
				ID: uuid.NewString(), SessionID: session.ID, Role: domain.ChatRoleAssistant,
				Content: lowSignalResponse, CreatedAt: time.Now(),
			}
			persistTurn(ctx, deps, session, message, msg)
			if !yield(Event{Kind: EventComplete, Message: msg}, nil) {
				return
			}
			yield(Event{Kind: EventEnd}, nil)
			return
		}

		history, err := LoadHistory(ctx, deps.Sessions, deps.Messages, deps.SummaryModel, session)
		if err != nil {
			emitError(yield, "retrieval_error", err.Error(), core.IsRetryable(err))
			return
		}

		understanding := Understand(ctx, deps.UnderstandingModel, message)

		if chosen, selection, isComparison := DetectComparison(understanding, session.DocumentIDs, sessionDocs); isComparison {
			if selection != nil {
				selection.OriginalQuery = message
				selection.Message = "Which documents would you like to compare?"
				yield(Event{Kind: EventComparisonSelection, Selection: selection}, nil)
				yield(Event{Kind: EventEnd}, nil)
				return
			}

			comparison, err := RunComparisonFlow(ctx, deps.Retrieval, deps.Reranker, understanding.ReformulatedQuery, chosen, filenames)
			if err != nil {
				emitError(yield, "retrieval_error", err.Error(), core.IsRetryable(err))
				return
			}
			if !yield(Event{Kind: EventComparisonContext, Comparison: &comparison.Metadata}, nil) {
				return
			}
			streamAndPersist(ctx, deps, session, history, message, understanding, comparison.AllChunks, filenames, &comparison.Metadata, yield)
			return
		}

		chunks, err := RetrieveContext(ctx, deps.Retrieval, understanding.ReformulatedQuery, understanding.QueryType)
		if err != nil {
			emitError(yield, "retrieval_error", err.Error(), core.IsRetryable(err))
			return
		}
		streamAndPersist(ctx, deps, session, history, message, understanding, chunks, filenames, nil, yield)
	}
}

// streamAndPersist runs steps 8-12: budget enforcement, prompt assembly,
// citation context, streaming, and persistence.
func streamAndPersist(ctx context.Context, deps Deps, session domain.ChatSession, history History, message string, understanding Understanding, chunks []schema.Document, filenames map[string]string, comparison *domain.ComparisonMetadata, yield func(Event, error) bool) {
	recentChars := 0
	for _, m := range history.Verbatim {
		recentChars += len(m.Content)
	}
	trimmedChunks, trimmedSummary := EnforceBudget(chunks, history.SummaryText, recentChars)

	citationCtx := BuildCitationContext(trimmedChunks, filenames)
	prompt := BuildPrompt(trimmedSummary, history.Verbatim, trimmedChunks, session.DocumentIDs, message)

	msgs := []schema.Message{
		schema.SystemMessage{Content: systemPrompt, Cacheable: true},
		schema.NewHumanMessage(prompt),
	}

	var content string
	var usage schema.Usage
	interrupted := false
	for chunk, err := range deps.ChatModel.Stream(ctx, msgs) {
		if err != nil {
			interrupted = true
			break
		}
		content += chunk.Delta
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if chunk.Delta != "" && !yield(Event{Kind: EventDelta, Delta: chunk.Delta}, nil) {
			return
		}
	}

	assistantMsg := domain.ChatMessage{
		ID: uuid.NewString(), SessionID: session.ID, Role: domain.ChatRoleAssistant,
		Content:         content,
		SourceChunkIDs:  chunkIDs(trimmedChunks),
		Usage:           domain.Usage(usage),
		Comparison:      comparison,
		CitationContext: citationCtx,
		Interrupted:     interrupted,
		CreatedAt:       time.Now(),
	}
	persistTurn(ctx, deps, session, message, assistantMsg)

	if interrupted {
		emitError(yield, "llm_error", "stream interrupted before completion", true)
		return
	}
	if !yield(Event{Kind: EventComplete, Message: assistantMsg}, nil) {
		return
	}
	yield(Event{Kind: EventEnd}, nil)
}

// persistTurn appends both the user message and the assistant's reply in
// one logical turn (spec §5 "a user message and its paired assistant
// message are written in a single transaction after streaming completes";
// the underlying store does the transactional work per call).
func persistTurn(ctx context.Context, deps Deps, session domain.ChatSession, userContent string, assistant domain.ChatMessage) {
	if deps.Messages == nil {
		return
	}
	userMsg := domain.ChatMessage{
		ID: uuid.NewString(), SessionID: session.ID, Role: domain.ChatRoleUser,
		Content: userContent, CreatedAt: time.Now(),
	}
	_ = deps.Messages.AppendMessage(ctx, userMsg)
	_ = deps.Messages.AppendMessage(ctx, assistant)
}

func chunkIDs(docs []schema.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func emitError(yield func(Event, error) bool, errType, message string, retryable bool) {
	if !yield(Event{Kind: EventError, ErrType: errType, ErrMessage: message, Retryable: retryable}, nil) {
		return
	}
	yield(Event{Kind: EventEnd}, nil)
}
