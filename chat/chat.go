// Package chat implements the streaming chat orchestrator (spec §4.5): the
// 12-step per-message pipeline (validation, rolling summarization,
// low-signal short-circuit, query understanding, comparison routing,
// hybrid retrieval, context expansion, budget enforcement, prompt
// assembly, citation context, streaming, persistence) and the
// per-document concurrent comparison flow (§4.5.1). Grounded on
// llmclient.Complete/ChatModel.Stream for the LLM surface, retrieval's
// hybrid+rerank+expand stack for grounding, and engine/context's
// metadata-normalization conventions for citation tokens.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
)

// maxMessageLength is the clamp applied to an over-long user message
// rather than rejecting it outright (spec §4.5 step 1 "clamp out-of-range
// parameters to defaults").
const maxMessageLength = 8_000

// ErrEmptyMessage is returned by Validate for a blank or whitespace-only
// message (spec §4.5 step 1 "reject empty messages").
var ErrEmptyMessage = errors.New("chat: message is empty")

// Validate enforces spec §4.5 step 1: reject empty messages, clamp an
// over-long message to maxMessageLength.
func Validate(message string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", core.NewError("chat.Validate", core.ErrValidation, ErrEmptyMessage.Error(), ErrEmptyMessage)
	}
	if len(trimmed) > maxMessageLength {
		trimmed = trimmed[:maxMessageLength]
	}
	return trimmed, nil
}

// SessionStore is the minimal session persistence surface the orchestrator
// needs (storage/postgres.ChatRepo satisfies it).
type SessionStore interface {
	GetSession(ctx context.Context, id string) (domain.ChatSession, error)
	UpdateSummary(ctx context.Context, sessionID, summaryText string, facts []string, lastSummarized int) error
}

// MessageStore is the minimal message persistence surface the orchestrator
// needs (storage/postgres.ChatRepo satisfies it).
type MessageStore interface {
	AppendMessage(ctx context.Context, m domain.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string, n int) ([]domain.ChatMessage, error)
}

// EventKind identifies one line of the chat SSE stream (spec §6).
type EventKind string

const (
	EventDelta               EventKind = "delta"
	EventComplete            EventKind = "complete"
	EventError               EventKind = "error"
	EventComparisonSelection EventKind = "comparison_selection"
	EventComparisonContext   EventKind = "comparison_context"
	EventEnd                 EventKind = "end"
)

// Event is one emitted line of a chat response stream.
type Event struct {
	Kind       EventKind
	Delta      string
	Message    domain.ChatMessage
	Selection  *SelectionRequest
	Comparison *domain.ComparisonMetadata
	ErrType    string
	ErrMessage string
	Retryable  bool
}

// SelectionRequest is the comparison_selection event payload (spec §4.5
// step 5): the client must pick which documents to compare.
type SelectionRequest struct {
	Documents       []string // all candidate document ids shown to the user
	PreSelected     []string // first 3 pre-checked
	OriginalQuery   string
	Message         string
}
