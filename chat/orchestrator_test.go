package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/retrieval"
	"github.com/lookatitude/docintel/schema"
)

type fakeSessionStore struct{ updated bool }

func (s *fakeSessionStore) GetSession(ctx context.Context, id string) (domain.ChatSession, error) {
	return domain.ChatSession{ID: id}, nil
}
func (s *fakeSessionStore) UpdateSummary(ctx context.Context, sessionID, summaryText string, facts []string, lastSummarized int) error {
	s.updated = true
	return nil
}

type fakeMessageStore struct {
	messages []domain.ChatMessage
}

func (s *fakeMessageStore) AppendMessage(ctx context.Context, m domain.ChatMessage) error {
	s.messages = append(s.messages, m)
	return nil
}
func (s *fakeMessageStore) ListMessages(ctx context.Context, sessionID string, n int) ([]domain.ChatMessage, error) {
	return s.messages, nil
}

type fakeRetriever struct{ docs []schema.Document }

func (r *fakeRetriever) Retrieve(ctx context.Context, query string, opts ...retrieval.Option) ([]schema.Document, error) {
	return r.docs, nil
}

func TestRespond_LowSignalShortCircuitsWithoutRetrievalOrLLM(t *testing.T) {
	messages := &fakeMessageStore{}
	deps := Deps{Messages: messages}
	session := domain.ChatSession{ID: "s1"}

	var events []Event
	for ev, err := range Respond(context.Background(), deps, session, nil, nil, "thanks!") {
		require.NoError(t, err)
		events = append(events, ev)
	}

	require.Len(t, events, 2)
	assert.Equal(t, EventComplete, events[0].Kind)
	assert.Equal(t, EventEnd, events[1].Kind)
	require.Len(t, messages.messages, 2) // user + assistant
}

func TestRespond_GroundedQuestionStreamsAndPersists(t *testing.T) {
	understandingResp := toJSONPayload(t, map[string]any{
		"query_type": "general_qa", "confidence": 0.9, "reformulated_query": "what was revenue?",
	})
	deps := Deps{
		Sessions:           &fakeSessionStore{},
		Messages:           &fakeMessageStore{},
		SummaryModel:       &fakeChatModel{},
		UnderstandingModel: &fakeChatModel{response: understandingResp},
		ChatModel:          &fakeChatModel{response: "Revenue was $5M. [D1:p1]"},
		Retrieval: RetrievalDeps{
			Retriever: &fakeRetriever{docs: []schema.Document{
				schema.NewDocument("c1", "Revenue was $5M.", map[string]any{"document_id": "doc-1", "page": 1}),
			}},
		},
	}
	session := domain.ChatSession{ID: "s1", DocumentIDs: []string{"doc-1"}, CreatedAt: time.Now()}

	var events []Event
	for ev, err := range Respond(context.Background(), deps, session, nil, map[string]string{"doc-1": "10k.pdf"}, "what was the revenue?") {
		require.NoError(t, err)
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventEnd, last.Kind)

	var complete *Event
	for i := range events {
		if events[i].Kind == EventComplete {
			complete = &events[i]
		}
	}
	require.NotNil(t, complete)
	assert.Contains(t, complete.Message.Content, "Revenue was $5M.")
	assert.NotEmpty(t, complete.Message.CitationContext)
}

func TestRespond_EmptyMessageEmitsErrorThenEnd(t *testing.T) {
	deps := Deps{}
	session := domain.ChatSession{ID: "s1"}

	var events []Event
	for ev, err := range Respond(context.Background(), deps, session, nil, nil, "   ") {
		require.NoError(t, err)
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].Kind)
	assert.Equal(t, EventEnd, events[1].Kind)
}
