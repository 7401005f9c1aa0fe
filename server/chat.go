package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lookatitude/docintel/chat"
	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/o11y"
)

type chatMessageRequest struct {
	Message string `json:"message"`
}

type deltaFrame struct {
	Delta string `json:"delta"`
}

type chatCompleteFrame struct {
	Message domain.ChatMessage `json:"message"`
}

type chatErrorFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type comparisonSelectionFrame struct {
	Documents     []string `json:"documents"`
	PreSelected   []string `json:"pre_selected"`
	OriginalQuery string   `json:"original_query"`
	Message       string   `json:"message"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	ctx := core.WithSessionID(r.Context(), sessionID)
	o11y.FromContext(ctx).Debug(ctx, "chat message received", "session_id", core.GetSessionID(ctx))

	var req chatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	session, docs, filenames, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	for ev, err := range chat.Respond(ctx, s.chatDeps, session, docs, filenames, req.Message) {
		if err != nil {
			_ = sse.send("error", chatErrorFrame{Type: "internal_error", Message: err.Error()})
			return
		}
		if !s.writeChatEvent(sse, ev) {
			return
		}
		if ev.Kind == chat.EventEnd {
			return
		}
	}
}

func (s *Server) writeChatEvent(sse *sseWriter, ev chat.Event) bool {
	var err error
	switch ev.Kind {
	case chat.EventDelta:
		err = sse.send("delta", deltaFrame{Delta: ev.Delta})
	case chat.EventComplete:
		err = sse.send("complete", chatCompleteFrame{Message: ev.Message})
	case chat.EventError:
		err = sse.send("error", chatErrorFrame{Type: ev.ErrType, Message: ev.ErrMessage, Retryable: ev.Retryable})
	case chat.EventComparisonSelection:
		var frame comparisonSelectionFrame
		if ev.Selection != nil {
			frame = comparisonSelectionFrame{
				Documents:     ev.Selection.Documents,
				PreSelected:   ev.Selection.PreSelected,
				OriginalQuery: ev.Selection.OriginalQuery,
				Message:       ev.Selection.Message,
			}
		}
		err = sse.send("comparison_selection", frame)
	case chat.EventComparisonContext:
		err = sse.send("comparison_context", ev.Comparison)
	case chat.EventEnd:
		err = sse.send("end", struct{}{})
	}
	return err == nil
}
