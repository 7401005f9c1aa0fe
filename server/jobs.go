package server

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lookatitude/docintel/domain"
)

// progressFrame renders a JobEventProgress event (spec §6: status, stage,
// percent, message).
type progressFrame struct {
	Status  string  `json:"status"`
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// errorFrame renders a JobEventError event (spec §6: stage, message, type,
// retryable). domain.JobEvent itself only carries the raw message text, so
// the structured type/retryable fields are recovered from the job's
// persisted state, which pipeline.Runtime.fail populates via RecordError.
type errorFrame struct {
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Retryable bool   `json:"retryable"`
}

// completeFrame renders a JobEventComplete event.
type completeFrame struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	ctx := r.Context()

	events, replay, unsub := s.tracker.Subscribe(jobID)
	defer unsub()

	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	for _, ev := range replay {
		if !s.writeJobEvent(ctx, sse, jobID, ev) {
			return
		}
		if ev.Kind == domain.JobEventEnd {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !s.writeJobEvent(ctx, sse, jobID, ev) {
				return
			}
			if ev.Kind == domain.JobEventEnd {
				return
			}
		}
	}
}

// writeJobEvent renders one tracker event as an SSE frame, returning false
// if the write failed (client disconnected).
func (s *Server) writeJobEvent(ctx context.Context, sse *sseWriter, jobID string, ev domain.JobEvent) bool {
	var err error
	switch ev.Kind {
	case domain.JobEventProgress:
		err = sse.send("progress", progressFrame{
			Status:  string(ev.Kind),
			Stage:   string(ev.Stage),
			Percent: ev.Percent,
			Message: ev.Message,
		})
	case domain.JobEventComplete:
		err = sse.send("complete", completeFrame{Stage: string(ev.Stage), Message: ev.Message})
	case domain.JobEventError:
		frame := errorFrame{Stage: string(ev.Stage), Message: ev.Message}
		if job, getErr := s.jobs.Get(ctx, jobID); getErr == nil {
			frame.Type = job.ErrorType
			frame.Retryable = job.ErrorRetryable
		}
		err = sse.send("error", frame)
	case domain.JobEventEnd:
		err = sse.send("end", struct{}{})
	}
	return err == nil
}
