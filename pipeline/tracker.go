package pipeline

import (
	"sync"

	"github.com/lookatitude/docintel/domain"
)

// Tracker fans out a job's progress events to any number of subscribers and
// remembers the current snapshot so a reconnecting subscriber is caught up
// immediately rather than waiting for the next event (spec §4.1 "Progress
// streaming": idempotent, replays the current snapshot on reconnect).
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]*jobStream
}

type jobStream struct {
	mu       sync.Mutex
	snapshot []domain.JobEvent
	ended    bool
	subs     map[chan domain.JobEvent]struct{}
}

// NewTracker constructs an empty in-process Tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*jobStream)}
}

func (t *Tracker) stream(jobID string) *jobStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.jobs[jobID]
	if !ok {
		s = &jobStream{subs: make(map[chan domain.JobEvent]struct{})}
		t.jobs[jobID] = s
	}
	return s
}

// Emit appends ev to jobID's snapshot and delivers it to every currently
// subscribed channel. complete and error events are always followed by an
// end event by the runtime, never by Emit itself, so Emit does not special
// case JobEventEnd beyond marking the stream ended for future subscribers.
func (t *Tracker) Emit(jobID string, ev domain.JobEvent) {
	s := t.stream(jobID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = append(s.snapshot, ev)
	if ev.Kind == domain.JobEventEnd {
		s.ended = true
	}
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop rather than block the pipeline. The
			// replayed snapshot on the next Subscribe call catches it up.
		}
	}
}

// Subscribe returns a channel delivering jobID's events from now on, plus a
// replay of every event emitted so far (spec §4.1 "on reconnect the tracker
// replays the current snapshot immediately"). The caller must call unsub
// when done to release the channel.
func (t *Tracker) Subscribe(jobID string) (events <-chan domain.JobEvent, replay []domain.JobEvent, unsub func()) {
	s := t.stream(jobID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domain.JobEvent, 32)
	s.subs[ch] = struct{}{}
	replay = append(replay, s.snapshot...)

	return ch, replay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, ch)
		close(ch)
	}
}
