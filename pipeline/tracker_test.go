package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lookatitude/docintel/domain"
)

func TestTracker_SubscribeReceivesLiveEvents(t *testing.T) {
	tr := NewTracker()
	events, replay, unsub := tr.Subscribe("job-1")
	defer unsub()
	assert.Empty(t, replay)

	tr.Emit("job-1", domain.JobEvent{Kind: domain.JobEventProgress, Percent: 0.5})
	ev := <-events
	assert.Equal(t, domain.JobEventProgress, ev.Kind)
}

func TestTracker_ReconnectReplaysSnapshot(t *testing.T) {
	tr := NewTracker()
	tr.Emit("job-2", domain.JobEvent{Kind: domain.JobEventProgress})
	tr.Emit("job-2", domain.JobEvent{Kind: domain.JobEventComplete})
	tr.Emit("job-2", domain.JobEvent{Kind: domain.JobEventEnd})

	_, replay, unsub := tr.Subscribe("job-2")
	defer unsub()
	assert.Len(t, replay, 3)
	assert.Equal(t, domain.JobEventEnd, replay[2].Kind)
}

func TestTracker_IndependentJobsDoNotCrossTalk(t *testing.T) {
	tr := NewTracker()
	tr.Emit("job-a", domain.JobEvent{Kind: domain.JobEventProgress})

	_, replayB, unsub := tr.Subscribe("job-b")
	defer unsub()
	assert.Empty(t, replayB)
}
