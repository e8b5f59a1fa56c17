package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfatykhov/decisionintel/internal/model"
)

func TestTrackInput_CreatesSession(t *testing.T) {
	tr := New(time.Hour)
	defer tr.Close()

	tr.TrackInput("agent-1", model.PendingDecisionID, model.DeliberationInput{
		ID:   "q-abc123",
		Text: "queried decisions about caching",
	})

	sess, ok := tr.Peek("agent-1", model.PendingDecisionID)
	require.True(t, ok)
	assert.Equal(t, "agent-1", sess.AgentID)
	assert.Len(t, sess.Inputs, 1)
	assert.Equal(t, "q-abc123", sess.Inputs[0].ID)
	assert.False(t, sess.StartedAt.IsZero())
	assert.False(t, sess.LastTouchedAt.IsZero())
}

func TestTrackInput_Accumulates(t *testing.T) {
	tr := New(time.Hour)
	defer tr.Close()

	for i := 0; i < 5; i++ {
		tr.TrackInput("agent-1", model.PendingDecisionID, model.DeliberationInput{ID: "in"})
	}

	sess, ok := tr.Peek("agent-1", model.PendingDecisionID)
	require.True(t, ok)
	assert.Len(t, sess.Inputs, 5)
}

func TestTrackInput_CapsAtMaxSessionInputs(t *testing.T) {
	tr := New(time.Hour)
	defer tr.Close()

	for i := 0; i < model.MaxSessionInputs+10; i++ {
		tr.TrackInput("agent-1", model.PendingDecisionID, model.DeliberationInput{ID: "in"})
	}

	sess, ok := tr.Peek("agent-1", model.PendingDecisionID)
	require.True(t, ok)
	assert.Len(t, sess.Inputs, model.MaxSessionInputs)
}

func TestTrackInput_DropsOldestWhenFull(t *testing.T) {
	tr := New(time.Hour)
	defer tr.Close()

	for i := 0; i < model.MaxSessionInputs; i++ {
		tr.TrackInput("agent-1", model.PendingDecisionID, model.DeliberationInput{ID: "first"})
	}
	tr.TrackInput("agent-1", model.PendingDecisionID, model.DeliberationInput{ID: "last"})

	sess, ok := tr.Peek("agent-1", model.PendingDecisionID)
	require.True(t, ok)
	assert.Len(t, sess.Inputs, model.MaxSessionInputs)
	assert.Equal(t, "last", sess.Inputs[len(sess.Inputs)-1].ID)
}

func TestConsume_RemovesSession(t *testing.T) {
	tr := New(time.Hour)
	defer tr.Close()

	tr.TrackInput("agent-1", model.PendingDecisionID, model.DeliberationInput{ID: "in"})

	sess, ok := tr.Consume("agent-1", model.PendingDecisionID)
	require.True(t, ok)
	assert.Len(t, sess.Inputs, 1)

	_, ok = tr.Peek("agent-1", model.PendingDecisionID)
	assert.False(t, ok, "consumed session must no longer be peekable")
}

func TestConsume_MissingSession(t *testing.T) {
	tr := New(time.Hour)
	defer tr.Close()

	_, ok := tr.Consume("agent-nobody", model.PendingDecisionID)
	assert.False(t, ok)
}

func TestTracker_SeparatesByDecisionID(t *testing.T) {
	tr := New(time.Hour)
	defer tr.Close()

	tr.TrackInput("agent-1", model.PendingDecisionID, model.DeliberationInput{ID: "pending-input"})
	tr.TrackInput("agent-1", "a1b2c3d4", model.DeliberationInput{ID: "attached-input"})

	pending, ok := tr.Peek("agent-1", model.PendingDecisionID)
	require.True(t, ok)
	assert.Len(t, pending.Inputs, 1)

	attached, ok := tr.Peek("agent-1", "a1b2c3d4")
	require.True(t, ok)
	assert.Len(t, attached.Inputs, 1)
	assert.NotEqual(t, pending.Inputs[0].ID, attached.Inputs[0].ID)
}

func TestTracker_SeparatesByAgent(t *testing.T) {
	tr := New(time.Hour)
	defer tr.Close()

	tr.TrackInput("agent-1", model.PendingDecisionID, model.DeliberationInput{ID: "one"})
	tr.TrackInput("agent-2", model.PendingDecisionID, model.DeliberationInput{ID: "two"})

	_, ok := tr.Consume("agent-1", model.PendingDecisionID)
	require.True(t, ok)

	sess, ok := tr.Peek("agent-2", model.PendingDecisionID)
	require.True(t, ok, "consuming agent-1's session must not affect agent-2's")
	assert.Len(t, sess.Inputs, 1)
}

func TestSweeper_EvictsStaleSessions(t *testing.T) {
	tr := &Tracker{stopCh: make(chan struct{})}
	for i := range tr.shards {
		tr.shards[i] = &shard{sessions: make(map[key]*model.TrackerSession)}
	}

	k := key{agentID: "agent-1", decisionID: model.PendingDecisionID}
	s := tr.shardFor("agent-1")
	s.sessions[k] = &model.TrackerSession{
		AgentID:       "agent-1",
		DecisionID:    model.PendingDecisionID,
		LastTouchedAt: time.Now().Add(-model.SessionTTL - time.Minute),
	}

	tr.evictStale()

	_, ok := tr.Peek("agent-1", model.PendingDecisionID)
	assert.False(t, ok, "session past TTL must be evicted")
}

func TestSweeper_KeepsFreshSessions(t *testing.T) {
	tr := &Tracker{stopCh: make(chan struct{})}
	for i := range tr.shards {
		tr.shards[i] = &shard{sessions: make(map[key]*model.TrackerSession)}
	}

	tr.TrackInput("agent-1", model.PendingDecisionID, model.DeliberationInput{ID: "in"})
	tr.evictStale()

	_, ok := tr.Peek("agent-1", model.PendingDecisionID)
	assert.True(t, ok, "fresh session must survive a sweep")
}

func TestClose_IsIdempotent(t *testing.T) {
	tr := New(time.Hour)
	assert.NotPanics(t, func() {
		tr.Close()
		tr.Close()
	})
}
