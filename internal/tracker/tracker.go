// Package tracker implements the Deliberation Tracker: per-(agent, decision)
// in-memory accumulation of reasoning inputs between dispatcher calls.
package tracker

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/tfatykhov/decisionintel/internal/model"
)

// shardCount partitions the session map by a hash of agent_id so consuming
// one agent's session never blocks another's.
const shardCount = 32

type key struct {
	agentID    string
	decisionID string
}

type shard struct {
	mu       sync.Mutex
	sessions map[key]*model.TrackerSession
}

// Tracker is the Deliberation Tracker: a sharded, TTL-evicted map from
// (agent_id, decision_id|"pending") to accumulated deliberation state.
type Tracker struct {
	shards [shardCount]*shard

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Tracker and starts its background TTL sweeper, which runs
// every interval evicting sessions untouched for longer than model.SessionTTL.
func New(sweepInterval time.Duration) *Tracker {
	t := &Tracker{stopCh: make(chan struct{})}
	for i := range t.shards {
		t.shards[i] = &shard{sessions: make(map[key]*model.TrackerSession)}
	}
	go t.sweepLoop(sweepInterval)
	return t
}

func (t *Tracker) shardFor(agentID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	return t.shards[h.Sum32()%shardCount]
}

// TrackInput appends input to the session for (agentID, decisionID),
// creating the session if absent and refreshing LastTouchedAt. If the
// session already holds model.MaxSessionInputs entries, the oldest is
// dropped to make room; this is size-bounded by design, not a failure.
func (t *Tracker) TrackInput(agentID, decisionID string, input model.DeliberationInput) {
	s := t.shardFor(agentID)
	k := key{agentID: agentID, decisionID: decisionID}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[k]
	if !ok {
		now := time.Now()
		sess = &model.TrackerSession{
			AgentID:       agentID,
			DecisionID:    decisionID,
			StartedAt:     now,
			LastTouchedAt: now,
		}
		s.sessions[k] = sess
	}

	sess.Inputs = append(sess.Inputs, input)
	if len(sess.Inputs) > model.MaxSessionInputs {
		sess.Inputs = sess.Inputs[len(sess.Inputs)-model.MaxSessionInputs:]
	}
	sess.LastTouchedAt = time.Now()
}

// Consume atomically returns and removes the session for (agentID,
// decisionID). Returns nil, false if no session exists.
func (t *Tracker) Consume(agentID, decisionID string) (*model.TrackerSession, bool) {
	s := t.shardFor(agentID)
	k := key{agentID: agentID, decisionID: decisionID}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[k]
	if !ok {
		return nil, false
	}
	delete(s.sessions, k)
	return sess, true
}

// Peek returns a read-only copy of the session for (agentID, decisionID)
// without consuming it, for diagnostics.
func (t *Tracker) Peek(agentID, decisionID string) (model.TrackerSession, bool) {
	s := t.shardFor(agentID)
	k := key{agentID: agentID, decisionID: decisionID}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[k]
	if !ok {
		return model.TrackerSession{}, false
	}
	cp := *sess
	cp.Inputs = append([]model.DeliberationInput(nil), sess.Inputs...)
	return cp, true
}

// Close stops the background sweeper. Safe to call more than once.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *Tracker) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.evictStale()
		}
	}
}

func (t *Tracker) evictStale() {
	cutoff := time.Now().Add(-model.SessionTTL)
	for _, s := range t.shards {
		s.mu.Lock()
		for k, sess := range s.sessions {
			if sess.LastTouchedAt.Before(cutoff) {
				delete(s.sessions, k)
			}
		}
		s.mu.Unlock()
	}
}
