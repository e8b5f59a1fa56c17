package model

import "time"

// PendingDecisionID is the sentinel decision_id used for deliberation inputs
// accumulated before a decision record exists.
const PendingDecisionID = "pending"

// TrackerSession is the accumulator of deliberation inputs for one
// (agent_id, decision_id) pair. Bounded to MaxSessionInputs entries.
type TrackerSession struct {
	AgentID       string
	DecisionID    string
	Inputs        []DeliberationInput
	StartedAt     time.Time
	LastTouchedAt time.Time
}

// MaxSessionInputs is the cap on a single tracker session's input list.
const MaxSessionInputs = 64

// SessionTTL is how long a session may sit untouched before the background
// sweeper evicts it.
const SessionTTL = 5 * time.Minute
