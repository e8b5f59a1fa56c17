package model

import "time"

// BreakerState is one of the three circuit-breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig is the threshold/window/cooldown tuple a scope is monitored
// with. Distinct scopes may have distinct configs; a scope with no explicit
// config falls back to DefaultBreakerConfig.
type BreakerConfig struct {
	Threshold  int           `json:"threshold"`
	Window     time.Duration `json:"window"`
	CooldownMs time.Duration `json:"cooldown"`
}

// DefaultBreakerConfig is used for scopes that were never explicitly
// configured via the breaker manager's admin surface.
var DefaultBreakerConfig = BreakerConfig{
	Threshold:  5,
	Window:     24 * time.Hour,
	CooldownMs: time.Hour,
}

// BreakerSnapshot is a read-only view of one scope's circuit breaker state,
// returned by getCircuitState.
type BreakerSnapshot struct {
	Scope          string       `json:"scope"`
	State          BreakerState `json:"state"`
	FailureCount   int          `json:"failure_count"`
	Threshold      int          `json:"threshold"`
	OpenedAt       *time.Time   `json:"opened_at,omitempty"`
	ProbeInFlight  bool         `json:"probe_in_flight"`
	LastFailureAt  *time.Time   `json:"last_failure_at,omitempty"`
}

// BreakerTransition is a single entry in the append-only breaker journal.
type BreakerTransition struct {
	Scope     string       `json:"scope"`
	From      BreakerState `json:"from"`
	To        BreakerState `json:"to"`
	Timestamp time.Time    `json:"timestamp"` // ISO wall-clock, for cooldown replay
	Reason    string       `json:"reason"`
}
