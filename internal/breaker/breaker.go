// Package breaker implements the Circuit Breaker Manager: per-scope failure
// tracking over a sliding window, with a closed/open/half_open state
// machine and crash-recoverable journaling of every transition.
package breaker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/storage"
)

// notificationDebounce is the minimum interval between open-event
// notifications for a single scope.
const notificationDebounce = 60 * time.Second

type entry struct {
	state            model.BreakerState
	config           model.BreakerConfig
	failures         []time.Time
	openedAt         *time.Time
	probeInFlight    bool
	lastNotification time.Time
}

// Manager is the Circuit Breaker Manager. All scopes share one lock:
// scope counts stay in the low hundreds, so a single mutex never becomes a
// bottleneck the way a per-scope lock would justify its own complexity.
type Manager struct {
	mu       sync.Mutex
	entries  map[string]*entry
	journal  *storage.Journal
	notifyFn func(scope string)
	logger   *slog.Logger
}

// New creates a Circuit Breaker Manager. journal persists every state
// transition; notifyFn is called (outside the manager's lock) when a scope
// opens, debounced to once per 60 seconds per scope. notifyFn may be nil.
func New(journal *storage.Journal, notifyFn func(scope string), logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if notifyFn == nil {
		notifyFn = func(string) {}
	}
	return &Manager{
		entries:  make(map[string]*entry),
		journal:  journal,
		notifyFn: notifyFn,
		logger:   logger,
	}
}

// Replay rebuilds in-memory breaker state from the journal. Only the
// current state and, for open breakers, the opened-at timestamp survive a
// restart; the failure deque itself resets empty, since the journal records
// transitions, not individual failures, and a freshly reopened process has
// observed none yet. Cooldown elapsed-ness is still computed correctly
// because opened_at carries the original wall-clock time.
func (m *Manager) Replay() error {
	if m.journal == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.journal.Replay(func(line []byte) error {
		var t model.BreakerTransition
		if err := json.Unmarshal(line, &t); err != nil {
			return fmt.Errorf("breaker: replay decode: %w", err)
		}
		e := m.entryFor(t.Scope)
		e.state = t.To
		if t.To == model.BreakerOpen {
			ts := t.Timestamp
			e.openedAt = &ts
		} else {
			e.openedAt = nil
		}
		e.probeInFlight = false
		return nil
	})
}

func (m *Manager) entryFor(scope string) *entry {
	e, ok := m.entries[scope]
	if !ok {
		e = &entry{state: model.BreakerClosed, config: model.DefaultBreakerConfig}
		m.entries[scope] = e
	}
	return e
}

// Configure sets a scope-specific threshold/window/cooldown, overriding
// model.DefaultBreakerConfig for that scope.
func (m *Manager) Configure(scope string, cfg model.BreakerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryFor(scope).config = cfg
}

// matchingScopes derives the breaker scopes a given action context belongs
// to, most-restrictive first: category/stakes/agent/tag scopes before the
// global catch-all.
func matchingScopes(actionCtx model.ActionContext) []string {
	var scopes []string
	if v, ok := actionCtx["category"].(string); ok && v != "" {
		scopes = append(scopes, "category:"+v)
	}
	if v, ok := actionCtx["stakes"].(string); ok && v != "" {
		scopes = append(scopes, "stakes:"+v)
	}
	if v, ok := actionCtx["agent"].(string); ok && v != "" {
		scopes = append(scopes, "agent:"+v)
	} else if v, ok := actionCtx["recorded_by"].(string); ok && v != "" {
		scopes = append(scopes, "agent:"+v)
	}
	if tags, ok := actionCtx["tags"].([]string); ok {
		for _, tag := range tags {
			scopes = append(scopes, "tag:"+tag)
		}
	}
	scopes = append(scopes, "global")
	return scopes
}

// Check evaluates every scope matching actionCtx, lazily promoting an open
// breaker to half_open once its cooldown has elapsed, and returns one
// circuit_breaker violation per scope currently blocking the action: an
// open breaker, or a half_open breaker whose single probe slot is already
// in flight.
func (m *Manager) Check(_ context.Context, actionCtx model.ActionContext) ([]model.Violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var violations []model.Violation

	for _, scope := range matchingScopes(actionCtx) {
		e := m.entryFor(scope)

		if e.state == model.BreakerOpen && e.openedAt != nil &&
			now.Sub(*e.openedAt) >= e.config.CooldownMs {
			if err := m.transition(scope, e, model.BreakerHalfOpen, "cooldown elapsed"); err != nil {
				return nil, err
			}
		}

		switch e.state {
		case model.BreakerOpen:
			violations = append(violations, m.violationFor(scope, e, now))
		case model.BreakerHalfOpen:
			if e.probeInFlight {
				violations = append(violations, m.violationFor(scope, e, now))
				continue
			}
			e.probeInFlight = true
		}
	}

	return violations, nil
}

func (m *Manager) violationFor(scope string, e *entry, now time.Time) model.Violation {
	v := model.Violation{
		Type:           "circuit_breaker",
		State:          string(e.state),
		RecentFailures: len(e.failures),
		Message:        fmt.Sprintf("circuit breaker %q is %s", scope, e.state),
		Suggestion:     "retry after the breaker's cooldown elapses or request a manual reset",
	}
	if e.config.Threshold > 0 {
		rate := float64(len(e.failures)) / float64(e.config.Threshold)
		v.FailureRate = &rate
	}
	if e.openedAt != nil {
		v.ResetAtUnix = e.openedAt.Add(e.config.CooldownMs).Unix()
	}
	return v
}

// RecordOutcome updates every scope matching actionCtx for a reviewed
// decision's outcome. failure and abandoned count toward the failure
// window (and resolve an in-flight probe as failed); partial never counts;
// success clears a closed scope's deque and resolves an in-flight probe as
// successful.
func (m *Manager) RecordOutcome(_ context.Context, actionCtx model.ActionContext, outcome model.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	for _, scope := range matchingScopes(actionCtx) {
		e := m.entryFor(scope)

		switch outcome {
		case model.OutcomeSuccess:
			switch e.state {
			case model.BreakerHalfOpen:
				e.failures = nil
				e.probeInFlight = false
				if err := m.transition(scope, e, model.BreakerClosed, "probe succeeded"); err != nil {
					return err
				}
			case model.BreakerClosed:
				e.failures = nil
			}
		case model.OutcomeFailure, model.OutcomeAbandoned:
			if e.state == model.BreakerHalfOpen {
				e.probeInFlight = false
				ts := now
				e.openedAt = &ts
				if err := m.transition(scope, e, model.BreakerOpen, "probe failed"); err != nil {
					return err
				}
				m.maybeNotify(scope, e, now)
				continue
			}

			e.failures = pruneWindow(append(e.failures, now), e.config.Window, now)
			if e.state == model.BreakerClosed && len(e.failures) >= e.config.Threshold {
				ts := now
				e.openedAt = &ts
				if err := m.transition(scope, e, model.BreakerOpen, "failure threshold reached"); err != nil {
					return err
				}
				m.maybeNotify(scope, e, now)
			}
		}
	}

	return nil
}

func pruneWindow(timestamps []time.Time, window time.Duration, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func (m *Manager) transition(scope string, e *entry, to model.BreakerState, reason string) error {
	from := e.state
	e.state = to
	if m.journal == nil {
		return nil
	}
	return m.journal.Append(model.BreakerTransition{
		Scope:     scope,
		From:      from,
		To:        to,
		Timestamp: time.Now(),
		Reason:    reason,
	})
}

func (m *Manager) maybeNotify(scope string, e *entry, now time.Time) {
	if now.Sub(e.lastNotification) < notificationDebounce {
		return
	}
	e.lastNotification = now
	go m.notifyFn(scope)
}

// Snapshot returns a read-only view of one scope's breaker state, for
// getCircuitState. ok is false only for a scope the manager holds no entry
// for; a scope that has been configured, checked, reset, replayed, or had any
// outcome recorded reports ok, even with zero failures.
func (m *Manager) Snapshot(scope string) (model.BreakerSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[scope]
	if !ok {
		return model.BreakerSnapshot{}, false
	}
	snap := model.BreakerSnapshot{
		Scope:         scope,
		State:         e.state,
		FailureCount:  len(e.failures),
		Threshold:     e.config.Threshold,
		ProbeInFlight: e.probeInFlight,
	}
	if e.openedAt != nil {
		snap.OpenedAt = e.openedAt
	}
	if len(e.failures) > 0 {
		last := e.failures[len(e.failures)-1]
		snap.LastFailureAt = &last
	}
	return snap, true
}

// Reset is the operator manual override: open→closed by default, or
// open→half_open with probeFirst=true to immediately allow one probe.
func (m *Manager) Reset(scope string, probeFirst bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entryFor(scope)
	e.failures = nil
	e.probeInFlight = false
	e.openedAt = nil
	target := model.BreakerClosed
	reason := "manual reset"
	if probeFirst {
		target = model.BreakerHalfOpen
		reason = "manual reset with probe_first"
	}
	return m.transition(scope, e, target, reason)
}
