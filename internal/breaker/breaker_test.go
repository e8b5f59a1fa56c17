package breaker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/storage"
)

func tinyConfig() model.BreakerConfig {
	return model.BreakerConfig{Threshold: 3, Window: time.Hour, CooldownMs: 50 * time.Millisecond}
}

func TestCheck_ClosedBreakerNeverBlocks(t *testing.T) {
	m := New(nil, nil, nil)
	violations, err := m.Check(context.Background(), model.ActionContext{"stakes": "high"})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestRecordOutcome_OpensOnThreshold(t *testing.T) {
	m := New(nil, nil, nil)
	m.Configure("stakes:high", tinyConfig())

	for i := 0; i < 3; i++ {
		err := m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure)
		require.NoError(t, err)
	}

	violations, err := m.Check(context.Background(), model.ActionContext{"stakes": "high"})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "circuit_breaker", violations[0].Type)
	assert.Equal(t, string(model.BreakerOpen), violations[0].State)
}

func TestRecordOutcome_PartialNeverCounts(t *testing.T) {
	m := New(nil, nil, nil)
	m.Configure("stakes:high", tinyConfig())

	for i := 0; i < 5; i++ {
		err := m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomePartial)
		require.NoError(t, err)
	}

	violations, err := m.Check(context.Background(), model.ActionContext{"stakes": "high"})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestRecordOutcome_SuccessClearsClosedDeque(t *testing.T) {
	m := New(nil, nil, nil)
	m.Configure("stakes:high", tinyConfig())

	require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))
	require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))
	require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeSuccess))

	snap, ok := m.Snapshot("stakes:high")
	require.True(t, ok)
	assert.Equal(t, 0, snap.FailureCount)
	assert.Equal(t, model.BreakerClosed, snap.State)
}

func TestCheck_TransitionsToHalfOpenAfterCooldown(t *testing.T) {
	m := New(nil, nil, nil)
	m.Configure("stakes:high", tinyConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))
	}

	time.Sleep(75 * time.Millisecond)

	violations, err := m.Check(context.Background(), model.ActionContext{"stakes": "high"})
	require.NoError(t, err)
	assert.Empty(t, violations, "a fresh half_open probe slot must allow exactly one action through")

	snap, ok := m.Snapshot("stakes:high")
	require.True(t, ok)
	assert.Equal(t, model.BreakerHalfOpen, snap.State)
	assert.True(t, snap.ProbeInFlight)
}

func TestCheck_HalfOpenBlocksSecondConcurrentProbe(t *testing.T) {
	m := New(nil, nil, nil)
	m.Configure("stakes:high", tinyConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))
	}
	time.Sleep(75 * time.Millisecond)

	_, err := m.Check(context.Background(), model.ActionContext{"stakes": "high"})
	require.NoError(t, err)

	violations, err := m.Check(context.Background(), model.ActionContext{"stakes": "high"})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, string(model.BreakerHalfOpen), violations[0].State)
}

func TestRecordOutcome_ProbeSuccessCloses(t *testing.T) {
	m := New(nil, nil, nil)
	m.Configure("stakes:high", tinyConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))
	}
	time.Sleep(75 * time.Millisecond)
	_, err := m.Check(context.Background(), model.ActionContext{"stakes": "high"})
	require.NoError(t, err)

	require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeSuccess))

	snap, ok := m.Snapshot("stakes:high")
	require.True(t, ok)
	assert.Equal(t, model.BreakerClosed, snap.State)
	assert.False(t, snap.ProbeInFlight)
}

func TestRecordOutcome_ProbeFailureReopens(t *testing.T) {
	m := New(nil, nil, nil)
	m.Configure("stakes:high", tinyConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))
	}
	time.Sleep(75 * time.Millisecond)
	_, err := m.Check(context.Background(), model.ActionContext{"stakes": "high"})
	require.NoError(t, err)

	require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))

	snap, ok := m.Snapshot("stakes:high")
	require.True(t, ok)
	assert.Equal(t, model.BreakerOpen, snap.State)
	assert.False(t, snap.ProbeInFlight)
}

func TestReset_ManualOverrideToClosed(t *testing.T) {
	m := New(nil, nil, nil)
	m.Configure("stakes:high", tinyConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))
	}

	require.NoError(t, m.Reset("stakes:high", false))

	snap, ok := m.Snapshot("stakes:high")
	require.True(t, ok)
	assert.Equal(t, model.BreakerClosed, snap.State)
}

func TestReset_ManualOverrideWithProbeFirst(t *testing.T) {
	m := New(nil, nil, nil)
	m.Configure("stakes:high", tinyConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))
	}

	require.NoError(t, m.Reset("stakes:high", true))

	snap, ok := m.Snapshot("stakes:high")
	require.True(t, ok)
	assert.Equal(t, model.BreakerHalfOpen, snap.State)
}

func TestMatchingScopes_MostRestrictiveFirstThenGlobal(t *testing.T) {
	scopes := matchingScopes(model.ActionContext{
		"category": "security",
		"stakes":   "high",
		"agent":    "agent-1",
		"tags":     []string{"prod"},
	})
	require.Equal(t, []string{"category:security", "stakes:high", "agent:agent-1", "tag:prod", "global"}, scopes)
}

func TestCheck_GlobalOnlyWhenNoOtherContext(t *testing.T) {
	scopes := matchingScopes(model.ActionContext{})
	assert.Equal(t, []string{"global"}, scopes)
}

func TestReplay_RebuildsStateAndOpenedAt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "breaker.jsonl")
	j, err := storage.OpenJournal(path)
	require.NoError(t, err)

	openedAt := time.Now().Add(-time.Hour)
	require.NoError(t, j.Append(model.BreakerTransition{
		Scope: "stakes:high", From: model.BreakerClosed, To: model.BreakerOpen,
		Timestamp: openedAt, Reason: "failure threshold reached",
	}))
	require.NoError(t, j.Close())

	j2, err := storage.OpenJournal(path)
	require.NoError(t, err)
	m := New(j2, nil, nil)
	require.NoError(t, m.Replay())

	snap, ok := m.Snapshot("stakes:high")
	require.True(t, ok)
	assert.Equal(t, model.BreakerOpen, snap.State)
	require.NotNil(t, snap.OpenedAt)
}

func TestRecordOutcome_MaybeNotifyDebounces(t *testing.T) {
	var calls int
	m := New(nil, func(string) { calls++ }, nil)
	m.Configure("stakes:high", tinyConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))
	}
	require.NoError(t, m.Reset("stakes:high", false))
	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordOutcome(context.Background(), model.ActionContext{"stakes": "high"}, model.OutcomeFailure))
	}

	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, calls, 1, "a second open within the debounce window must not notify again")
}
