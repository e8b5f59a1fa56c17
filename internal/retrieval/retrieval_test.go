package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tfatykhov/decisionintel/internal/model"
)

func TestUnionCandidates(t *testing.T) {
	out := unionCandidates(map[string]float64{"a": 1, "b": 2}, map[string]float64{"b": 3, "c": 4})
	assert.Len(t, out, 3)
	assert.True(t, out["a"] && out["b"] && out["c"])
}

func TestMatchesFilters_Category(t *testing.T) {
	d := &model.Decision{Category: model.CategoryArchitecture}
	arch := model.CategoryArchitecture
	sec := model.CategorySecurity
	assert.True(t, matchesFilters(d, model.QueryFilters{Category: &arch}))
	assert.False(t, matchesFilters(d, model.QueryFilters{Category: &sec}))
}

func TestMatchesFilters_TagsAnyMatch(t *testing.T) {
	d := &model.Decision{Tags: []string{"retry", "network"}}
	assert.True(t, matchesFilters(d, model.QueryFilters{Tags: []string{"network", "other"}}))
	assert.False(t, matchesFilters(d, model.QueryFilters{Tags: []string{"unrelated"}}))
}

func TestMatchesFilters_Project(t *testing.T) {
	proj := "acme"
	other := "other"
	d := &model.Decision{ProjectContext: model.ProjectContext{Project: &proj}}
	assert.True(t, matchesFilters(d, model.QueryFilters{Project: &proj}))
	assert.False(t, matchesFilters(d, model.QueryFilters{Project: &other}))
}

func TestMatchesFilters_DateRange(t *testing.T) {
	now := time.Now()
	d := &model.Decision{CreatedAt: now}
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	assert.True(t, matchesFilters(d, model.QueryFilters{DateRange: &model.DateRange{From: &past, To: &future}}))

	tooLate := now.Add(-2 * time.Hour)
	assert.False(t, matchesFilters(d, model.QueryFilters{DateRange: &model.DateRange{To: &tooLate}}))
}

func TestMatchesFilters_HasOutcome(t *testing.T) {
	success := model.OutcomeSuccess
	withOutcome := &model.Decision{Outcome: &success}
	withoutOutcome := &model.Decision{}
	yes := true
	no := false
	assert.True(t, matchesFilters(withOutcome, model.QueryFilters{HasOutcome: &yes}))
	assert.False(t, matchesFilters(withoutOutcome, model.QueryFilters{HasOutcome: &yes}))
	assert.True(t, matchesFilters(withoutOutcome, model.QueryFilters{HasOutcome: &no}))
}

func TestMatchesFilters_ConfidenceMin(t *testing.T) {
	d := &model.Decision{Confidence: 0.6}
	min := 0.7
	assert.False(t, matchesFilters(d, model.QueryFilters{ConfidenceMin: &min}))
	min2 := 0.5
	assert.True(t, matchesFilters(d, model.QueryFilters{ConfidenceMin: &min2}))
}

func TestBridgeResult_NilWhenEmpty(t *testing.T) {
	d := &model.Decision{}
	assert.Nil(t, bridgeResult(d))
}

func TestBridgeResult_PopulatedWhenEitherSideSet(t *testing.T) {
	d := &model.Decision{Bridge: model.Bridge{Function: "prevents drift"}}
	b := bridgeResult(d)
	if assert.NotNil(t, b) {
		assert.Equal(t, "prevents drift", b.Function)
	}
}

func TestFindSimilar_NoVectorStoreFailsOpen(t *testing.T) {
	e := New(nil, nil, nil, nil, nil)
	count, err := e.FindSimilar(context.Background(), "cache eviction", model.OutcomeFailure, 30, 0.3)
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}
