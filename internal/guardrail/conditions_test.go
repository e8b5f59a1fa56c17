package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tfatykhov/decisionintel/internal/model"
)

func TestCompare_Equality(t *testing.T) {
	assert.True(t, compare("high", model.OpEq, "high"))
	assert.False(t, compare("high", model.OpEq, "low"))
	assert.True(t, compare("high", model.OpNeq, "low"))
}

func TestCompare_Numeric(t *testing.T) {
	assert.True(t, compare(0.9, model.OpGte, 0.5))
	assert.True(t, compare(0.3, model.OpLt, 0.5))
	assert.False(t, compare(0.3, model.OpGt, 0.5))
	assert.False(t, compare("not-a-number", model.OpGt, 0.5))
}

func TestCompare_In(t *testing.T) {
	assert.True(t, compare("security", model.OpIn, []any{"security", "tooling"}))
	assert.False(t, compare("process", model.OpIn, []any{"security", "tooling"}))
	assert.True(t, compare("process", model.OpNotIn, []any{"security", "tooling"}))
}

func TestEvaluateFieldCondition_MissingFieldFails(t *testing.T) {
	assert.False(t, evaluateFieldCondition("confidence", model.OpGte, 0.5, model.ActionContext{}))
}

func TestFieldValue_KnownFields(t *testing.T) {
	outcome := model.OutcomeSuccess
	project := "checkout"
	d := &model.Decision{
		Category:       model.CategorySecurity,
		Stakes:         model.StakesHigh,
		Status:         model.StatusReviewed,
		RecordedBy:     "agent-7",
		Confidence:     0.82,
		Outcome:        &outcome,
		ProjectContext: model.ProjectContext{Project: &project},
	}

	v, ok := fieldValue(d, "category")
	assert.True(t, ok)
	assert.Equal(t, "security", v)

	v, ok = fieldValue(d, "agent")
	assert.True(t, ok)
	assert.Equal(t, "agent-7", v)

	v, ok = fieldValue(d, "project")
	assert.True(t, ok)
	assert.Equal(t, "checkout", v)

	_, ok = fieldValue(d, "not-a-real-field")
	assert.False(t, ok)
}

func TestFieldValue_NilOutcomeAndProject(t *testing.T) {
	d := &model.Decision{}

	v, ok := fieldValue(d, "outcome")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	v, ok = fieldValue(d, "project")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestEvaluateCompoundCondition_EmptyNestedDefaultsTrue(t *testing.T) {
	e := &Engine{}
	ok, err := e.evaluateCompoundCondition(nil, model.Condition{Logic: "and"}, model.ActionContext{})
	assert.NoError(t, err)
	assert.True(t, ok, "an and with no nested conditions vacuously matches")
}
