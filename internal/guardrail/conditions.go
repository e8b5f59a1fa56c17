package guardrail

import (
	"context"
	"fmt"
	"time"

	"github.com/tfatykhov/decisionintel/internal/model"
)

// evaluateCondition dispatches on Kind. An unrecognized Kind is a
// configuration error, not a silent pass.
func (e *Engine) evaluateCondition(ctx context.Context, c model.Condition, actionCtx model.ActionContext) (bool, error) {
	switch c.Kind {
	case model.ConditionField:
		return evaluateFieldCondition(c.Field, c.Operator, c.Value, actionCtx), nil
	case model.ConditionSemantic:
		return e.evaluateSemanticCondition(ctx, c, actionCtx)
	case model.ConditionTemporal:
		return e.evaluateTemporalCondition(ctx, c)
	case model.ConditionAggregate:
		return e.evaluateAggregateCondition(ctx, c)
	case model.ConditionCompound:
		return e.evaluateCompoundCondition(ctx, c, actionCtx)
	default:
		return false, fmt.Errorf("guardrail: unrecognized condition kind %q", c.Kind)
	}
}

// evaluateFieldCondition performs a direct, case-sensitive comparison of
// actionCtx[field] against value using op.
func evaluateFieldCondition(field string, op model.Operator, value any, actionCtx model.ActionContext) bool {
	actual, ok := actionCtx[field]
	if !ok {
		return false
	}
	return compare(actual, op, value)
}

func compare(actual any, op model.Operator, expected any) bool {
	switch op {
	case model.OpEq:
		return fmt.Sprint(actual) == fmt.Sprint(expected)
	case model.OpNeq:
		return fmt.Sprint(actual) != fmt.Sprint(expected)
	case model.OpIn:
		return containsAny(expected, actual)
	case model.OpNotIn:
		return !containsAny(expected, actual)
	case model.OpLt, model.OpGt, model.OpLte, model.OpGte:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false
		}
		switch op {
		case model.OpLt:
			return a < b
		case model.OpGt:
			return a > b
		case model.OpLte:
			return a <= b
		case model.OpGte:
			return a >= b
		}
	}
	return false
}

func containsAny(list any, target any) bool {
	items, ok := list.([]any)
	if !ok {
		if strs, ok := list.([]string); ok {
			for _, s := range strs {
				if s == fmt.Sprint(target) {
					return true
				}
			}
		}
		return false
	}
	for _, item := range items {
		if fmt.Sprint(item) == fmt.Sprint(target) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// evaluateSemanticCondition embeds actionCtx[QueryField] and counts prior
// decisions with the same FilterOutcome recorded within FilterSinceDays
// whose distance is within DistanceThreshold. Matches when the count is at
// least MinMatches. A nil or unreachable finder fails the condition rather
// than panicking — a guardrail that can never gather evidence never blocks.
func (e *Engine) evaluateSemanticCondition(ctx context.Context, c model.Condition, actionCtx model.ActionContext) (bool, error) {
	if e.finder == nil {
		return false, nil
	}
	query, _ := actionCtx[c.QueryField].(string)
	if query == "" {
		return false, nil
	}
	count, err := e.finder.FindSimilar(ctx, query, c.FilterOutcome, c.FilterSinceDays, c.DistanceThreshold)
	if err != nil {
		return false, fmt.Errorf("guardrail: semantic condition: %w", err)
	}
	return count >= c.MinMatches, nil
}

// evaluateTemporalCondition counts decisions where Field equals Value,
// recorded within WindowHours, matching when the count exceeds
// MaxOccurrences.
func (e *Engine) evaluateTemporalCondition(ctx context.Context, c model.Condition) (bool, error) {
	since := time.Now().Add(-time.Duration(c.WindowHours) * time.Hour)
	count := 0
	err := e.store.All(ctx, func(d *model.Decision) error {
		if d.CreatedAt.Before(since) {
			return nil
		}
		if v, ok := fieldValue(d, c.Field); ok && fmt.Sprint(v) == fmt.Sprint(c.Value) {
			count++
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("guardrail: temporal condition: %w", err)
	}
	return count > c.MaxOccurrences, nil
}

// evaluateAggregateCondition computes Metric over decisions matching
// AggregateField=AggregateValue and compares the result against Threshold
// using CompareOp.
func (e *Engine) evaluateAggregateCondition(ctx context.Context, c model.Condition) (bool, error) {
	var matched int
	var successes, failures int
	var confidenceSum float64

	err := e.store.All(ctx, func(d *model.Decision) error {
		if v, ok := fieldValue(d, c.AggregateField); !ok || fmt.Sprint(v) != fmt.Sprint(c.AggregateValue) {
			return nil
		}
		matched++
		confidenceSum += d.Confidence
		if d.Outcome == nil {
			return nil
		}
		switch *d.Outcome {
		case model.OutcomeSuccess:
			successes++
		case model.OutcomeFailure, model.OutcomeAbandoned:
			failures++
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("guardrail: aggregate condition: %w", err)
	}
	if matched == 0 {
		return false, nil
	}

	var value float64
	switch c.Metric {
	case model.MetricSuccessRate:
		value = float64(successes) / float64(matched)
	case model.MetricFailureRate:
		value = float64(failures) / float64(matched)
	case model.MetricAvgConfidence:
		value = confidenceSum / float64(matched)
	default:
		return false, fmt.Errorf("guardrail: unrecognized aggregate metric %q", c.Metric)
	}

	return compare(value, c.CompareOp, c.Threshold), nil
}

// evaluateCompoundCondition recursively evaluates Nested conditions,
// combining them with Logic ("and" or "or"; "and" is the default for an
// unrecognized or empty value).
func (e *Engine) evaluateCompoundCondition(ctx context.Context, c model.Condition, actionCtx model.ActionContext) (bool, error) {
	if c.Logic == "or" {
		for _, nested := range c.Nested {
			ok, err := e.evaluateCondition(ctx, nested, actionCtx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	for _, nested := range c.Nested {
		ok, err := e.evaluateCondition(ctx, nested, actionCtx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// fieldValue extracts a named field from a stored decision for temporal and
// aggregate condition matching. Unknown field names report ok=false.
func fieldValue(d *model.Decision, field string) (any, bool) {
	switch field {
	case "category":
		return string(d.Category), true
	case "stakes":
		return string(d.Stakes), true
	case "status":
		return string(d.Status), true
	case "agent", "recorded_by":
		return d.RecordedBy, true
	case "confidence":
		return d.Confidence, true
	case "outcome":
		if d.Outcome == nil {
			return "", true
		}
		return string(*d.Outcome), true
	case "project":
		if d.ProjectContext.Project == nil {
			return "", true
		}
		return *d.ProjectContext.Project, true
	case "feature":
		if d.ProjectContext.Feature == nil {
			return "", true
		}
		return *d.ProjectContext.Feature, true
	default:
		return nil, false
	}
}
