package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/storage"
)

// queryDecisions runs a retrieval query and tracks each returned result as a
// deliberation input on the caller's pending session, so a later
// recordDecision call can cite what the agent actually looked at.
func (d *Dispatcher) queryDecisions(ctx context.Context, agentID string, p QueryParams) ([]model.RetrievalResult, error) {
	results, err := d.retrieval.Query(ctx, p.Text, p.Filters, p.Limit, p.Mode, p.BridgeSide)
	if err != nil {
		return nil, queryFailed(err)
	}
	if d.tracker != nil {
		now := time.Now()
		for _, r := range results {
			d.tracker.TrackInput(agentID, model.PendingDecisionID, model.DeliberationInput{
				ID:        r.ID,
				Text:      r.Summary,
				Source:    "queryDecisions",
				Timestamp: now,
			})
		}
	}
	d.recentQueries.Store(agentID, results)
	return results, nil
}

// checkGuardrails evaluates declarative guardrails and fuses in any
// circuit-breaker violations for scopes the action context matches. A
// semantic condition's own retrieval timeout surfaces as QueryFailed, not
// GuardrailEvalFailed, to keep "couldn't evaluate" distinct from "guardrail
// itself failed".
func (d *Dispatcher) checkGuardrails(ctx context.Context, agentID string, p CheckGuardrailsParams) (model.GuardrailResult, error) {
	if d.guardrails == nil {
		return model.GuardrailResult{Allowed: true}, nil
	}
	result, err := d.guardrails.Evaluate(ctx, p.ActionContext)
	if err != nil {
		if ctx.Err() != nil {
			return model.GuardrailResult{}, queryFailed(err)
		}
		return model.GuardrailResult{}, guardrailEvalFailed(err)
	}

	if d.breakers != nil {
		violations, err := d.breakers.Check(ctx, p.ActionContext)
		if err != nil {
			return model.GuardrailResult{}, guardrailEvalFailed(err)
		}
		if len(violations) > 0 {
			result.Violations = append(result.Violations, violations...)
			result.Allowed = false
		}
	}

	if d.tracker != nil {
		d.tracker.TrackInput(agentID, model.PendingDecisionID, model.DeliberationInput{
			ID:        "guardrails",
			Text:      fmt.Sprintf("%d guardrails evaluated, %d violations", result.EvaluatedCount, len(result.Violations)),
			Source:    "checkGuardrails",
			Timestamp: time.Now(),
		})
	}
	return result, nil
}

// getDecision fetches one decision by ID and tracks it as a deliberation
// input, same as a query hit.
func (d *Dispatcher) getDecision(ctx context.Context, agentID, id string) (*model.Decision, error) {
	dec, err := d.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound("decision not found: "+id, err)
		}
		return nil, internalErr(err)
	}
	if d.tracker != nil {
		d.tracker.TrackInput(agentID, model.PendingDecisionID, model.DeliberationInput{
			ID:        dec.ID,
			Text:      dec.DecisionText,
			Source:    "getDecision",
			Timestamp: time.Now(),
		})
	}
	return dec, nil
}

func (d *Dispatcher) listDecisions(ctx context.Context, p ListParams) (*model.Page, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	page, err := d.store.List(ctx, p.Filters, limit, p.Offset)
	if err != nil {
		return nil, internalErr(err)
	}
	return page, nil
}

func (d *Dispatcher) getCalibration(ctx context.Context, filters model.QueryFilters) (model.Calibration, error) {
	if d.calib == nil {
		return model.Calibration{}, invalidParams("calibration is not configured")
	}
	calib, err := d.calib.Compute(ctx, filters)
	if err != nil {
		return model.Calibration{}, internalErr(err)
	}
	return calib, nil
}

func (d *Dispatcher) getReasonStats(ctx context.Context, filters model.QueryFilters) (model.ReasonStatsResult, error) {
	if d.calib == nil {
		return model.ReasonStatsResult{}, invalidParams("calibration is not configured")
	}
	stats, err := d.calib.ReasonStats(ctx, filters)
	if err != nil {
		return model.ReasonStatsResult{}, internalErr(err)
	}
	return stats, nil
}

func (d *Dispatcher) listGuardrails(ctx context.Context) ([]model.Guardrail, error) {
	if d.guardrails == nil {
		return nil, nil
	}
	guardrails, err := d.guardrails.List(ctx)
	if err != nil {
		return nil, internalErr(err)
	}
	return guardrails, nil
}

func (d *Dispatcher) getGraph(ctx context.Context, p GetGraphParams) (model.GraphView, error) {
	if d.graph == nil {
		return model.GraphView{}, invalidParams("graph is not configured")
	}
	depth := p.Depth
	if depth <= 0 {
		depth = 2
	}
	view, err := d.graph.GetGraph(ctx, p.Root, depth, p.EdgeTypes)
	if err != nil {
		return model.GraphView{}, internalErr(err)
	}
	return view, nil
}

func (d *Dispatcher) getNeighbors(p GetNeighborsParams) []model.Edge {
	if d.graph == nil {
		return nil
	}
	return d.graph.GetNeighbors(p.ID, p.EdgeType)
}

func (d *Dispatcher) getCircuitState(scope string) (model.BreakerSnapshot, error) {
	if d.breakers == nil {
		return model.BreakerSnapshot{}, invalidParams("circuit breakers are not configured")
	}
	snap, ok := d.breakers.Snapshot(scope)
	if !ok {
		return model.BreakerSnapshot{}, notFound("no breaker tracked for scope: "+scope, nil)
	}
	return snap, nil
}

func (d *Dispatcher) resetCircuit(p ResetCircuitParams) error {
	if d.breakers == nil {
		return invalidParams("circuit breakers are not configured")
	}
	if err := d.breakers.Reset(p.Scope, p.ProbeFirst); err != nil {
		return internalErr(err)
	}
	return nil
}

// ready synthesises the prioritized maintenance queue: overdue reviews,
// stale pending decisions, contradictions, and per-category drift.
func (d *Dispatcher) ready(ctx context.Context, p ReadyParams) ([]model.ReadyAction, error) {
	if d.graph == nil {
		return nil, invalidParams("graph is not configured")
	}
	actions, err := d.graph.ReadyQueue(ctx, d.store, d.calib, p.Categories)
	if err != nil {
		return nil, internalErr(err)
	}
	return actions, nil
}
