package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/retrieval"
	"github.com/tfatykhov/decisionintel/internal/storage"
)

// maxIDSaltAttempts bounds the content-derived-ID collision retry loop.
// A collision means two different decisions hashed to the same 8 hex
// digits; re-salting and re-hashing resolves it in practice on the first
// or second attempt.
const maxIDSaltAttempts = 5

// autoLinkQueryLookback is how many of the agent's most recent
// queryDecisions results are offered to the graph's auto-link pass.
const autoLinkQueryLookback = 5

// recordDecision derives a content-addressed ID, resolves the decision's
// bridge (explicit if supplied, otherwise rule-extracted), folds in the
// agent's accumulated deliberation session, persists the record, and
// auto-links it against the candidates the agent was just querying.
func (d *Dispatcher) recordDecision(ctx context.Context, agentID string, p RecordParams) (*model.Decision, error) {
	if p.DecisionText == "" {
		return nil, invalidParams("decision text is required")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return nil, invalidParams("confidence must be in [0,1]")
	}

	now := time.Now()
	dec := &model.Decision{
		CreatedAt:      now,
		UpdatedAt:      now,
		RecordedBy:     agentID,
		DecisionText:   p.DecisionText,
		Confidence:     p.Confidence,
		Category:       p.Category,
		Stakes:         p.Stakes,
		Context:        p.Context,
		Status:         model.StatusPending,
		Reasons:        p.Reasons,
		Tags:           p.Tags,
		Pattern:        p.Pattern,
		ProjectContext: p.ProjectContext,
	}

	if p.ReviewBy != nil {
		t, err := time.Parse(time.RFC3339, *p.ReviewBy)
		if err != nil {
			return nil, invalidParams("review_by must be RFC3339")
		}
		dec.ReviewBy = &t
	}

	if p.Bridge != nil {
		dec.Bridge = *p.Bridge
		dec.BridgeMethod = model.BridgeExplicit
	} else {
		bridge, method := retrieval.Extract(retrieval.ExtractInput{
			DecisionText: p.DecisionText,
			Context:      p.Context,
			Reasons:      p.Reasons,
		})
		dec.Bridge = bridge
		dec.BridgeMethod = method
	}

	var session *model.TrackerSession
	if d.tracker != nil {
		if s, ok := d.tracker.Consume(agentID, model.PendingDecisionID); ok {
			session = s
		}
	}
	if session != nil {
		dec.Deliberation.Inputs = session.Inputs
		dec.Deliberation.TotalDurationMs = time.Since(session.StartedAt).Milliseconds()
	}

	id, err := d.deriveUniqueID(ctx, agentID, p.DecisionText, now)
	if err != nil {
		return nil, recordFailed(err)
	}
	dec.ID = id

	if _, err := d.store.Put(ctx, dec); err != nil {
		return nil, recordFailed(err)
	}

	if d.tracker != nil && session != nil {
		// recordThought calls naming dec.ID from here on should find the
		// session under its real key, not "pending".
		for _, in := range session.Inputs {
			d.tracker.TrackInput(agentID, dec.ID, in)
		}
		d.tracker.Consume(agentID, dec.ID)
	}

	if d.graph != nil {
		if v, ok := d.recentQueries.LoadAndDelete(agentID); ok {
			if results, ok := v.([]model.RetrievalResult); ok && len(results) > 0 {
				lookback := results
				if len(lookback) > autoLinkQueryLookback {
					lookback = lookback[:autoLinkQueryLookback]
				}
				if err := d.graph.AutoLink(ctx, dec.ID, lookback); err != nil {
					d.logger.Warn("dispatch: auto-link failed", "decision_id", dec.ID, "error", err)
				}
			}
		}
	}

	return dec, nil
}

// deriveUniqueID derives the content-addressed ID for (agentID, text,
// createdAt), re-salting when the derived ID already names a decision with
// different content.
func (d *Dispatcher) deriveUniqueID(ctx context.Context, agentID, text string, createdAt time.Time) (string, error) {
	for salt := 0; salt < maxIDSaltAttempts; salt++ {
		id := storage.DeriveID(agentID, text, createdAt, salt)
		existing, err := d.store.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
		if existing.DecisionText == text && existing.RecordedBy == agentID {
			return id, nil // re-recording the same content is idempotent
		}
	}
	return "", fmt.Errorf("dispatch: could not derive a unique ID after %d attempts", maxIDSaltAttempts)
}

// updateDecision applies a partial patch to a pending decision. The store
// itself enforces field immutability once a decision has been reviewed.
func (d *Dispatcher) updateDecision(ctx context.Context, agentID string, p UpdateParams) (*model.Decision, error) {
	dec, err := d.store.Get(ctx, p.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound("decision not found: "+p.ID, err)
		}
		return nil, internalErr(err)
	}

	if p.Tags != nil {
		dec.Tags = p.Tags
	}
	if p.Context != nil {
		dec.Context = *p.Context
	}
	if p.ProjectContext != nil {
		dec.ProjectContext = *p.ProjectContext
	}
	if p.ReviewBy != nil {
		t, err := time.Parse(time.RFC3339, *p.ReviewBy)
		if err != nil {
			return nil, invalidParams("review_by must be RFC3339")
		}
		dec.ReviewBy = &t
	}
	if p.Pattern != nil {
		dec.Pattern = *p.Pattern
	}
	if p.Lessons != nil {
		dec.Lessons = *p.Lessons
	}
	dec.UpdatedAt = time.Now()

	if _, err := d.store.Put(ctx, dec); err != nil {
		if errors.Is(err, storage.ErrImmutableField) {
			return nil, invalidParams("cannot change immutable fields of a reviewed decision")
		}
		return nil, recordFailed(err)
	}

	if d.tracker != nil {
		d.tracker.TrackInput(agentID, dec.ID, model.DeliberationInput{
			ID: dec.ID, Text: "decision updated", Source: "updateDecision", Timestamp: time.Now(),
		})
	}
	return dec, nil
}

// reviewDecision transitions a decision to reviewed, records the outcome
// against the circuit breaker manager, and leaves it ready for calibration
// scoring.
func (d *Dispatcher) reviewDecision(ctx context.Context, agentID string, p ReviewParams) (*model.Decision, error) {
	dec, err := d.store.Get(ctx, p.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound("decision not found: "+p.ID, err)
		}
		return nil, internalErr(err)
	}

	now := time.Now()
	outcome := p.Outcome
	dec.Outcome = &outcome
	dec.OutcomeResult = p.OutcomeResult
	dec.Lessons = p.Lessons
	dec.Status = model.StatusReviewed
	dec.ReviewedAt = &now
	dec.UpdatedAt = now

	if _, err := d.store.Put(ctx, dec); err != nil {
		return nil, reviewFailed(err)
	}

	if d.breakers != nil {
		actionCtx := model.ActionContext{
			"decision_id": dec.ID,
			"category":    string(dec.Category),
			"stakes":      string(dec.Stakes),
			"agent":       dec.RecordedBy,
		}
		if dec.ProjectContext.Project != nil {
			actionCtx["project"] = *dec.ProjectContext.Project
		}
		if err := d.breakers.RecordOutcome(ctx, actionCtx, p.Outcome); err != nil {
			d.logger.Warn("dispatch: breaker outcome recording failed", "decision_id", dec.ID, "error", err)
		}
	}

	if d.graph != nil {
		if err := d.graph.DetectContradictions(ctx, dec.ID); err != nil {
			d.logger.Warn("dispatch: contradiction detection failed", "decision_id", dec.ID, "error", err)
		}
	}

	return dec, nil
}

// recordThought appends an explicit reasoning step to a deliberation
// session, either against a pending session (no decision recorded yet) or
// against an already-recorded decision, tracked in-place for replay or
// audit.
func (d *Dispatcher) recordThought(ctx context.Context, agentID string, p RecordThoughtParams) (model.DeliberationStep, error) {
	if d.tracker == nil {
		return model.DeliberationStep{}, invalidParams("deliberation tracking is not configured")
	}
	decisionID := p.DecisionID
	if decisionID == "" {
		decisionID = model.PendingDecisionID
	}

	step := model.DeliberationStep{
		Thought:    p.Thought,
		InputsUsed: p.InputsUsed,
		Timestamp:  time.Now(),
		Type:       p.Type,
	}

	d.tracker.TrackInput(agentID, decisionID, model.DeliberationInput{
		ID:        fmt.Sprintf("thought-%d", step.Timestamp.UnixNano()),
		Text:      p.Thought,
		Source:    "recordThought",
		Timestamp: step.Timestamp,
	})

	if decisionID != model.PendingDecisionID {
		dec, err := d.store.Get(ctx, decisionID)
		if err == nil {
			dec.Deliberation.Steps = append(dec.Deliberation.Steps, step)
			if _, err := d.store.Put(ctx, dec); err != nil {
				return model.DeliberationStep{}, recordFailed(err)
			}
		}
	}

	return step, nil
}

func (d *Dispatcher) linkDecisions(ctx context.Context, p LinkParams) error {
	if d.graph == nil {
		return invalidParams("graph is not configured")
	}
	if err := d.graph.Link(ctx, p.Source, p.Target, p.Type, p.Weight, p.LinkContext); err != nil {
		return internalErr(err)
	}
	return nil
}

// reindex rebuilds the keyword index's cached snapshot on demand, bypassing
// its TTL/row-count staleness check.
func (d *Dispatcher) reindex(ctx context.Context) error {
	if d.keyword == nil {
		return invalidParams("keyword index is not configured")
	}
	d.keyword.Invalidate()
	if err := d.keyword.Ensure(ctx); err != nil {
		return internalErr(err)
	}
	return nil
}
