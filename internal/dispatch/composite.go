package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/tfatykhov/decisionintel/internal/model"
)

// preAction is the single round-trip an agent makes right before taking a
// consequential action: it retrieves similar precedent, evaluates
// guardrails against the proposed action context, optionally records the
// decision in the same call, and attaches a one-line calibration note for
// the decision's category so the agent sees its own track record alongside
// the guardrail verdict.
func (d *Dispatcher) preAction(ctx context.Context, agentID string, p PreActionParams) (PreActionResult, error) {
	var result PreActionResult

	retrieved, err := d.queryDecisions(ctx, agentID, QueryParams{
		Text:    p.Text,
		Filters: p.Filters,
		Limit:   5,
		Mode:    model.ModeHybrid,
	})
	if err != nil {
		return PreActionResult{}, err
	}
	result.Retrieval = retrieved

	guardrailResult, err := d.checkGuardrails(ctx, agentID, CheckGuardrailsParams{ActionContext: p.ActionContext})
	if err != nil {
		return PreActionResult{}, err
	}
	result.Guardrails = guardrailResult

	if p.AutoRecord != nil && guardrailResult.Allowed {
		dec, err := d.recordDecision(ctx, agentID, *p.AutoRecord)
		if err != nil {
			return PreActionResult{}, err
		}
		result.RecordedID = dec.ID
	}

	if d.calib != nil && p.AutoRecord != nil {
		cat := p.AutoRecord.Category
		calib, err := d.calib.Compute(ctx, model.QueryFilters{Category: &cat})
		if err == nil {
			result.CalibrationNote = calibrationNote(cat, calib)
		}
	}

	return result, nil
}

func calibrationNote(cat model.Category, c model.Calibration) string {
	if c.SampleSize == 0 {
		return fmt.Sprintf("no reviewed history yet for %s", cat)
	}
	return fmt.Sprintf("%s: %.0f%% accuracy over %d reviewed decisions (brier %.3f)",
		cat, c.Accuracy*100, c.SampleSize, c.BrierScore)
}

// getSessionContext assembles a single-call situational brief: similar
// precedent, the active guardrail set, a calibration summary, the ready
// queue, and any graph patterns touching the top retrieval hit. Format
// selects between a machine-readable struct and a markdown brief an agent
// can drop straight into its own context window.
func (d *Dispatcher) getSessionContext(ctx context.Context, p SessionContextParams) (any, error) {
	var retrieved []model.RetrievalResult
	if p.Query != "" {
		var err error
		retrieved, err = d.queryDecisions(ctx, p.AgentID, QueryParams{Text: p.Query, Filters: p.Filters, Limit: 5, Mode: model.ModeHybrid})
		if err != nil {
			return nil, err
		}
	}

	guardrails, err := d.listGuardrails(ctx)
	if err != nil {
		return nil, err
	}

	var calib model.Calibration
	if d.calib != nil {
		calib, err = d.calib.Compute(ctx, p.Filters)
		if err != nil {
			return nil, internalErr(err)
		}
	}

	var ready []model.ReadyAction
	if d.graph != nil {
		ready, err = d.graph.ReadyQueue(ctx, d.store, d.calib, p.Categories)
		if err != nil {
			return nil, internalErr(err)
		}
	}

	var neighbors []model.Edge
	if d.graph != nil && len(retrieved) > 0 {
		neighbors = d.graph.GetNeighbors(retrieved[0].ID, nil)
	}

	brief := sessionBrief{
		Retrieval:  retrieved,
		Guardrails: guardrails,
		Calibration: calib,
		Ready:      ready,
		Neighbors:  neighbors,
	}

	if strings.EqualFold(p.Format, "markdown") {
		return brief.markdown(), nil
	}
	return brief, nil
}

type sessionBrief struct {
	Retrieval   []model.RetrievalResult
	Guardrails  []model.Guardrail
	Calibration model.Calibration
	Ready       []model.ReadyAction
	Neighbors   []model.Edge
}

func (b sessionBrief) markdown() string {
	var sb strings.Builder
	sb.WriteString("## Similar precedent\n")
	if len(b.Retrieval) == 0 {
		sb.WriteString("- none found\n")
	}
	for _, r := range b.Retrieval {
		fmt.Fprintf(&sb, "- [%s] %s (confidence %.2f, %s)\n", r.ID, r.Summary, r.Confidence, r.Status)
	}

	sb.WriteString("\n## Active guardrails\n")
	if len(b.Guardrails) == 0 {
		sb.WriteString("- none configured\n")
	}
	for _, g := range b.Guardrails {
		fmt.Fprintf(&sb, "- [%s] %s (%s)\n", g.ID, g.Description, g.Action)
	}

	sb.WriteString("\n## Calibration\n")
	if b.Calibration.SampleSize == 0 {
		sb.WriteString("- no reviewed history yet\n")
	} else {
		fmt.Fprintf(&sb, "- accuracy %.0f%%, brier %.3f over %d decisions\n",
			b.Calibration.Accuracy*100, b.Calibration.BrierScore, b.Calibration.SampleSize)
		if b.Calibration.Drift != nil {
			sb.WriteString("- drift detected relative to baseline\n")
		}
	}

	sb.WriteString("\n## Ready queue\n")
	if len(b.Ready) == 0 {
		sb.WriteString("- nothing pending\n")
	}
	for _, a := range b.Ready {
		fmt.Fprintf(&sb, "- [%s] %s\n", a.Kind, a.Description)
	}

	if len(b.Neighbors) > 0 {
		sb.WriteString("\n## Related decisions\n")
		for _, e := range b.Neighbors {
			fmt.Fprintf(&sb, "- %s -> %s (%s, weight %.2f)\n", e.Source, e.Target, e.Type, e.Weight)
		}
	}

	return sb.String()
}
