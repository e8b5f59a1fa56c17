package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/tfatykhov/decisionintel/internal/calibration"
	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/storage"
)

// stalePendingAge is how long a pending decision sits before it is
// flagged regardless of whether it carries an explicit review_by.
const stalePendingAge = 30 * 24 * time.Hour

// Priority tiers for ready-queue entries, lower is more urgent.
const (
	priorityOverdueReview = 1
	priorityContradiction = 2
	priorityDrift         = 3
	priorityStalePending  = 4
)

// ReadyQueue synthesises prioritized maintenance actions: overdue reviews
// (pending decisions past their review_by), stale pending decisions (over
// 30 days old regardless of review_by), per-category calibration drift,
// and contradicts edges leading out of a pending decision; contradicts
// edges whose source is a reviewed decision are not listed. store is
// queried directly for pending decisions; calib (which
// may be nil to skip the drift pass) supplies per-category drift.
func (g *Graph) ReadyQueue(ctx context.Context, store *storage.Store, calib *calibration.Service, categories []model.Category) ([]model.ReadyAction, error) {
	now := time.Now()
	pending := model.StatusPending
	page, err := store.List(ctx, model.QueryFilters{Status: &pending}, 2000, 0)
	if err != nil {
		return nil, fmt.Errorf("graph: ready queue: list pending: %w", err)
	}

	var actions []model.ReadyAction

	for _, d := range page.Decisions {
		if d.ReviewBy != nil && now.After(*d.ReviewBy) {
			actions = append(actions, model.ReadyAction{
				Kind:        "overdue_review",
				DecisionID:  d.ID,
				Description: fmt.Sprintf("decision %s is past its review deadline", d.ID),
				Priority:    priorityOverdueReview,
				DetectedAt:  now,
			})
			continue
		}
		if now.Sub(d.CreatedAt) > stalePendingAge {
			actions = append(actions, model.ReadyAction{
				Kind:        "stale_pending",
				DecisionID:  d.ID,
				Description: fmt.Sprintf("decision %s has been pending for over 30 days", d.ID),
				Priority:    priorityStalePending,
				DetectedAt:  now,
			})
		}
	}

	for _, d := range page.Decisions {
		for _, e := range g.GetNeighbors(d.ID, edgeTypePtr(model.EdgeContradicts)) {
			actions = append(actions, model.ReadyAction{
				Kind:        "contradiction",
				DecisionID:  d.ID,
				Description: fmt.Sprintf("decision %s contradicts %s", d.ID, e.Target),
				Priority:    priorityContradiction,
				DetectedAt:  now,
			})
		}
	}

	if calib != nil {
		for _, cat := range categories {
			cat := cat
			result, err := calib.Compute(ctx, model.QueryFilters{Category: &cat})
			if err != nil {
				return nil, fmt.Errorf("graph: ready queue: calibration for %s: %w", cat, err)
			}
			if result.Drift == nil {
				continue
			}
			actions = append(actions, model.ReadyAction{
				Kind:        "drift",
				Description: fmt.Sprintf("calibration drift detected for category %s", cat),
				Priority:    priorityDrift,
				DetectedAt:  now,
			})
		}
	}

	return actions, nil
}

func edgeTypePtr(t model.EdgeType) *model.EdgeType { return &t }
