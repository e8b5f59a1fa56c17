package calibration

import (
	"context"
	"fmt"

	"github.com/tfatykhov/decisionintel/internal/model"
)

// reasonAccumulator collects running sums for one reason type before the
// final per-type averages and Brier score are derived.
type reasonAccumulator struct {
	totalUses     int
	reviewedUses  int
	successCount  int
	confidenceSum float64
	strengthSum   float64
	brierSum      int // count of reviewed uses contributing to brierSumValue
	brierSumValue float64
}

// ReasonStats reports per-reason-type usage and outcome statistics, plus a
// diversity metric (average distinct reason types cited per decision),
// over decisions matching filters. Unlike Compute, this is not restricted
// to reviewed decisions: total_uses counts every citation regardless of
// review status, while reviewed-only fields are computed on the subset
// that has an outcome.
func (s *Service) ReasonStats(ctx context.Context, filters model.QueryFilters) (model.ReasonStatsResult, error) {
	decisions, err := s.listAll(ctx, filters)
	if err != nil {
		return model.ReasonStatsResult{}, fmt.Errorf("calibration: reason stats: %w", err)
	}

	acc := make(map[model.ReasonType]*reasonAccumulator)
	var totalDistinctTypes, decisionsWithReasons int

	for _, d := range decisions {
		seenTypes := make(map[model.ReasonType]bool)
		for _, r := range d.Reasons {
			seenTypes[r.Type] = true

			a, ok := acc[r.Type]
			if !ok {
				a = &reasonAccumulator{}
				acc[r.Type] = a
			}
			a.totalUses++

			if d.Status != model.StatusReviewed || d.Outcome == nil {
				continue
			}
			a.reviewedUses++
			a.confidenceSum += d.Confidence
			a.strengthSum += r.Strength
			scalar := d.OutcomeScalar()
			if scalar >= 0.5 {
				a.successCount++
			}
			a.brierSum++
			a.brierSumValue += (d.Confidence - scalar) * (d.Confidence - scalar)
		}
		if len(seenTypes) > 0 {
			totalDistinctTypes += len(seenTypes)
			decisionsWithReasons++
		}
	}

	stats := make([]model.ReasonStats, 0, len(acc))
	for reasonType, a := range acc {
		rs := model.ReasonStats{
			Type:         reasonType,
			TotalUses:    a.totalUses,
			ReviewedUses: a.reviewedUses,
			SuccessCount: a.successCount,
		}
		if a.reviewedUses > 0 {
			rs.AvgConfidence = a.confidenceSum / float64(a.reviewedUses)
			rs.AvgStrength = a.strengthSum / float64(a.reviewedUses)
		}
		if a.brierSum > 0 {
			rs.BrierScore = a.brierSumValue / float64(a.brierSum)
		}
		stats = append(stats, rs)
	}

	var diversity float64
	if decisionsWithReasons > 0 {
		diversity = float64(totalDistinctTypes) / float64(decisionsWithReasons)
	}

	return model.ReasonStatsResult{Stats: stats, Diversity: diversity}, nil
}
