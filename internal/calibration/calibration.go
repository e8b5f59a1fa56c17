// Package calibration computes read-only calibration and quality metrics
// over the reviewed subset of the Decision Store: Brier score, accuracy,
// confidence buckets, drift against a historical baseline, and per-reason
// outcome statistics. Nothing outside the Store is mutated.
package calibration

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/storage"
)

// Window is a convenience translator to a date_from/date_to pair.
type Window string

const (
	Window30d Window = "30d"
	Window60d Window = "60d"
	Window90d Window = "90d"
	WindowAll Window = "all"
)

// DateRange translates a Window into an explicit *model.DateRange relative
// to now. WindowAll returns nil (no bound).
func (w Window) DateRange(now time.Time) *model.DateRange {
	var days int
	switch w {
	case Window30d:
		days = 30
	case Window60d:
		days = 60
	case Window90d:
		days = 90
	default:
		return nil
	}
	from := now.AddDate(0, 0, -days)
	return &model.DateRange{From: &from}
}

// habituationStdDevFloor and habituationMinSample gate the "habituation"
// flag: confidence stddev below the floor across at least this many
// reviewed decisions suggests an agent is not differentiating its
// confidence across decisions.
const (
	habituationStdDevFloor = 0.05
	habituationMinSample   = 10
)

// driftBrierWorsenPct and driftAccuracyDropPct are the thresholds at which
// a recent 30-day window's calibration is considered to have drifted from
// its baseline.
const (
	driftBrierWorsenPct  = 0.20
	driftAccuracyDropPct = 0.10
	driftBaselineMinDays = 90
)

// listPageSize bounds a single List call; Compute pages through the full
// matching set rather than assuming it fits in one page.
const listPageSize = 2000

// Service computes calibration metrics over the Decision Store.
type Service struct {
	store           *storage.Store
	baselineMinDays int
}

// New creates a Service. baselineMinDays is the minimum age, in days, a
// reviewed decision must have to count toward the drift baseline (spec
// default: 90).
func New(store *storage.Store, baselineMinDays int) *Service {
	if baselineMinDays <= 0 {
		baselineMinDays = driftBaselineMinDays
	}
	return &Service{store: store, baselineMinDays: baselineMinDays}
}

// Compute derives Brier score, accuracy, calibration gap, confidence
// buckets, variance, a habituation flag, and a drift alert (when
// sufficient baseline history exists) over the reviewed decisions matching
// filters.
func (s *Service) Compute(ctx context.Context, filters model.QueryFilters) (model.Calibration, error) {
	reviewed := model.StatusReviewed
	filters.Status = &reviewed

	decisions, err := s.listAll(ctx, filters)
	if err != nil {
		return model.Calibration{}, err
	}

	calib := computeMetrics(decisions)
	calib.SampleSize = len(decisions)

	drift, err := s.computeDrift(ctx, filters, decisions)
	if err != nil {
		return model.Calibration{}, err
	}
	calib.Drift = drift

	return calib, nil
}

func (s *Service) listAll(ctx context.Context, filters model.QueryFilters) ([]*model.Decision, error) {
	var all []*model.Decision
	offset := 0
	for {
		page, err := s.store.List(ctx, filters, listPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("calibration: list reviewed decisions: %w", err)
		}
		all = append(all, page.Decisions...)
		offset += len(page.Decisions)
		if len(page.Decisions) < listPageSize || offset >= page.Total {
			break
		}
	}
	return all, nil
}

func computeMetrics(decisions []*model.Decision) model.Calibration {
	if len(decisions) == 0 {
		return model.Calibration{Buckets: buildEmptyBuckets()}
	}

	var brierSum, accurateCount, confidenceSum, qualitySum float64
	confidences := make([]float64, 0, len(decisions))

	for _, d := range decisions {
		scalar := d.OutcomeScalar()
		brierSum += (d.Confidence - scalar) * (d.Confidence - scalar)
		if scalar >= 0.5 {
			accurateCount++
		}
		confidenceSum += d.Confidence
		confidences = append(confidences, d.Confidence)
		qualitySum += decisionQualityScore(d)
	}

	n := float64(len(decisions))
	brier := brierSum / n
	accuracy := accurateCount / n
	meanConfidence := confidenceSum / n
	gap := accuracy - meanConfidence

	stddev, min, max := confidenceStats(confidences, meanConfidence)

	return model.Calibration{
		BrierScore:       brier,
		Accuracy:         accuracy,
		CalibrationGap:   gap,
		Buckets:          bucketize(decisions),
		ConfidenceStdDev: stddev,
		ConfidenceMin:    min,
		ConfidenceMax:    max,
		HabituationFlag:  stddev < habituationStdDevFloor && len(decisions) >= habituationMinSample,
		QualityScore:     qualitySum / n,
	}
}

// decisionQualityScore weighs how well-supported a single decision's record
// is, independent of whether its outcome turned out well: reason diversity,
// evidence density, and whether stated confidence tracks stakes. Distinct
// from Brier/accuracy, which score whether the outcome matched the
// confidence, not how the decision was justified.
//
// Factor weights: reason presence (0.30), reason type diversity (0.20),
// context substance (0.20), tags/pattern present (0.15),
// confidence-stakes alignment (0.15).
func decisionQualityScore(d *model.Decision) float64 {
	var score float64

	if len(d.Reasons) > 0 {
		score += 0.30
		types := make(map[model.ReasonType]bool, len(d.Reasons))
		for _, r := range d.Reasons {
			types[r.Type] = true
		}
		diversity := float64(len(types)) / float64(len(d.Reasons))
		score += 0.20 * diversity
	}

	if len(d.Context) > 50 {
		score += 0.20
	} else if len(d.Context) > 0 {
		score += 0.10
	}

	if len(d.Tags) > 0 {
		score += 0.075
	}
	if d.Pattern != "" {
		score += 0.075
	}

	score += 0.15 * confidenceStakesAlignment(d.Confidence, d.Stakes)

	return score
}

// confidenceStakesAlignment rewards high confidence paired with low stakes
// or measured confidence paired with high stakes, and penalizes the
// inverse: a critical-stakes call made at extreme (near-0 or near-1)
// confidence is the pattern decision-quality scoring exists to flag.
func confidenceStakesAlignment(confidence float64, stakes model.Stakes) float64 {
	extremity := math.Abs(confidence-0.5) * 2 // 0 at 0.5, 1 at 0 or 1
	switch stakes {
	case model.StakesCritical, model.StakesHigh:
		return 1 - extremity
	default:
		return 1
	}
}

func confidenceStats(values []float64, mean float64) (stddev, min, max float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	min, max = values[0], values[0]
	var sumSq float64
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sumSq += (v - mean) * (v - mean)
	}
	stddev = math.Sqrt(sumSq / float64(len(values)))
	return stddev, min, max
}

// bucketBounds are the five confidence bins: four half-open ranges plus the
// exact-1.0 singleton.
var bucketBounds = []struct {
	low, high float64
}{
	{0, 0.5},
	{0.5, 0.7},
	{0.7, 0.9},
	{0.9, 1.0},
	{1.0, 1.0},
}

func buildEmptyBuckets() []model.ConfidenceBucket {
	buckets := make([]model.ConfidenceBucket, len(bucketBounds))
	for i, b := range bucketBounds {
		buckets[i] = model.ConfidenceBucket{Low: b.low, High: b.high, ExpectedRate: midpoint(b.low, b.high)}
	}
	return buckets
}

func midpoint(low, high float64) float64 {
	if low == high {
		return low
	}
	return (low + high) / 2
}

// bucketIndex returns which of the five bins a confidence value falls into.
// 1.0 lands in the final singleton bucket exactly; every other value lands
// in the half-open bin [low, high).
func bucketIndex(confidence float64) int {
	if confidence >= 1.0 {
		return len(bucketBounds) - 1
	}
	for i, b := range bucketBounds[:len(bucketBounds)-1] {
		if confidence >= b.low && confidence < b.high {
			return i
		}
	}
	return len(bucketBounds) - 2
}

func bucketize(decisions []*model.Decision) []model.ConfidenceBucket {
	buckets := buildEmptyBuckets()
	successCounts := make([]float64, len(buckets))

	for _, d := range decisions {
		idx := bucketIndex(d.Confidence)
		buckets[idx].Decisions++
		if d.OutcomeScalar() >= 0.5 {
			successCounts[idx]++
		}
	}

	for i := range buckets {
		if buckets[i].Decisions == 0 {
			continue
		}
		rate := successCounts[i] / float64(buckets[i].Decisions)
		buckets[i].SuccessRate = rate
		buckets[i].Gap = rate - buckets[i].ExpectedRate
		buckets[i].Interpretation = interpretGap(buckets[i].Gap)
	}
	return buckets
}

func interpretGap(gap float64) model.BucketInterpretation {
	switch {
	case math.Abs(gap) < 0.05:
		return model.WellCalibrated
	case gap <= -0.15:
		return model.Overconfident
	case gap < 0:
		return model.SlightlyOverconfident
	case gap >= 0.15:
		return model.Underconfident
	default:
		return model.SlightlyUnderconfident
	}
}

// computeDrift compares the most recent 30-day window to a baseline drawn
// from reviewed decisions older than baselineMinDays. Returns nil if the
// baseline has too little history to be meaningful (the empty case: no
// baseline decisions at all).
func (s *Service) computeDrift(ctx context.Context, filters model.QueryFilters, recentAll []*model.Decision) (*model.DriftAlert, error) {
	now := time.Now()
	recentCutoff := now.AddDate(0, 0, -30)

	var recent []*model.Decision
	for _, d := range recentAll {
		if d.CreatedAt.After(recentCutoff) {
			recent = append(recent, d)
		}
	}
	if len(recent) == 0 {
		return nil, nil
	}

	baselineCutoff := now.AddDate(0, 0, -s.baselineMinDays)
	baselineFilters := filters
	baselineFilters.DateRange = &model.DateRange{To: &baselineCutoff}
	baseline, err := s.listAll(ctx, baselineFilters)
	if err != nil {
		return nil, fmt.Errorf("calibration: list baseline decisions: %w", err)
	}
	if len(baseline) == 0 {
		return nil, nil
	}

	recentMetrics := computeMetrics(recent)
	baselineMetrics := computeMetrics(baseline)

	var brierWorsenedPct, accuracyDropPct float64
	if baselineMetrics.BrierScore > 0 {
		brierWorsenedPct = (recentMetrics.BrierScore - baselineMetrics.BrierScore) / baselineMetrics.BrierScore
	}
	if baselineMetrics.Accuracy > 0 {
		accuracyDropPct = (baselineMetrics.Accuracy - recentMetrics.Accuracy) / baselineMetrics.Accuracy
	}

	if brierWorsenedPct < driftBrierWorsenPct && accuracyDropPct < driftAccuracyDropPct {
		return nil, nil
	}

	return &model.DriftAlert{
		Category:         filters.Category,
		BaselineBrier:    baselineMetrics.BrierScore,
		RecentBrier:      recentMetrics.BrierScore,
		BaselineAccuracy: baselineMetrics.Accuracy,
		RecentAccuracy:   recentMetrics.Accuracy,
		BrierWorsenedPct: brierWorsenedPct,
		AccuracyDropPct:  accuracyDropPct,
	}, nil
}
