package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfatykhov/decisionintel/internal/model"
)

func reviewedDecision(confidence float64, outcome model.Outcome, reasons ...model.Reason) *model.Decision {
	return &model.Decision{
		Status:     model.StatusReviewed,
		Confidence: confidence,
		Outcome:    &outcome,
		CreatedAt:  time.Now(),
		Reasons:    reasons,
	}
}

func TestComputeMetrics_BrierAndAccuracy(t *testing.T) {
	decisions := []*model.Decision{
		reviewedDecision(0.9, model.OutcomeSuccess),
		reviewedDecision(0.2, model.OutcomeFailure),
		reviewedDecision(0.8, model.OutcomeFailure),
	}

	calib := computeMetrics(decisions)

	assert.InDelta(t, (0.01+0.04+0.64)/3, calib.BrierScore, 1e-9)
	assert.InDelta(t, 1.0/3.0, calib.Accuracy, 1e-9)
}

func TestComputeMetrics_CalibrationGap(t *testing.T) {
	decisions := []*model.Decision{
		reviewedDecision(0.9, model.OutcomeSuccess),
		reviewedDecision(0.9, model.OutcomeFailure),
	}
	calib := computeMetrics(decisions)
	assert.InDelta(t, 0.5-0.9, calib.CalibrationGap, 1e-9)
}

func TestBucketIndex_HalfOpenRangesAndExactOne(t *testing.T) {
	assert.Equal(t, 0, bucketIndex(0.0))
	assert.Equal(t, 0, bucketIndex(0.49))
	assert.Equal(t, 1, bucketIndex(0.5))
	assert.Equal(t, 2, bucketIndex(0.7))
	assert.Equal(t, 3, bucketIndex(0.9))
	assert.Equal(t, 3, bucketIndex(0.999))
	assert.Equal(t, 4, bucketIndex(1.0))
}

func TestBucketize_CountsAndSuccessRates(t *testing.T) {
	decisions := []*model.Decision{
		reviewedDecision(0.95, model.OutcomeSuccess),
		reviewedDecision(0.95, model.OutcomeSuccess),
		reviewedDecision(0.95, model.OutcomeFailure),
	}
	buckets := bucketize(decisions)
	require.Len(t, buckets, 5)
	assert.Equal(t, 3, buckets[3].Decisions)
	assert.InDelta(t, 2.0/3.0, buckets[3].SuccessRate, 1e-9)
}

func TestInterpretGap_Labels(t *testing.T) {
	assert.Equal(t, model.WellCalibrated, interpretGap(0.01))
	assert.Equal(t, model.Overconfident, interpretGap(-0.2))
	assert.Equal(t, model.SlightlyOverconfident, interpretGap(-0.1))
	assert.Equal(t, model.Underconfident, interpretGap(0.2))
	assert.Equal(t, model.SlightlyUnderconfident, interpretGap(0.1))
}

func TestComputeMetrics_HabituationFlag(t *testing.T) {
	var decisions []*model.Decision
	for i := 0; i < 12; i++ {
		decisions = append(decisions, reviewedDecision(0.8, model.OutcomeSuccess))
	}
	calib := computeMetrics(decisions)
	assert.True(t, calib.HabituationFlag, "near-zero stddev across >=10 decisions should flag habituation")
}

func TestComputeMetrics_NoHabituationBelowMinSample(t *testing.T) {
	decisions := []*model.Decision{
		reviewedDecision(0.8, model.OutcomeSuccess),
		reviewedDecision(0.8, model.OutcomeSuccess),
	}
	calib := computeMetrics(decisions)
	assert.False(t, calib.HabituationFlag)
}

func TestComputeMetrics_EmptySetReturnsEmptyBuckets(t *testing.T) {
	calib := computeMetrics(nil)
	assert.Equal(t, 0, calib.SampleSize)
	require.Len(t, calib.Buckets, 5)
}

func TestWindow_DateRange(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	r := Window30d.DateRange(now)
	require.NotNil(t, r)
	assert.Equal(t, now.AddDate(0, 0, -30), *r.From)

	assert.Nil(t, WindowAll.DateRange(now))
}

func TestConfidenceStats_MinMaxStdDev(t *testing.T) {
	stddev, min, max := confidenceStats([]float64{0.2, 0.5, 0.8}, 0.5)
	assert.Equal(t, 0.2, min)
	assert.Equal(t, 0.8, max)
	assert.Greater(t, stddev, 0.0)
}

func TestDecisionQualityScore_RewardsSupportedRecord(t *testing.T) {
	sparse := &model.Decision{Confidence: 0.9, Stakes: model.StakesLow}
	rich := &model.Decision{
		Confidence: 0.6,
		Stakes:     model.StakesCritical,
		Reasons: []model.Reason{
			{Type: model.ReasonEmpirical}, {Type: model.ReasonAnalysis}, {Type: model.ReasonPattern},
		},
		Context: "postmortem showed the cache eviction policy thrashed under the traffic spike",
		Tags:    []string{"caching"},
		Pattern: "cache-thrash",
	}

	assert.Less(t, decisionQualityScore(sparse), decisionQualityScore(rich))
	assert.LessOrEqual(t, decisionQualityScore(rich), 1.0)
}

func TestDecisionQualityScore_ReasonDiversityBeatsRepetition(t *testing.T) {
	repeated := &model.Decision{
		Reasons: []model.Reason{{Type: model.ReasonEmpirical}, {Type: model.ReasonEmpirical}},
	}
	diverse := &model.Decision{
		Reasons: []model.Reason{{Type: model.ReasonEmpirical}, {Type: model.ReasonAuthority}},
	}
	assert.Less(t, decisionQualityScore(repeated), decisionQualityScore(diverse))
}

func TestConfidenceStakesAlignment_PenalizesExtremeConfidenceAtHighStakes(t *testing.T) {
	assert.Equal(t, 0.0, confidenceStakesAlignment(1.0, model.StakesCritical))
	assert.Equal(t, 1.0, confidenceStakesAlignment(0.5, model.StakesCritical))
	assert.Equal(t, 1.0, confidenceStakesAlignment(1.0, model.StakesLow))
}
