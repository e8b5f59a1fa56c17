package model

// BucketInterpretation labels how a confidence bucket's calibration gap
// should be read.
type BucketInterpretation string

const (
	WellCalibrated         BucketInterpretation = "well_calibrated"
	Overconfident          BucketInterpretation = "overconfident"
	SlightlyOverconfident  BucketInterpretation = "slightly_overconfident"
	Underconfident         BucketInterpretation = "underconfident"
	SlightlyUnderconfident BucketInterpretation = "slightly_underconfident"
)

// ConfidenceBucket aggregates reviewed decisions whose stated confidence
// fell within [Low, High).
type ConfidenceBucket struct {
	Low            float64              `json:"low"`
	High           float64              `json:"high"`
	Decisions      int                  `json:"decisions"`
	SuccessRate    float64              `json:"success_rate"`
	ExpectedRate   float64              `json:"expected_rate"` // bin midpoint
	Gap            float64              `json:"gap"`
	Interpretation BucketInterpretation `json:"interpretation"`
}

// DriftAlert is emitted when recent calibration has worsened meaningfully
// relative to baseline history.
type DriftAlert struct {
	Category        *Category `json:"category,omitempty"`
	BaselineBrier   float64   `json:"baseline_brier"`
	RecentBrier     float64   `json:"recent_brier"`
	BaselineAccuracy float64  `json:"baseline_accuracy"`
	RecentAccuracy  float64   `json:"recent_accuracy"`
	BrierWorsenedPct float64  `json:"brier_worsened_pct"`
	AccuracyDropPct float64   `json:"accuracy_dropped_pct"`
}

// ReasonStats aggregates outcomes for a single reason type.
type ReasonStats struct {
	Type          ReasonType `json:"type"`
	TotalUses     int        `json:"total_uses"`
	ReviewedUses  int        `json:"reviewed_uses"`
	SuccessCount  int        `json:"success_count"`
	AvgConfidence float64    `json:"avg_confidence"`
	AvgStrength   float64    `json:"avg_strength"`
	BrierScore    float64    `json:"brier_score"`
}

// Calibration is the full result of getCalibration.
type Calibration struct {
	SampleSize        int                `json:"sample_size"`
	BrierScore        float64            `json:"brier_score"`
	Accuracy          float64            `json:"accuracy"`
	CalibrationGap    float64            `json:"calibration_gap"`
	Buckets           []ConfidenceBucket `json:"buckets"`
	ConfidenceStdDev  float64            `json:"confidence_stddev"`
	ConfidenceMin     float64            `json:"confidence_min"`
	ConfidenceMax     float64            `json:"confidence_max"`
	HabituationFlag   bool               `json:"habituation_flag"`
	QualityScore      float64            `json:"quality_score"`
	Drift             *DriftAlert        `json:"drift,omitempty"`
}

// ReasonStatsResult is the output of getReasonStats.
type ReasonStatsResult struct {
	Stats     []ReasonStats `json:"stats"`
	Diversity float64       `json:"diversity"` // avg distinct reason types per decision
}
