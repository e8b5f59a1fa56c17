package model

// GuardrailAction is the enforcement level of a guardrail requirement.
type GuardrailAction string

const (
	ActionBlock GuardrailAction = "block"
	ActionWarn  GuardrailAction = "warn"
	ActionLog   GuardrailAction = "log"
)

// Operator enumerates comparison operators for v1 field conditions.
type Operator string

const (
	OpEq     Operator = "="
	OpNeq    Operator = "!="
	OpLt     Operator = "<"
	OpGt     Operator = ">"
	OpLte    Operator = "<="
	OpGte    Operator = ">="
	OpIn     Operator = "in"
	OpNotIn  Operator = "not in"
)

// ConditionKind distinguishes v1 field conditions from v2 structured
// evaluators.
type ConditionKind string

const (
	ConditionField     ConditionKind = "field"
	ConditionSemantic  ConditionKind = "semantic"
	ConditionTemporal  ConditionKind = "temporal"
	ConditionAggregate ConditionKind = "aggregate"
	ConditionCompound  ConditionKind = "compound"
)

// AggregateMetric enumerates the metrics an aggregate condition can compare.
type AggregateMetric string

const (
	MetricSuccessRate  AggregateMetric = "success_rate"
	MetricFailureRate  AggregateMetric = "failure_rate"
	MetricAvgConfidence AggregateMetric = "avg_confidence"
)

// Condition is a single guardrail test. Exactly one of the typed payloads
// below is populated, selected by Kind.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	// ConditionField.
	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`

	// ConditionSemantic.
	QueryField      string  `json:"query_field,omitempty"`
	FilterOutcome   Outcome `json:"filter_outcome,omitempty"`
	FilterSinceDays int     `json:"filter_since_days,omitempty"`
	MinMatches      int     `json:"min_matches,omitempty"`
	DistanceThreshold float64 `json:"distance_threshold,omitempty"`

	// ConditionTemporal.
	WindowHours   int `json:"window_hours,omitempty"`
	MaxOccurrences int `json:"max_occurrences,omitempty"`

	// ConditionAggregate.
	Metric         AggregateMetric `json:"metric,omitempty"`
	AggregateField string          `json:"aggregate_field,omitempty"`
	AggregateValue any             `json:"aggregate_value,omitempty"`
	Threshold      float64         `json:"threshold,omitempty"`
	CompareOp      Operator        `json:"compare_op,omitempty"`

	// ConditionCompound.
	Logic  string      `json:"logic,omitempty"` // "and" | "or"
	Nested []Condition `json:"nested,omitempty"`
}

// Requirement is a boolean check run against the evaluation context once a
// guardrail's conditions have all matched.
type Requirement struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

// Guardrail is a declarative policy: a scope, a set of conditions that gate
// whether it applies, and a set of requirements whose failure produces a
// violation, warning, or audit-only log entry.
type Guardrail struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Scope       *string         `json:"scope,omitempty"` // nil = global
	Conditions  []Condition     `json:"conditions"`
	Requirements []Requirement  `json:"requirements"`
	Action      GuardrailAction `json:"action"`
	Message     string          `json:"message"`
}

// Violation is produced when a block-action requirement fails.
type Violation struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`

	// Populated only for circuit_breaker violations.
	Type            string   `json:"type,omitempty"`
	State           string   `json:"state,omitempty"`
	FailureRate     *float64 `json:"failure_rate,omitempty"`
	RecentFailures  int      `json:"recent_failures,omitempty"`
	Suggestion      string   `json:"suggestion,omitempty"`
	ResetAtUnix     int64    `json:"reset_at,omitempty"`
}

// Warning is produced when a warn-action requirement fails.
type Warning struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// GuardrailResult is the output of a checkGuardrails call.
type GuardrailResult struct {
	Allowed        bool      `json:"allowed"`
	Violations     []Violation `json:"violations"`
	Warnings       []Warning   `json:"warnings"`
	EvaluatedCount int         `json:"evaluated_count"`
}

// ActionContext is the evaluation context passed to the Guardrail Engine:
// the proposed action plus whatever fields guardrail conditions reference.
type ActionContext map[string]any
