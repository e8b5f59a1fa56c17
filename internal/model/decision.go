// Package model holds the data types shared across the decision store,
// retrieval engine, guardrail engine, breaker manager, calibration service,
// and decision graph. None of these types know how they are persisted.
package model

import "time"

// Category enumerates the decision categories a record can belong to.
type Category string

const (
	CategoryArchitecture Category = "architecture"
	CategoryProcess      Category = "process"
	CategoryIntegration  Category = "integration"
	CategoryTooling      Category = "tooling"
	CategorySecurity     Category = "security"
)

// Stakes enumerates how much is riding on a decision.
type Stakes string

const (
	StakesLow      Stakes = "low"
	StakesMedium   Stakes = "medium"
	StakesHigh     Stakes = "high"
	StakesCritical Stakes = "critical"
)

// Status is the lifecycle state of a decision record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewed  Status = "reviewed"
	StatusAbandoned Status = "abandoned"
)

// Outcome is attached when a decision transitions to StatusReviewed.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomePartial   Outcome = "partial"
	OutcomeFailure   Outcome = "failure"
	OutcomeAbandoned Outcome = "abandoned"
)

// OutcomeScalars maps an outcome to the numeric value used by Brier scoring
// and the "failure counts toward breakers" rule. Exported as a variable (not
// a constant) per the spec's open question on the partial scalar: a
// deployment with different calibration expectations can override it instead
// of forking the code.
var OutcomeScalars = map[Outcome]float64{
	OutcomeSuccess:   1.0,
	OutcomePartial:   0.5,
	OutcomeFailure:   0.0,
	OutcomeAbandoned: 0.0,
}

// ReasonType enumerates the kinds of justification a decision can cite.
type ReasonType string

const (
	ReasonAnalysis  ReasonType = "analysis"
	ReasonEmpirical ReasonType = "empirical"
	ReasonPattern   ReasonType = "pattern"
	ReasonAuthority ReasonType = "authority"
	ReasonConstraint ReasonType = "constraint"
	ReasonAnalogy   ReasonType = "analogy"
	ReasonIntuition ReasonType = "intuition"
	ReasonElimination ReasonType = "elimination"
)

// Reason is a single justification cited by a decision.
type Reason struct {
	Type     ReasonType `json:"type"`
	Text     string     `json:"text"`
	Strength float64    `json:"strength"` // [0,1], default 0.8
}

// Bridge is the Minsky-inspired dual description of a decision: its
// structural form (how it's implemented) and its functional purpose (why).
type Bridge struct {
	Structure  string `json:"structure,omitempty"`
	Function   string `json:"function,omitempty"`
	Tolerance  string `json:"tolerance,omitempty"`
	Enforcement string `json:"enforcement,omitempty"`
	Prevention string `json:"prevention,omitempty"`
}

// BridgeMethod records how a decision's bridge was populated.
type BridgeMethod string

const (
	BridgeExplicit      BridgeMethod = "explicit"
	BridgeRule          BridgeMethod = "rule"
	BridgeLLM           BridgeMethod = "llm"
	BridgeBothExtracted BridgeMethod = "both-extracted"
	BridgeNone          BridgeMethod = "none"
)

// DeliberationInput is a single piece of context an agent gathered before
// deciding: a query result, a guardrail check, a fetched record, or a
// manually recorded thought.
type DeliberationInput struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"` // dispatch method name that produced it
	Timestamp time.Time `json:"timestamp"`
}

// DeliberationStep is an explicit reasoning step recorded via recordThought.
type DeliberationStep struct {
	StepNo     int       `json:"step_no"`
	Thought    string    `json:"thought"`
	InputsUsed []string  `json:"inputs_used"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
}

// Deliberation is the full trace attached to a decision record.
type Deliberation struct {
	Inputs          []DeliberationInput `json:"inputs"`
	Steps           []DeliberationStep  `json:"steps"`
	TotalDurationMs int64               `json:"total_duration_ms"`
}

// RelatedEdge is a read-convenience materialisation of a graph edge; the
// graph itself remains the source of truth.
type RelatedEdge struct {
	TargetID string  `json:"target_id"`
	Summary  string  `json:"summary"`
	Distance float64 `json:"distance"`
}

// ProjectContext is optional provenance linking a decision to source control.
type ProjectContext struct {
	Project *string `json:"project,omitempty"`
	Feature *string `json:"feature,omitempty"`
	PR      *string `json:"pr,omitempty"`
	File    *string `json:"file,omitempty"`
	Line    *int    `json:"line,omitempty"`
	Commit  *string `json:"commit,omitempty"`
}

// Decision is the append-only core record of the service: a single
// assertion made by an agent, enriched with reasoning, tags, a bridge
// description, and the deliberation trace that preceded it.
type Decision struct {
	ID         string     `json:"id"` // 8 hex digits, content-derived
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	RecordedBy string     `json:"recorded_by"` // agent identifier

	DecisionText string   `json:"decision"`
	Confidence   float64  `json:"confidence"`
	Category     Category `json:"category"`
	Stakes       Stakes   `json:"stakes"`
	Context      string   `json:"context,omitempty"`

	Status       Status   `json:"status"`
	Outcome      *Outcome `json:"outcome,omitempty"`
	OutcomeResult string  `json:"outcome_result,omitempty"`
	Lessons      string   `json:"lessons,omitempty"`

	Reasons []Reason `json:"reasons"`
	Tags    []string `json:"tags"`
	Pattern string   `json:"pattern,omitempty"`

	Bridge       Bridge       `json:"bridge"`
	BridgeMethod BridgeMethod `json:"bridge_method,omitempty"`

	Deliberation Deliberation  `json:"deliberation"`
	Related      []RelatedEdge `json:"related,omitempty"`

	ProjectContext ProjectContext `json:"project_context"`

	// ReviewBy is an optional deadline used by the ready queue's "overdue
	// review" maintenance action. Not part of the distilled spec's field
	// list but harmless to omit; left nil unless a caller sets it via
	// recordDecision or updateDecision.
	ReviewBy *time.Time `json:"review_by,omitempty"`

	// Salience is populated by the Decision Graph on read; it is not part
	// of the persisted record.
	Salience *float64 `json:"salience,omitempty"`
}

// OutcomeScalar returns the numeric value used for Brier scoring, or 0 if
// the decision has no outcome yet.
func (d *Decision) OutcomeScalar() float64 {
	if d.Outcome == nil {
		return 0
	}
	return OutcomeScalars[*d.Outcome]
}

// Clone returns a deep-enough copy suitable for returning from Store.Get
// without letting a caller mutate the stored record through shared slices.
func (d *Decision) Clone() *Decision {
	cp := *d
	cp.Reasons = append([]Reason(nil), d.Reasons...)
	cp.Tags = append([]string(nil), d.Tags...)
	cp.Deliberation.Inputs = append([]DeliberationInput(nil), d.Deliberation.Inputs...)
	cp.Deliberation.Steps = append([]DeliberationStep(nil), d.Deliberation.Steps...)
	cp.Related = append([]RelatedEdge(nil), d.Related...)
	return &cp
}
