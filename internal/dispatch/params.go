package dispatch

import "github.com/tfatykhov/decisionintel/internal/model"

// QueryParams is the input to queryDecisions.
type QueryParams struct {
	Text       string
	Filters    model.QueryFilters
	Limit      int
	Mode       model.RetrievalMode
	BridgeSide model.BridgeSide
}

// CheckGuardrailsParams is the input to checkGuardrails.
type CheckGuardrailsParams struct {
	ActionContext model.ActionContext
}

// RecordParams is the input to recordDecision.
type RecordParams struct {
	DecisionText   string
	Confidence     float64
	Category       model.Category
	Stakes         model.Stakes
	Context        string
	Reasons        []model.Reason
	Tags           []string
	Pattern        string
	Bridge         *model.Bridge // explicit bridge; nil triggers rule extraction
	ProjectContext model.ProjectContext
	ReviewBy       *string // RFC3339, optional
}

// UpdateParams is the input to updateDecision. Only the non-nil fields are
// applied; the store itself rejects mutation of immutable fields once a
// decision has been reviewed.
type UpdateParams struct {
	ID             string
	Tags           []string
	Context        *string
	ProjectContext *model.ProjectContext
	ReviewBy       *string
	Pattern        *string
	Lessons        *string
}

// ReviewParams is the input to reviewDecision.
type ReviewParams struct {
	ID            string
	Outcome       model.Outcome
	OutcomeResult string
	Lessons       string
}

// RecordThoughtParams is the input to recordThought.
type RecordThoughtParams struct {
	DecisionID string // model.PendingDecisionID if no record exists yet
	Thought    string
	InputsUsed []string
	Type       string
}

// LinkParams is the input to linkDecisions.
type LinkParams struct {
	Source      string
	Target      string
	Type        model.EdgeType
	Weight      float64
	LinkContext string
}

// GetGraphParams is the input to getGraph.
type GetGraphParams struct {
	Root      string
	Depth     int
	EdgeTypes []model.EdgeType
}

// GetNeighborsParams is the input to getNeighbors.
type GetNeighborsParams struct {
	ID       string
	EdgeType *model.EdgeType
}

// ListParams is the input to listDecisions.
type ListParams struct {
	Filters model.QueryFilters
	Limit   int
	Offset  int
}

// ResetCircuitParams is the input to resetCircuit.
type ResetCircuitParams struct {
	Scope      string
	ProbeFirst bool
}

// ReadyParams is the input to the ready queue composite operation.
type ReadyParams struct {
	Categories []model.Category
}

// PreActionParams is the input to the preAction composite operation.
type PreActionParams struct {
	Text          string
	Filters       model.QueryFilters
	ActionContext model.ActionContext
	AutoRecord    *RecordParams // nil to skip recording
}

// PreActionResult is the output of preAction.
type PreActionResult struct {
	Retrieval        []model.RetrievalResult
	Guardrails       model.GuardrailResult
	RecordedID       string // empty unless AutoRecord was supplied and succeeded
	CalibrationNote  string
}

// SessionContextParams is the input to getSessionContext.
type SessionContextParams struct {
	AgentID    string
	Query      string
	Filters    model.QueryFilters
	Categories []model.Category
	Format     string // "json" or "markdown"
}
