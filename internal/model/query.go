package model

import "time"

// RetrievalMode selects how the Retrieval Engine combines semantic and
// keyword search.
type RetrievalMode string

const (
	ModeSemantic RetrievalMode = "semantic"
	ModeKeyword  RetrievalMode = "keyword"
	ModeHybrid   RetrievalMode = "hybrid"
)

// BridgeSide selects which half of a decision's bridge description the
// retrieval engine should prefer as the query target.
type BridgeSide string

const (
	BridgeSideStructure BridgeSide = "structure"
	BridgeSideFunction  BridgeSide = "function"
	BridgeSideBoth      BridgeSide = "both"
)

// DateRange bounds a query by decision creation date.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// QueryFilters is the shared filter grammar used by both the Decision Store's
// list operation and the Retrieval Engine's metadata post-filter.
type QueryFilters struct {
	Category      *Category
	Stakes        *Stakes
	Status        *Status
	Agent         *string
	Tags          []string // match any
	Project       *string
	DateRange     *DateRange
	Search        *string // not applied: Store.List and the retrieval post-filter ignore it
	HasOutcome    *bool
	ConfidenceMin *float64
}

// Scores breaks down a retrieval result's distance into its components.
// Semantic is nil when the vector backend was unreachable and retrieval
// degraded to keyword-only.
type Scores struct {
	Semantic *float64 `json:"semantic"`
	Keyword  float64  `json:"keyword"`
	Combined float64  `json:"combined"`
}

// RetrievalResult is a single hit returned by the Retrieval Engine.
type RetrievalResult struct {
	ID         string   `json:"id"`
	Summary    string   `json:"summary"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Stakes     Stakes   `json:"stakes"`
	Status     Status   `json:"status"`
	Date       time.Time `json:"date"`
	Distance   float64  `json:"distance"`
	Scores     Scores   `json:"scores"`
	Bridge     *Bridge  `json:"bridge,omitempty"`
}

// Page is a filtered, paginated, total-counted slice of decisions.
type Page struct {
	Decisions []*Decision
	Total     int
	Offset    int
	Limit     int
}
