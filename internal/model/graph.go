package model

import "time"

// EdgeType enumerates the typed relationships the Decision Graph tracks.
type EdgeType string

const (
	EdgeDependsOn  EdgeType = "depends_on"
	EdgeSupersedes EdgeType = "supersedes"
	EdgeContradicts EdgeType = "contradicts"
	EdgeRefines    EdgeType = "refines"
	EdgeRelatesTo  EdgeType = "relates_to"
	EdgeCausedBy   EdgeType = "caused_by"
	EdgeBlocks     EdgeType = "blocks"
)

// Edge is a directed, typed, weighted connection between two decisions.
type Edge struct {
	Source  string   `json:"source"`
	Target  string   `json:"target"`
	Type    EdgeType `json:"type"`
	Weight  float64  `json:"weight"` // (0,1]
	Context string   `json:"context,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// GraphNode is a decision metadata snapshot returned by graph traversal.
type GraphNode struct {
	ID       string   `json:"id"`
	Summary  string   `json:"summary"`
	Category Category `json:"category"`
	Stakes   Stakes   `json:"stakes"`
	Status   Status   `json:"status"`
	Salience float64  `json:"salience"`
}

// GraphView is the result of get_graph: nodes and edges within depth hops.
type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []Edge      `json:"edges"`
}

// ReadyAction is one entry in the ready queue's synthesised maintenance list.
type ReadyAction struct {
	Kind        string    `json:"kind"` // overdue_review | stale_pending | drift | contradiction
	DecisionID  string    `json:"decision_id,omitempty"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"` // lower = more urgent
	DetectedAt  time.Time `json:"detected_at"`
}
