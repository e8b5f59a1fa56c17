// Package graph implements the Decision Graph: typed, weighted links
// between decisions, breadth-first traversal, PageRank-derived salience,
// and the ready-queue synthesis that feeds the dispatcher's maintenance
// operation.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/storage"
)

// autoLinkTopK is the default number of a tracked query's top results that
// recordDecision auto-links against.
const autoLinkTopK = 5

// autoLinkMinWeight and autoLinkMaxWeight clamp the weight derived from
// 1 - distance for auto-inserted relates_to edges.
const (
	autoLinkMinWeight = 0.05
	autoLinkMaxWeight = 1.0
)

// recomputeEveryDefault is how many edge mutations accumulate before
// salience is recomputed automatically, absent an explicit override.
const recomputeEveryDefault = 100

// pageRankDamping is the PageRank damping factor the spec fixes at 0.85.
const pageRankDamping = 0.85

const pageRankIterations = 40

// edgeKey identifies one (source, target, type) triple for duplicate
// detection; Link updates the weight in place instead of inserting a
// second edge for the same triple.
type edgeKey struct {
	source string
	target string
	typ    model.EdgeType
}

// Graph is the Decision Graph: an in-memory adjacency list persisted
// append-only to a storage.Journal, with copy-on-write salience snapshots
// so readers never block behind a recompute.
type Graph struct {
	store  *storage.Store
	journal *storage.Journal

	mu       sync.RWMutex
	edges    map[edgeKey]*model.Edge
	outgoing map[string][]*model.Edge

	mutations      int
	recomputeEvery int

	salienceMu sync.RWMutex
	salience   map[string]float64
}

// New creates a Decision Graph backed by store for endpoint validation and
// node metadata, and journal for crash-recoverable edge persistence.
// recomputeEvery overrides the default 100-mutation salience recompute
// cadence; 0 keeps the default.
func New(store *storage.Store, journal *storage.Journal, recomputeEvery int) *Graph {
	if recomputeEvery <= 0 {
		recomputeEvery = recomputeEveryDefault
	}
	return &Graph{
		store:          store,
		journal:        journal,
		edges:          make(map[edgeKey]*model.Edge),
		outgoing:       make(map[string][]*model.Edge),
		recomputeEvery: recomputeEvery,
		salience:       make(map[string]float64),
	}
}

// journalRecord is the on-disk shape of an edge mutation.
type journalRecord struct {
	Edge    model.Edge `json:"edge"`
	Deleted bool       `json:"deleted,omitempty"`
}

// Replay rebuilds the in-memory adjacency list from the journal at
// startup.
func (g *Graph) Replay() error {
	if g.journal == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.journal.Replay(func(line []byte) error {
		var rec journalRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("graph: replay decode: %w", err)
		}
		key := edgeKey{source: rec.Edge.Source, target: rec.Edge.Target, typ: rec.Edge.Type}
		if rec.Deleted {
			g.removeLocked(key)
			return nil
		}
		g.putLocked(key, rec.Edge)
		return nil
	})
}

func (g *Graph) putLocked(key edgeKey, e model.Edge) {
	if existing, ok := g.edges[key]; ok {
		existing.Weight = e.Weight
		existing.Context = e.Context
		return
	}
	stored := e
	g.edges[key] = &stored
	g.outgoing[key.source] = append(g.outgoing[key.source], &stored)
}

func (g *Graph) removeLocked(key edgeKey) {
	if _, ok := g.edges[key]; !ok {
		return
	}
	delete(g.edges, key)
	list := g.outgoing[key.source]
	for i, e := range list {
		if e.Target == key.target && e.Type == key.typ {
			g.outgoing[key.source] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// ErrSelfLoop is returned when Link is asked to connect a decision to
// itself.
var ErrSelfLoop = fmt.Errorf("graph: self-loop edges are not allowed")

// Link validates that both endpoints exist, rejects self-loops, and
// inserts a directed edge. A duplicate (source, target, type) updates the
// existing edge's weight and context instead of inserting a second edge.
func (g *Graph) Link(ctx context.Context, source, target string, edgeType model.EdgeType, weight float64, linkContext string) error {
	if source == target {
		return ErrSelfLoop
	}
	if weight <= 0 {
		weight = 1.0
	}

	if _, err := g.store.Get(ctx, source); err != nil {
		return fmt.Errorf("graph: source %s: %w", source, err)
	}
	if _, err := g.store.Get(ctx, target); err != nil {
		return fmt.Errorf("graph: target %s: %w", target, err)
	}

	edge := model.Edge{Source: source, Target: target, Type: edgeType, Weight: weight, Context: linkContext, AddedAt: time.Now()}
	key := edgeKey{source: source, target: target, typ: edgeType}

	g.mu.Lock()
	g.putLocked(key, edge)
	g.mutations++
	shouldRecompute := g.mutations%g.recomputeEvery == 0
	g.mu.Unlock()

	if g.journal != nil {
		if err := g.journal.Append(journalRecord{Edge: edge}); err != nil {
			return fmt.Errorf("graph: persist edge: %w", err)
		}
	}

	if shouldRecompute {
		go g.RecomputeSalience(context.Background()) //nolint:errcheck // best-effort background recompute
	}
	return nil
}

// AutoLink inserts relates_to edges from newDecisionID to each of the
// top-K candidates (by ascending distance), weighted 1 - distance clamped
// to [0.05, 1.0]. Called by the dispatcher after a successful
// recordDecision using that agent's most recently tracked query results.
func (g *Graph) AutoLink(ctx context.Context, newDecisionID string, candidates []model.RetrievalResult) error {
	k := autoLinkTopK
	if len(candidates) < k {
		k = len(candidates)
	}
	for _, c := range candidates[:k] {
		weight := clamp(1-c.Distance, autoLinkMinWeight, autoLinkMaxWeight)
		if err := g.Link(ctx, newDecisionID, c.ID, model.EdgeRelatesTo, weight, ""); err != nil {
			return err
		}
	}
	return nil
}

// contradictionTopicFloor is the minimum relates_to edge weight (a proxy
// for 1 - semantic distance at auto-link time) for two decisions to be
// considered about the same thing closely enough that diverging outcomes
// are worth flagging.
const contradictionTopicFloor = 0.6

// contradictionOutcomeDivFloor is the minimum absolute difference between
// two reviewed decisions' outcome scalars (1.0 success .. 0.0 failure) for
// them to count as a genuine disagreement rather than noise.
const contradictionOutcomeDivFloor = 0.5

// DetectContradictions inspects reviewedID's outgoing relates_to edges
// (laid down by AutoLink when the decision was recorded) and promotes any
// whose target also carries an outcome that diverges sharply from
// reviewedID's, inserting a contradicts edge alongside the existing
// relates_to one. Called by the dispatcher after reviewDecision records an
// outcome, since outcome divergence cannot be judged until both sides of
// a pair have been reviewed.
func (g *Graph) DetectContradictions(ctx context.Context, reviewedID string) error {
	reviewed, err := g.store.Get(ctx, reviewedID)
	if err != nil {
		return fmt.Errorf("graph: detect contradictions: %w", err)
	}
	if reviewed.Outcome == nil {
		return nil
	}

	relates := model.EdgeRelatesTo
	neighbors := g.GetNeighbors(reviewedID, &relates)

	for _, edge := range neighbors {
		if edge.Weight < contradictionTopicFloor {
			continue
		}
		cand, err := g.store.Get(ctx, edge.Target)
		if err != nil || cand.Outcome == nil {
			continue
		}
		div := reviewed.OutcomeScalar() - cand.OutcomeScalar()
		if div < 0 {
			div = -div
		}
		if div < contradictionOutcomeDivFloor {
			continue
		}
		if err := g.Link(ctx, reviewedID, edge.Target, model.EdgeContradicts, div, "outcome divergence"); err != nil {
			return fmt.Errorf("graph: link contradiction %s -> %s: %w", reviewedID, edge.Target, err)
		}
	}
	return nil
}

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

// GetNeighbors returns the one-hop outgoing edges from id, optionally
// restricted to edgeType.
func (g *Graph) GetNeighbors(id string, edgeType *model.EdgeType) []model.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []model.Edge
	for _, e := range g.outgoing[id] {
		if edgeType != nil && e.Type != *edgeType {
			continue
		}
		result = append(result, *e)
	}
	return result
}

// GetGraph returns the nodes and edges reachable from root within depth
// directed hops, restricted to edgeTypes when non-empty.
func (g *Graph) GetGraph(ctx context.Context, root string, depth int, edgeTypes []model.EdgeType) (model.GraphView, error) {
	allowed := make(map[model.EdgeType]bool, len(edgeTypes))
	for _, t := range edgeTypes {
		allowed[t] = true
	}

	visited := map[string]bool{root: true}
	frontier := []string{root}
	var collectedEdges []model.Edge

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, e := range g.GetNeighbors(id, nil) {
				if len(allowed) > 0 && !allowed[e.Type] {
					continue
				}
				collectedEdges = append(collectedEdges, e)
				if !visited[e.Target] {
					visited[e.Target] = true
					next = append(next, e.Target)
				}
			}
		}
		frontier = next
	}

	nodes := make([]model.GraphNode, 0, len(visited))
	for id := range visited {
		d, err := g.store.Get(ctx, id)
		if err != nil {
			continue
		}
		nodes = append(nodes, model.GraphNode{
			ID:       d.ID,
			Summary:  d.DecisionText,
			Category: d.Category,
			Stakes:   d.Stakes,
			Status:   d.Status,
			Salience: g.Salience(d.ID),
		})
	}

	return model.GraphView{Nodes: nodes, Edges: collectedEdges}, nil
}

// Salience returns a decision's last-computed PageRank salience, or 0 if
// it has never appeared in a recompute.
func (g *Graph) Salience(id string) float64 {
	g.salienceMu.RLock()
	defer g.salienceMu.RUnlock()
	return g.salience[id]
}
