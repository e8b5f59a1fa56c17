// Package retrieval implements the Retrieval Engine: semantic, keyword, and
// weighted-hybrid search over the Decision Store, with directional
// bridge-side queries and graceful degradation when the vector backend is
// unreachable.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tfatykhov/decisionintel/internal/embedding"
	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/storage"
	"github.com/tfatykhov/decisionintel/internal/vectorstore"
)

// ErrQueryFailed is returned when a purely-semantic query cannot be served
// because the vector backend is unreachable. Hybrid queries never return it:
// they degrade to keyword-only instead.
var ErrQueryFailed = errors.New("retrieval: query failed")

// defaultSemanticWeight and defaultKeywordWeight are the hybrid merge
// weights used when the caller does not override them.
const (
	defaultSemanticWeight = 0.7
	defaultKeywordWeight  = 0.3
)

// poolMultiplier is how many times limit each sub-query requests before the
// candidate pools are unioned and cut back down to limit.
const poolMultiplier = 2

// semanticFallbackDistance is assigned to a candidate that matched on
// keyword terms but fell outside the semantic candidate pool, so a missing
// side never wins a tie against an actual near match.
const semanticFallbackDistance = 1.0

// Hit is a single raw keyword match: a decision ID and its unbounded BM25
// score (higher is more relevant).
type Hit struct {
	ID    string
	Score float64
}

func sortHitsDesc(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}

// Engine is the Retrieval Engine: it fronts the Decision Store's vector
// backend and BM25 keyword index with the query contract's mode selection,
// hybrid merge, and metadata post-filter.
type Engine struct {
	store    *storage.Store
	embedder embedding.Provider
	vectors  vectorstore.Store
	keyword  *Keyword
	logger   *slog.Logger

	semanticWeight float64
	keywordWeight  float64
}

// New creates a Retrieval Engine with the spec's default hybrid weights
// (semantic 0.7, keyword 0.3).
func New(store *storage.Store, embedder embedding.Provider, vectors vectorstore.Store, keyword *Keyword, logger *slog.Logger) *Engine {
	return &Engine{
		store:          store,
		embedder:       embedder,
		vectors:        vectors,
		keyword:        keyword,
		logger:         logger,
		semanticWeight: defaultSemanticWeight,
		keywordWeight:  defaultKeywordWeight,
	}
}

// WithWeights overrides the hybrid merge weights (e.g. for the (1,0)/(0,1)
// degenerate cases used to validate pure-mode equivalence).
func (e *Engine) WithWeights(semantic, keyword float64) {
	e.semanticWeight = semantic
	e.keywordWeight = keyword
}

// Query is the query(text, filters, limit, mode, bridge_side) contract.
// mode defaults to hybrid and bridge_side to the full-record representation
// when left unset.
func (e *Engine) Query(ctx context.Context, text string, filters model.QueryFilters, limit int, mode model.RetrievalMode, bridgeSide model.BridgeSide) ([]model.RetrievalResult, error) {
	if mode == "" {
		mode = model.ModeHybrid
	}
	if limit <= 0 {
		limit = 10
	}
	poolSize := limit * poolMultiplier

	var semanticHits map[string]float64
	var keywordHits map[string]float64
	var semanticErr error

	g, gCtx := errgroup.WithContext(ctx)
	if mode != model.ModeKeyword {
		g.Go(func() error {
			hits, err := e.searchSemantic(gCtx, text, poolSize)
			if err != nil {
				semanticErr = err
				return nil // surfaced explicitly below, not as a group failure
			}
			semanticHits = hits
			return nil
		})
	}
	if mode != model.ModeSemantic {
		g.Go(func() error {
			hits, err := e.keyword.Search(gCtx, text, bridgeSide, poolSize)
			if err != nil {
				return err
			}
			keywordHits = make(map[string]float64, len(hits))
			for _, h := range hits {
				keywordHits[h.ID] = h.Score
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	degraded := false
	switch mode {
	case model.ModeSemantic:
		if semanticErr != nil {
			return nil, ErrQueryFailed
		}
	case model.ModeHybrid:
		if semanticErr != nil {
			e.logger.Warn("retrieval: vector backend unreachable, degrading to keyword-only", "error", semanticErr)
			degraded = true
			semanticHits = nil
		}
	}

	candidates := unionCandidates(semanticHits, keywordHits)
	bm25Norm := minMaxNormalize(keywordHits)

	results := make([]model.RetrievalResult, 0, len(candidates))
	for id := range candidates {
		d, err := e.store.Get(ctx, id)
		if err != nil {
			continue
		}
		if !matchesFilters(d, filters) {
			continue
		}

		var scores model.Scores
		scores.Keyword = bm25Norm[id]

		var combined float64
		switch {
		case mode == model.ModeKeyword, degraded:
			combined = 1 - scores.Keyword
		case mode == model.ModeSemantic:
			dist, ok := semanticHits[id]
			if !ok {
				dist = semanticFallbackDistance
			}
			dist2 := dist
			scores.Semantic = &dist2
			combined = dist
		default:
			dist, ok := semanticHits[id]
			if !ok {
				dist = semanticFallbackDistance
			}
			dist2 := dist
			scores.Semantic = &dist2
			combined = e.semanticWeight*dist + e.keywordWeight*(1-scores.Keyword)
		}
		scores.Combined = combined

		results = append(results, model.RetrievalResult{
			ID:         d.ID,
			Summary:    d.DecisionText,
			Category:   d.Category,
			Confidence: d.Confidence,
			Stakes:     d.Stakes,
			Status:     d.Status,
			Date:       d.CreatedAt,
			Distance:   combined,
			Scores:     scores,
			Bridge:     bridgeResult(d),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Date.After(b.Date)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FindSimilar satisfies guardrail.SemanticFinder: it embeds query, finds
// decisions within threshold distance, and counts how many also match
// outcome and fall within the last sinceDays. Returns 0 without error when
// no vector backend is configured, so a `semantic` guardrail condition
// fails open instead of blocking every request.
func (e *Engine) FindSimilar(ctx context.Context, query string, outcome model.Outcome, sinceDays int, threshold float64) (int, error) {
	if e.vectors == nil {
		return 0, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return 0, err
	}
	hits, err := e.vectors.Query(ctx, vec.Slice(), poolSize100, nil)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -sinceDays)
	count := 0
	for _, h := range hits {
		if h.Distance > threshold {
			continue
		}
		d, err := e.store.Get(ctx, h.ID)
		if err != nil {
			continue
		}
		if sinceDays > 0 && d.CreatedAt.Before(cutoff) {
			continue
		}
		if d.Outcome != nil && *d.Outcome == outcome {
			count++
		}
	}
	return count, nil
}

// poolSize100 bounds the candidate pool a guardrail's semantic condition
// scans; guardrail conditions only need a match count, not ranked results.
const poolSize100 = 100

func bridgeResult(d *model.Decision) *model.Bridge {
	if d.Bridge.Structure == "" && d.Bridge.Function == "" {
		return nil
	}
	b := d.Bridge
	return &b
}

func (e *Engine) searchSemantic(ctx context.Context, text string, n int) (map[string]float64, error) {
	if e.vectors == nil {
		return nil, vectorstore.ErrUnavailable
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	hits, err := e.vectors.Query(ctx, vec.Slice(), n, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		out[h.ID] = h.Distance
	}
	return out, nil
}

func unionCandidates(a, b map[string]float64) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for id := range a {
		out[id] = true
	}
	for id := range b {
		out[id] = true
	}
	return out
}

// minMaxNormalize rescales raw BM25 scores into [0, 1] over the candidate
// pool. A candidate with no keyword score normalizes to 0 (no match); when
// every scored candidate ties, they all normalize to 1 (equally relevant).
func minMaxNormalize(raw map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(raw))
	if len(raw) == 0 {
		return out
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range raw {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	for id, v := range raw {
		if max == min {
			out[id] = 1
			continue
		}
		out[id] = (v - min) / (max - min)
	}
	return out
}

// matchesFilters applies the shared metadata filter grammar in-memory, after
// the candidate pool has already been assembled from the semantic and
// keyword sub-queries.
func matchesFilters(d *model.Decision, f model.QueryFilters) bool {
	if f.Category != nil && d.Category != *f.Category {
		return false
	}
	if f.Stakes != nil && d.Stakes != *f.Stakes {
		return false
	}
	if f.Status != nil && d.Status != *f.Status {
		return false
	}
	if f.Agent != nil && d.RecordedBy != *f.Agent {
		return false
	}
	if len(f.Tags) > 0 && !anyTagMatches(d.Tags, f.Tags) {
		return false
	}
	if f.Project != nil {
		if d.ProjectContext.Project == nil || *d.ProjectContext.Project != *f.Project {
			return false
		}
	}
	if f.DateRange != nil {
		if f.DateRange.From != nil && d.CreatedAt.Before(*f.DateRange.From) {
			return false
		}
		if f.DateRange.To != nil && d.CreatedAt.After(*f.DateRange.To) {
			return false
		}
	}
	if f.HasOutcome != nil {
		if *f.HasOutcome && d.Outcome == nil {
			return false
		}
		if !*f.HasOutcome && d.Outcome != nil {
			return false
		}
	}
	if f.ConfidenceMin != nil && d.Confidence < *f.ConfidenceMin {
		return false
	}
	return true
}

func anyTagMatches(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}
