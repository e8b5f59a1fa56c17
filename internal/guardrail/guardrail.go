// Package guardrail implements the Guardrail Engine: declarative policies
// evaluated against a proposed action, producing violations, warnings, and
// audit entries.
package guardrail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/storage"
)

// sourceCacheTTL is how long a loaded set of guardrails is reused before the
// source is re-scanned.
const sourceCacheTTL = 5 * time.Minute

// Source loads the declarative guardrail documents that govern a deployment.
// Implementations may read from a file, a directory of files, or a database
// table; the Engine only cares about the decoded result.
type Source interface {
	Load(ctx context.Context) ([]model.Guardrail, error)
}

// Engine evaluates guardrails against an action context, consulting the
// Decision Store for temporal, aggregate, and semantic conditions.
type Engine struct {
	source Source
	store  *storage.Store
	finder SemanticFinder
	logger *slog.Logger

	mu       sync.Mutex
	cached   []model.Guardrail
	cachedAt time.Time
	group    singleflight.Group
}

// SemanticFinder embeds a query string and returns how many decisions have
// stored vectors within threshold distance of it, restricted by outcome and
// recency. It is satisfied by the retrieval engine's semantic search path;
// a nil SemanticFinder makes `semantic` conditions always fail open (no
// match), which is safer than blocking every request when embeddings are
// unconfigured.
type SemanticFinder interface {
	FindSimilar(ctx context.Context, query string, outcome model.Outcome, sinceDays int, threshold float64) (matchCount int, err error)
}

// New creates a Guardrail Engine backed by source for policy documents and
// store for conditions that inspect prior decisions. finder may be nil.
func New(source Source, store *storage.Store, finder SemanticFinder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{source: source, store: store, finder: finder, logger: logger}
}

// Invalidate forces the next Evaluate call to re-scan the guardrail source
// instead of serving the cached set.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cachedAt = time.Time{}
}

// loadGuardrails serves the cached set when fresh. On a stale cache, concurrent
// callers collapse into a single source.Load via the singleflight group instead
// of each re-scanning the source independently.
func (e *Engine) loadGuardrails(ctx context.Context) ([]model.Guardrail, error) {
	e.mu.Lock()
	if !e.cachedAt.IsZero() && time.Since(e.cachedAt) < sourceCacheTTL {
		defer e.mu.Unlock()
		return e.cached, nil
	}
	e.mu.Unlock()

	v, err, _ := e.group.Do("load", func() (any, error) {
		loaded, err := e.source.Load(ctx)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.cached = loaded
		e.cachedAt = time.Now()
		e.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Guardrail), nil
}

// List returns the currently loaded (or freshly loaded) guardrail set, for
// read-only inspection by the dispatch surface's listGuardrails method.
func (e *Engine) List(ctx context.Context) ([]model.Guardrail, error) {
	return e.loadGuardrails(ctx)
}

// Evaluate runs every loaded guardrail whose scope matches actionCtx and
// returns the aggregate result. A guardrail whose conditions do not all
// match is skipped entirely; one whose conditions match but whose
// requirements fail contributes a violation, warning, or audit-only log
// line depending on its action.
func (e *Engine) Evaluate(ctx context.Context, actionCtx model.ActionContext) (model.GuardrailResult, error) {
	guardrails, err := e.loadGuardrails(ctx)
	if err != nil {
		return model.GuardrailResult{}, err
	}

	result := model.GuardrailResult{Allowed: true}

	for _, g := range guardrails {
		if !scopeMatches(g.Scope, actionCtx) {
			continue
		}

		result.EvaluatedCount++

		allMatch := true
		for _, c := range g.Conditions {
			matched, err := e.evaluateCondition(ctx, c, actionCtx)
			if err != nil {
				e.logger.Warn("guardrail condition evaluation failed", "guardrail_id", g.ID, "error", err)
				allMatch = false
				break
			}
			if !matched {
				allMatch = false
				break
			}
		}
		if !allMatch {
			continue
		}

		for _, req := range g.Requirements {
			if requirementSatisfied(actionCtx, req) {
				continue
			}
			switch g.Action {
			case model.ActionBlock:
				result.Violations = append(result.Violations, model.Violation{
					RuleID:  g.ID,
					Message: g.Message,
					Field:   req.Field,
				})
			case model.ActionWarn:
				result.Warnings = append(result.Warnings, model.Warning{
					RuleID:  g.ID,
					Message: g.Message,
					Field:   req.Field,
				})
			case model.ActionLog:
				e.logger.Info("guardrail audit", "guardrail_id", g.ID, "field", req.Field, "message", g.Message)
			}
		}
	}

	result.Allowed = len(result.Violations) == 0
	return result, nil
}

// scopeMatches reports whether a guardrail's scope applies to actionCtx. A
// nil scope is global. Otherwise the scope string must equal
// actionCtx["project"] or actionCtx["scope"].
func scopeMatches(scope *string, actionCtx model.ActionContext) bool {
	if scope == nil {
		return true
	}
	if v, ok := actionCtx["project"].(string); ok && v == *scope {
		return true
	}
	if v, ok := actionCtx["scope"].(string); ok && v == *scope {
		return true
	}
	return false
}

// requirementSatisfied treats a requirement as a presence-and-truthiness
// check on the named context field: absent, nil, false, or "" all count as
// failure per the spec's "absence is failure" rule.
func requirementSatisfied(actionCtx model.ActionContext, req model.Requirement) bool {
	v, ok := actionCtx[req.Field]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	default:
		return true
	}
}
