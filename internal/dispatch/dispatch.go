package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tfatykhov/decisionintel/internal/breaker"
	"github.com/tfatykhov/decisionintel/internal/calibration"
	"github.com/tfatykhov/decisionintel/internal/embedding"
	"github.com/tfatykhov/decisionintel/internal/graph"
	"github.com/tfatykhov/decisionintel/internal/guardrail"
	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/retrieval"
	"github.com/tfatykhov/decisionintel/internal/storage"
	"github.com/tfatykhov/decisionintel/internal/telemetry"
	"github.com/tfatykhov/decisionintel/internal/tracker"
)

// Dispatcher is the method registry that fronts the service: every agent
// interaction funnels through Dispatch, which routes by method name,
// enforces the caller's deadline, and wires the Deliberation Tracker,
// auto-linking, and circuit-breaker recording around the underlying
// subsystem call.
type Dispatcher struct {
	store      *storage.Store
	tracker    *tracker.Tracker
	guardrails *guardrail.Engine
	breakers   *breaker.Manager
	calib      *calibration.Service
	graph      *graph.Graph
	retrieval  *retrieval.Engine
	keyword    *retrieval.Keyword
	embedder   embedding.Provider
	logger     *slog.Logger

	callDuration metric.Float64Histogram

	// recentQueries holds each agent's most recent queryDecisions results,
	// consumed by recordDecision to auto-link the new record against the
	// candidates the agent was just looking at. Keyed by agent ID.
	recentQueries sync.Map
}

// New wires a Dispatcher from its collaborators. Any of guardrails, breakers,
// calib, or graph may be nil to disable the corresponding dispatch methods;
// embedder may be the no-op provider.
func New(
	store *storage.Store,
	trk *tracker.Tracker,
	guardrails *guardrail.Engine,
	breakers *breaker.Manager,
	calib *calibration.Service,
	g *graph.Graph,
	retr *retrieval.Engine,
	keyword *retrieval.Keyword,
	embedder embedding.Provider,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	meter := telemetry.Meter("decisionintel/dispatch")
	dur, _ := meter.Float64Histogram("decisionintel.dispatch.duration",
		metric.WithDescription("Time to service a dispatch call (ms)"),
		metric.WithUnit("ms"),
	)
	return &Dispatcher{
		store:        store,
		tracker:      trk,
		guardrails:   guardrails,
		breakers:     breakers,
		calib:        calib,
		graph:        g,
		retrieval:    retr,
		keyword:      keyword,
		embedder:     embedder,
		logger:       logger,
		callDuration: dur,
	}
}

// Dispatch routes method to its handler, bounding the call by deadline. An
// unrecognized method name is an InvalidParams error rather than NotFound:
// NotFound is reserved for missing decision records.
func (d *Dispatcher) Dispatch(ctx context.Context, method, agentID string, deadline time.Time, params any) (result any, err error) {
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if d.callDuration != nil {
			d.callDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
		}
	}()

	switch method {
	case "queryDecisions":
		p, ok := params.(QueryParams)
		if !ok {
			return nil, invalidParams("queryDecisions requires QueryParams")
		}
		return d.queryDecisions(ctx, agentID, p)
	case "checkGuardrails":
		p, ok := params.(CheckGuardrailsParams)
		if !ok {
			return nil, invalidParams("checkGuardrails requires CheckGuardrailsParams")
		}
		return d.checkGuardrails(ctx, agentID, p)
	case "recordDecision":
		p, ok := params.(RecordParams)
		if !ok {
			return nil, invalidParams("recordDecision requires RecordParams")
		}
		return d.recordDecision(ctx, agentID, p)
	case "updateDecision":
		p, ok := params.(UpdateParams)
		if !ok {
			return nil, invalidParams("updateDecision requires UpdateParams")
		}
		return d.updateDecision(ctx, agentID, p)
	case "reviewDecision":
		p, ok := params.(ReviewParams)
		if !ok {
			return nil, invalidParams("reviewDecision requires ReviewParams")
		}
		return d.reviewDecision(ctx, agentID, p)
	case "getDecision":
		id, ok := params.(string)
		if !ok {
			return nil, invalidParams("getDecision requires a decision ID")
		}
		return d.getDecision(ctx, agentID, id)
	case "listDecisions":
		p, ok := params.(ListParams)
		if !ok {
			return nil, invalidParams("listDecisions requires ListParams")
		}
		return d.listDecisions(ctx, p)
	case "recordThought":
		p, ok := params.(RecordThoughtParams)
		if !ok {
			return nil, invalidParams("recordThought requires RecordThoughtParams")
		}
		return d.recordThought(ctx, agentID, p)
	case "getCalibration":
		f, ok := params.(model.QueryFilters)
		if !ok {
			return nil, invalidParams("getCalibration requires QueryFilters")
		}
		return d.getCalibration(ctx, f)
	case "getReasonStats":
		f, ok := params.(model.QueryFilters)
		if !ok {
			return nil, invalidParams("getReasonStats requires QueryFilters")
		}
		return d.getReasonStats(ctx, f)
	case "listGuardrails":
		return d.listGuardrails(ctx)
	case "linkDecisions":
		p, ok := params.(LinkParams)
		if !ok {
			return nil, invalidParams("linkDecisions requires LinkParams")
		}
		return nil, d.linkDecisions(ctx, p)
	case "getGraph":
		p, ok := params.(GetGraphParams)
		if !ok {
			return nil, invalidParams("getGraph requires GetGraphParams")
		}
		return d.getGraph(ctx, p)
	case "getNeighbors":
		p, ok := params.(GetNeighborsParams)
		if !ok {
			return nil, invalidParams("getNeighbors requires GetNeighborsParams")
		}
		return d.getNeighbors(p), nil
	case "getCircuitState":
		scope, ok := params.(string)
		if !ok {
			return nil, invalidParams("getCircuitState requires a scope string")
		}
		return d.getCircuitState(scope)
	case "resetCircuit":
		p, ok := params.(ResetCircuitParams)
		if !ok {
			return nil, invalidParams("resetCircuit requires ResetCircuitParams")
		}
		return nil, d.resetCircuit(p)
	case "ready":
		p, ok := params.(ReadyParams)
		if !ok {
			return nil, invalidParams("ready requires ReadyParams")
		}
		return d.ready(ctx, p)
	case "preAction":
		p, ok := params.(PreActionParams)
		if !ok {
			return nil, invalidParams("preAction requires PreActionParams")
		}
		return d.preAction(ctx, agentID, p)
	case "getSessionContext":
		p, ok := params.(SessionContextParams)
		if !ok {
			return nil, invalidParams("getSessionContext requires SessionContextParams")
		}
		return d.getSessionContext(ctx, p)
	case "reindex":
		return nil, d.reindex(ctx)
	default:
		return nil, invalidParams("unknown method: " + method)
	}
}
