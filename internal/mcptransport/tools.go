package mcptransport

import (
	"context"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/tfatykhov/decisionintel/internal/dispatch"
	"github.com/tfatykhov/decisionintel/internal/model"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("decisionintel_check",
			mcplib.WithDescription(`Look up precedent and evaluate guardrails before making a decision.

WHEN TO USE: BEFORE making any non-trivial decision. Returns similar prior
decisions (hybrid semantic+keyword search), the guardrail evaluation for the
proposed action, and a calibration note for the category so you can judge
whether your intended confidence is realistic.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("text", mcplib.Description("The decision you're about to make, in natural language."), mcplib.Required()),
			mcplib.WithString("category", mcplib.Description("architecture | process | integration | tooling | security")),
			mcplib.WithString("stakes", mcplib.Description("low | medium | high | critical")),
			mcplib.WithString("agent_id", mcplib.Description("Your agent identifier. Defaults to \"agent\".")),
			mcplib.WithNumber("limit", mcplib.Description("Not applied: the check always returns up to 5 precedents."), mcplib.DefaultNumber(5)),
		),
		s.handleCheck,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("decisionintel_record",
			mcplib.WithDescription(`Record a decision so there is a durable trace of what was decided and why.

Call decisionintel_check first. Include category, stakes, and an honest
confidence — 0.6 is a fine answer when you're genuinely unsure.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithString("decision", mcplib.Description("What you decided, stated as a fact."), mcplib.Required()),
			mcplib.WithNumber("confidence", mcplib.Description("0.0 (guessing) to 1.0 (certain)"), mcplib.Required(), mcplib.Min(0), mcplib.Max(1)),
			mcplib.WithString("category", mcplib.Description("architecture | process | integration | tooling | security"), mcplib.Required()),
			mcplib.WithString("stakes", mcplib.Description("low | medium | high | critical"), mcplib.Required()),
			mcplib.WithString("agent_id", mcplib.Description("Your agent identifier. Defaults to \"agent\".")),
			mcplib.WithString("context", mcplib.Description("Supporting context for the decision.")),
			mcplib.WithString("tags", mcplib.Description("Comma-separated tags.")),
			mcplib.WithString("pattern", mcplib.Description("A named pattern this decision follows, if any.")),
			mcplib.WithString("review_by", mcplib.Description("RFC3339 deadline for a follow-up review.")),
		),
		s.handleRecord,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("decisionintel_query",
			mcplib.WithDescription("Search the decision store by free text, with optional category/stakes/status/agent filters."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("text", mcplib.Description("Free-text or semantic query. Empty returns recent decisions.")),
			mcplib.WithString("category", mcplib.Description("Filter by category.")),
			mcplib.WithString("stakes", mcplib.Description("Filter by stakes.")),
			mcplib.WithString("status", mcplib.Description("pending | reviewed | abandoned")),
			mcplib.WithString("agent_id", mcplib.Description("Filter to decisions recorded by this agent.")),
			mcplib.WithString("mode", mcplib.Description("semantic | keyword | hybrid (default)")),
			mcplib.WithNumber("limit", mcplib.DefaultNumber(10)),
		),
		s.handleQuery,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("decisionintel_get",
			mcplib.WithDescription("Fetch a single decision record by its ID, including its full deliberation trace."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("id", mcplib.Required()),
			mcplib.WithString("agent_id", mcplib.Description("Your agent identifier. Defaults to \"agent\".")),
		),
		s.handleGet,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("decisionintel_list",
			mcplib.WithDescription("Paginated, filtered listing of decisions — use for exact-criteria browsing rather than similarity search."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("category", mcplib.Description("Filter by category.")),
			mcplib.WithString("stakes", mcplib.Description("Filter by stakes.")),
			mcplib.WithString("status", mcplib.Description("pending | reviewed | abandoned")),
			mcplib.WithString("agent_id", mcplib.Description("Filter to decisions recorded by this agent.")),
			mcplib.WithNumber("limit", mcplib.DefaultNumber(20)),
			mcplib.WithNumber("offset", mcplib.DefaultNumber(0)),
		),
		s.handleList,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("decisionintel_review",
			mcplib.WithDescription("Attach an observed outcome to a previously recorded decision, feeding the calibration and breaker subsystems."),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithString("id", mcplib.Required()),
			mcplib.WithString("outcome", mcplib.Description("success | partial | failure | abandoned"), mcplib.Required()),
			mcplib.WithString("outcome_result", mcplib.Description("What actually happened.")),
			mcplib.WithString("lessons", mcplib.Description("What would change next time.")),
			mcplib.WithString("agent_id", mcplib.Description("Your agent identifier. Defaults to \"agent\".")),
		),
		s.handleReview,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("decisionintel_thought",
			mcplib.WithDescription("Record an explicit reasoning step in a decision's deliberation trace, independent of the automatic query/guardrail capture."),
			mcplib.WithString("decision_id", mcplib.Description("Target decision ID, or omit while still deliberating before recordDecision.")),
			mcplib.WithString("thought", mcplib.Required()),
			mcplib.WithString("type", mcplib.Description("Free-form step classification, e.g. \"hypothesis\" or \"rejection\".")),
			mcplib.WithString("agent_id", mcplib.Description("Your agent identifier. Defaults to \"agent\".")),
		),
		s.handleThought,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("decisionintel_session",
			mcplib.WithDescription(`One-shot session brief: precedents, active guardrails, calibration, the
maintenance ready queue, and decisions related to the top precedent. Call
this once at the start of a task instead of several separate lookups.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("query", mcplib.Description("What you're about to work on.")),
			mcplib.WithString("categories", mcplib.Description("Comma-separated categories to scope the ready queue to.")),
			mcplib.WithString("format", mcplib.Description("json (default) or markdown")),
			mcplib.WithString("agent_id", mcplib.Description("Your agent identifier. Defaults to \"agent\".")),
		),
		s.handleSession,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("decisionintel_graph",
			mcplib.WithDescription("Traverse the decision graph from a root decision, returning nodes and edges within depth hops."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("root", mcplib.Required()),
			mcplib.WithNumber("depth", mcplib.DefaultNumber(2)),
			mcplib.WithString("edge_types", mcplib.Description("Comma-separated edge types to restrict the traversal to.")),
		),
		s.handleGraph,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("decisionintel_ready",
			mcplib.WithDescription("The maintenance ready queue: overdue reviews, stale pending decisions, calibration drift, and unresolved contradictions."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("categories", mcplib.Description("Comma-separated categories to scope to. Empty scans all.")),
		),
		s.handleReady,
	)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func agentIDOf(req mcplib.CallToolRequest) string {
	if id := req.GetString("agent_id", ""); id != "" {
		return id
	}
	return "agent"
}

func (s *Server) dispatch(ctx context.Context, method, agentID string, params any) (any, error) {
	return s.dispatcher.Dispatch(ctx, method, agentID, time.Now().Add(callDeadline), params)
}

func (s *Server) handleCheck(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := agentIDOf(req)
	filters := model.QueryFilters{}
	if v := req.GetString("category", ""); v != "" {
		c := model.Category(v)
		filters.Category = &c
	}
	if v := req.GetString("stakes", ""); v != "" {
		st := model.Stakes(v)
		filters.Stakes = &st
	}

	result, err := s.dispatch(ctx, "preAction", agentID, dispatch.PreActionParams{
		Text:    req.GetString("text", ""),
		Filters: filters,
		ActionContext: model.ActionContext{
			"category": req.GetString("category", ""),
			"stakes":   req.GetString("stakes", ""),
			"agent":    agentID,
		},
	})
	if err != nil {
		return dispatchErrorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleRecord(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := agentIDOf(req)
	p := dispatch.RecordParams{
		DecisionText: req.GetString("decision", ""),
		Confidence:   req.GetFloat("confidence", 0),
		Category:     model.Category(req.GetString("category", "")),
		Stakes:       model.Stakes(req.GetString("stakes", "")),
		Context:      req.GetString("context", ""),
		Tags:         splitCSV(req.GetString("tags", "")),
		Pattern:      req.GetString("pattern", ""),
	}
	if rb := req.GetString("review_by", ""); rb != "" {
		p.ReviewBy = &rb
	}
	result, err := s.dispatch(ctx, "recordDecision", agentID, p)
	if err != nil {
		return dispatchErrorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleQuery(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := agentIDOf(req)
	filters := model.QueryFilters{}
	if v := req.GetString("category", ""); v != "" {
		c := model.Category(v)
		filters.Category = &c
	}
	if v := req.GetString("stakes", ""); v != "" {
		st := model.Stakes(v)
		filters.Stakes = &st
	}
	if v := req.GetString("status", ""); v != "" {
		status := model.Status(v)
		filters.Status = &status
	}
	if v := req.GetString("agent_id", ""); v != "" {
		filters.Agent = &v
	}
	mode := model.ModeHybrid
	if v := req.GetString("mode", ""); v != "" {
		mode = model.RetrievalMode(v)
	}
	result, err := s.dispatch(ctx, "queryDecisions", agentID, dispatch.QueryParams{
		Text:    req.GetString("text", ""),
		Filters: filters,
		Limit:   req.GetInt("limit", 10),
		Mode:    mode,
	})
	if err != nil {
		return dispatchErrorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleGet(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := agentIDOf(req)
	result, err := s.dispatch(ctx, "getDecision", agentID, req.GetString("id", ""))
	if err != nil {
		return dispatchErrorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleList(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := agentIDOf(req)
	filters := model.QueryFilters{}
	if v := req.GetString("category", ""); v != "" {
		c := model.Category(v)
		filters.Category = &c
	}
	if v := req.GetString("stakes", ""); v != "" {
		st := model.Stakes(v)
		filters.Stakes = &st
	}
	if v := req.GetString("status", ""); v != "" {
		status := model.Status(v)
		filters.Status = &status
	}
	if v := req.GetString("agent_id", ""); v != "" {
		filters.Agent = &v
	}
	result, err := s.dispatch(ctx, "listDecisions", agentID, dispatch.ListParams{
		Filters: filters,
		Limit:   req.GetInt("limit", 20),
		Offset:  req.GetInt("offset", 0),
	})
	if err != nil {
		return dispatchErrorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleReview(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := agentIDOf(req)
	result, err := s.dispatch(ctx, "reviewDecision", agentID, dispatch.ReviewParams{
		ID:            req.GetString("id", ""),
		Outcome:       model.Outcome(req.GetString("outcome", "")),
		OutcomeResult: req.GetString("outcome_result", ""),
		Lessons:       req.GetString("lessons", ""),
	})
	if err != nil {
		return dispatchErrorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleThought(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := agentIDOf(req)
	decisionID := req.GetString("decision_id", "")
	if decisionID == "" {
		decisionID = model.PendingDecisionID
	}
	result, err := s.dispatch(ctx, "recordThought", agentID, dispatch.RecordThoughtParams{
		DecisionID: decisionID,
		Thought:    req.GetString("thought", ""),
		Type:       req.GetString("type", ""),
	})
	if err != nil {
		return dispatchErrorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleSession(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := agentIDOf(req)
	var categories []model.Category
	for _, c := range splitCSV(req.GetString("categories", "")) {
		categories = append(categories, model.Category(c))
	}
	result, err := s.dispatch(ctx, "getSessionContext", agentID, dispatch.SessionContextParams{
		AgentID:    agentID,
		Query:      req.GetString("query", ""),
		Categories: categories,
		Format:     req.GetString("format", "json"),
	})
	if err != nil {
		return dispatchErrorResult(err)
	}
	if req.GetString("format", "json") == "markdown" {
		if text, ok := result.(string); ok {
			return &mcplib.CallToolResult{Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: text}}}, nil
		}
	}
	return jsonResult(result)
}

func (s *Server) handleGraph(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := agentIDOf(req)
	var edgeTypes []model.EdgeType
	for _, t := range splitCSV(req.GetString("edge_types", "")) {
		edgeTypes = append(edgeTypes, model.EdgeType(t))
	}
	result, err := s.dispatch(ctx, "getGraph", agentID, dispatch.GetGraphParams{
		Root:      req.GetString("root", ""),
		Depth:     req.GetInt("depth", 2),
		EdgeTypes: edgeTypes,
	})
	if err != nil {
		return dispatchErrorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleReady(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := agentIDOf(req)
	var categories []model.Category
	for _, c := range splitCSV(req.GetString("categories", "")) {
		categories = append(categories, model.Category(c))
	}
	result, err := s.dispatch(ctx, "ready", agentID, dispatch.ReadyParams{Categories: categories})
	if err != nil {
		return dispatchErrorResult(err)
	}
	return jsonResult(result)
}
