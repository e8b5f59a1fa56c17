// Package mcptransport exposes the Dispatcher's method surface over the
// Model Context Protocol, so any MCP-compatible agent can call
// queryDecisions, recordDecision, and the rest without a bespoke client.
//
// The transport is a thin adapter: every tool handler decodes its MCP
// arguments into the matching dispatch.*Params struct, calls
// Dispatcher.Dispatch, and re-encodes the result as JSON text. No business
// logic lives here — that stays in internal/dispatch.
package mcptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tfatykhov/decisionintel/internal/dispatch"
)

// serverInstructions is sent to every MCP client during the initialize
// handshake, so a connecting agent knows the check-before/record-after
// workflow without per-project configuration.
const serverInstructions = `You have access to the Decision Intelligence Service, a durable store of
prior decisions, policy guardrails, and confidence calibration for AI agents.

WORKFLOW — follow this for every non-trivial decision:

1. BEFORE deciding: call decisionintel_check with the decision you're about to
   make. This returns similar precedents, active guardrail evaluation, and a
   calibration note for the category. Use it to avoid contradicting prior work
   and to calibrate your stated confidence.

2. AFTER deciding: call decisionintel_record with what you decided, your
   confidence (0.0-1.0), its category and stakes. This creates a durable
   record other agents can retrieve later.

3. WHEN AN OUTCOME IS KNOWN: call decisionintel_review with the decision's ID
   and the observed outcome, so the calibration subsystem can track whether
   your stated confidence matched reality.

Use decisionintel_session at the start of a task for a one-shot brief:
precedents, guardrails, calibration, the maintenance ready queue, and related
decisions, all in one call.

Be honest about confidence. Reference precedents when they influence you.`

// Server wraps an MCP server bound to a Dispatcher.
type Server struct {
	mcpServer  *mcpserver.MCPServer
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// New builds and registers every tool against dispatcher.
func New(dispatcher *dispatch.Dispatcher, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{dispatcher: dispatcher, logger: logger}

	s.mcpServer = mcpserver.NewMCPServer(
		"decisionintel",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport mounting.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// callDeadline bounds every dispatch call issued from a tool handler so a
// stalled query or guardrail evaluation can't hang the MCP connection.
const callDeadline = 20 * time.Second

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: msg}},
		IsError: true,
	}
}

// jsonResult marshals v as the tool's single text content block. Used for
// every successful handler so responses are uniformly parseable JSON.
func jsonResult(v any) (*mcplib.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResult("marshal result: " + err.Error()), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: string(body)}},
	}, nil
}

// dispatchErrorResult renders a dispatch.Error (or any other error) as a
// tool-level error result rather than a transport-level failure, so the
// calling agent sees the message instead of a generic protocol error.
func dispatchErrorResult(err error) (*mcplib.CallToolResult, error) {
	var dErr *dispatch.Error
	if errors.As(err, &dErr) {
		return errorResult(string(dErr.Kind) + ": " + dErr.Message), nil
	}
	return errorResult(err.Error()), nil
}
