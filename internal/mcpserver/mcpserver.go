// Package mcpserver implements the MCP Adapter (SPEC_FULL.md §D3): a
// thin wrapper that exposes the Dispatch Router's (C5) fixed operation
// vocabulary as MCP tools over stdio, so AI-agent clients can drive
// Weaver directly rather than shelling out to the weaver CLI for each
// call. Like thrum's own internal/mcp.Server, it is a per-call client
// of the already-running daemon rather than a second in-process
// dispatcher: every tool call dials cfg's endpoint fresh via
// weaverclient, since a shared connection would need its own
// synchronisation for no benefit over the socket's per-request model.
package mcpserver

import (
	"bytes"
	"context"
	"io"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/weaverlang/weaver/internal/config"
	"github.com/weaverlang/weaver/internal/protocol"
	"github.com/weaverlang/weaver/internal/weaverclient"
)

// Server is the Weaver MCP server. One instance serves one stdio
// session on behalf of a single CLI invocation ("weaver mcp serve").
type Server struct {
	cfg     *config.Config
	version string
	server  *gomcp.Server
	send    sendFunc
}

// sendFunc matches weaverclient.Send's signature; tests substitute a
// fake so they don't need a live socket.
type sendFunc func(cfg *config.Config, req protocol.CommandRequest, stdout, stderr io.Writer) (int, error)

// Option configures the MCP server.
type Option func(*Server)

// WithVersion sets the server version string reported in the MCP
// initialize handshake.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// operations is the fixed domain/operation vocabulary exposed as MCP
// tools, matching spec.md §4.5 exactly — the Router itself rejects
// anything outside this set, so the tool surface cannot drift from
// the wire vocabulary.
var operations = []struct {
	domain, operation, description string
}{
	{"observe", "get-definition", "Resolve the definition of the symbol at a position"},
	{"observe", "find-references", "Find references to the symbol at a position"},
	{"observe", "grep", "Search workspace file contents by regular expression"},
	{"observe", "diagnostics", "Fetch current diagnostics for a file"},
	{"observe", "call-hierarchy", "Resolve incoming/outgoing call hierarchy for a position"},
	{"act", "rename-symbol", "Rename the symbol at a position across the workspace"},
	{"act", "apply-edits", "Apply a list of raw text edits to a file"},
	{"act", "apply-patch", "Apply a unified-diff-with-SEARCH/REPLACE patch through the Double-Lock safety harness"},
	{"act", "apply-rewrite", "Run a named structural rewrite"},
	{"act", "refactor", "Run a named refactoring"},
	{"verify", "diagnostics", "Check a file for current high-severity diagnostics"},
	{"verify", "syntax", "Check a file for syntax errors"},
}

// ToolInput is the shared input shape for every exposed operation: the
// raw "--flag value" argument tokens the CLI itself would send, plus
// Patch for apply-patch's diff payload.
type ToolInput struct {
	Arguments []string `json:"arguments,omitempty" jsonschema:"Positional --flag value argument tokens, as passed to the weaver CLI"`
	Patch     string   `json:"patch,omitempty" jsonschema:"Unified-diff-with-SEARCH/REPLACE payload, used only by act.apply-patch"`
}

// ToolOutput collects one operation's streamed output and final exit
// status, mirroring the wire protocol's stream/exit frames (spec.md
// §3) without the JSONL envelope.
type ToolOutput struct {
	Stdout string `json:"stdout,omitempty" jsonschema:"Captured stdout stream output"`
	Stderr string `json:"stderr,omitempty" jsonschema:"Captured stderr stream output"`
	Status int    `json:"status" jsonschema:"Process-style exit status; 0 is success"`
}

// New constructs a Server that dials cfg's endpoint for every tool
// call.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{cfg: cfg, version: "dev", send: defaultSend}
	for _, opt := range opts {
		opt(s)
	}

	s.server = gomcp.NewServer(&gomcp.Implementation{Name: "weaverd", Version: s.version}, nil)
	s.registerTools()
	return s
}

func defaultSend(cfg *config.Config, req protocol.CommandRequest, stdout, stderr io.Writer) (int, error) {
	return weaverclient.Send(cfg, req, stdout, stderr)
}

// Run serves MCP requests on stdin/stdout until ctx is canceled or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

func (s *Server) registerTools() {
	for _, op := range operations {
		domain, operation := op.domain, op.operation
		name := domain + "_" + toSnake(operation)
		gomcp.AddTool(s.server, &gomcp.Tool{
			Name:        name,
			Description: op.description,
		}, s.handlerFor(domain, operation))
	}
}

func (s *Server) handlerFor(domain, operation string) func(context.Context, *gomcp.CallToolRequest, ToolInput) (*gomcp.CallToolResult, ToolOutput, error) {
	return func(_ context.Context, _ *gomcp.CallToolRequest, input ToolInput) (*gomcp.CallToolResult, ToolOutput, error) {
		req := protocol.CommandRequest{
			Command:   protocol.Command{Domain: domain, Operation: operation},
			Arguments: input.Arguments,
			Patch:     input.Patch,
		}

		var stdout, stderr bytes.Buffer
		status, err := s.send(s.cfg, req, &stdout, &stderr)
		if err != nil {
			return nil, ToolOutput{}, err
		}

		return nil, ToolOutput{
			Stdout: strings.TrimRight(stdout.String(), "\n"),
			Stderr: strings.TrimRight(stderr.String(), "\n"),
			Status: status,
		}, nil
	}
}

func toSnake(operation string) string {
	out := make([]byte, 0, len(operation))
	for _, r := range operation {
		if r == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}
