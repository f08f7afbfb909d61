package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	apperrors "orqon-dispatch/internal/common/errors"
)

var processQueryTool = mcp.NewTool("process_query",
	mcp.WithDescription("Send one message to the advisor assistant. Messages with the same session id share context, so follow-up questions can refer to the client discussed before."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("The message, for example \"what is Maria Lopez's email\""),
	),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Conversation identifier; reuse it for follow-up messages"),
	),
)

var listHandlersTool = mcp.NewTool("list_handlers",
	mcp.WithDescription("List the capability handlers in routing priority order."),
)

// MCPServer exposes the dispatcher as MCP tools.
type MCPServer struct {
	proc Processor
	mcp  *server.MCPServer
}

func NewMCPServer(name, version string, proc Processor) *MCPServer {
	s := &MCPServer{proc: proc}
	s.mcp = server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	s.mcp.AddTool(processQueryTool, s.handleProcessQuery)
	s.mcp.AddTool(listHandlersTool, s.handleListHandlers)
	return s
}

// Serve runs the server on stdio. Stdout carries protocol frames only, so
// logging must go to stderr.
func (s *MCPServer) Serve() error {
	return server.ServeStdio(s.mcp)
}

func (s *MCPServer) handleProcessQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	resp, err := s.proc.Process(ctx, text, sessionID)
	if resp == nil {
		return mcp.NewToolResultError(apperrors.UserMessage(err)), nil
	}
	if err != nil && apperrors.IsValidation(err) {
		return mcp.NewToolResultError(resp.ResponseText), nil
	}

	var b strings.Builder
	b.WriteString(resp.ResponseText)
	if resp.Payload != nil {
		if data, merr := json.MarshalIndent(resp.Payload, "", "  "); merr == nil {
			fmt.Fprintf(&b, "\n\n```json\n%s\n```", data)
		}
	}
	fmt.Fprintf(&b, "\n\n_handler: %s, outcome: %s_", resp.Handler, resp.Kind)
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleListHandlers(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	b.WriteString("# Handlers\n\n| Rank | Name | Default |\n|---|---|---|\n")
	for _, h := range s.proc.Handlers() {
		def := ""
		if h.Default {
			def = "yes"
		}
		fmt.Fprintf(&b, "| %d | %s | %s |\n", h.Rank, h.Name, def)
	}
	return mcp.NewToolResultText(b.String()), nil
}
