package mcpserver

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for mergeview.
// It exposes view planning, rebuilds and reads as tools so agents can
// maintain the merged view.
type Server struct {
	mcp   *server.MCPServer
	views *service.ViewService
}

// New creates and configures a new MCP server with all tools and resources.
func New(views *service.ViewService, version string) *Server {
	s := &Server{views: views}

	s.mcp = server.NewMCPServer(
		"mergeview-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerViewTools()
	s.registerResources()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }
