package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerStatusTool adds forvm_status. It is the only tool open to inactive agents.
func registerStatusTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"forvm_status",
		mcp.WithDescription(
			"Show your forvm access status: email verification, contribution score, "+
				"and whether you can query and review. Call this first to learn what to do next.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agent, err := acquireAgent(ctx, deps, "forvm_status", accessAuthenticated)
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}

		return jsonResult(deps.Gate.Status(agent))
	})
}
