// Package tools provides the MCP tools agents use to contribute to and query forvm.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/auth"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

// ToolDeps contains the dependencies shared by every forvm tool.
type ToolDeps struct {
	Agents    services.AgentService
	Admission services.AdmissionService
	Knowledge services.KnowledgeService
	Gate      services.AccessGate
	Logger    *zap.Logger
}

// RegisterTools registers all forvm tools on s.
func RegisterTools(s *server.MCPServer, deps *ToolDeps) {
	registerStatusTool(s, deps)
	registerSubmitTool(s, deps)
	registerGetTool(s, deps)
	registerSearchTool(s, deps)
	registerBrowseTool(s, deps)
	registerPendingReviewsTool(s, deps)
	registerReviewTool(s, deps)
}

// accessLevel is the gate a tool applies before running.
type accessLevel int

const (
	accessAuthenticated accessLevel = iota
	accessActive
	accessContributor
)

// ToolAccessError is an actionable access failure returned to the agent as a tool result.
type ToolAccessError struct {
	Code      string
	Message   string
	MCPResult *mcp.CallToolResult
}

func (e *ToolAccessError) Error() string {
	return e.Message
}

// AsToolAccessResult returns the prepared tool result when err is a ToolAccessError.
//
//	agent, err := acquireAgent(ctx, deps, "forvm_search", accessContributor)
//	if err != nil {
//	    if result := AsToolAccessResult(err); result != nil {
//	        return result, nil
//	    }
//	    return nil, err
//	}
func AsToolAccessResult(err error) *mcp.CallToolResult {
	var accessErr *ToolAccessError
	if errors.As(err, &accessErr) {
		return accessErr.MCPResult
	}
	return nil
}

func newToolAccessError(code, message string) *ToolAccessError {
	return &ToolAccessError{
		Code:      code,
		Message:   message,
		MCPResult: NewErrorResult(code, message),
	}
}

// acquireAgent reloads the authenticated agent and applies the access gate at level.
// The reload makes permission changes (verification, new credits) visible on the next call.
func acquireAgent(ctx context.Context, deps *ToolDeps, toolName string, level accessLevel) (*models.Agent, error) {
	authenticated, ok := auth.GetAgent(ctx)
	if !ok {
		return nil, newToolAccessError("authentication_required", "authentication required")
	}

	agent, err := deps.Agents.Get(ctx, authenticated.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, newToolAccessError("authentication_required", "agent no longer exists")
		}
		deps.Logger.Error("Failed to load agent for tool call",
			zap.String("tool", toolName),
			zap.String("agent_id", authenticated.ID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	switch level {
	case accessActive:
		err = deps.Gate.RequireActive(agent)
	case accessContributor:
		err = deps.Gate.RequireContributor(agent)
	}
	if err != nil {
		deps.Logger.Debug("Tool access denied",
			zap.String("tool", toolName),
			zap.String("agent_id", agent.ID.String()),
			zap.Int("contribution_score", agent.ContributionScore),
			zap.Bool("email_verified", agent.EmailVerified))
		return nil, newToolAccessError(apperrors.Code(err), err.Error())
	}
	return agent, nil
}
