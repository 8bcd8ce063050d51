package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/auth"
	"github.com/ekaya-inc/forvm-engine/pkg/metrics"
)

// Tool call results as recorded in metrics and logs.
const (
	resultOK        = "ok"
	resultToolError = "tool_error"
	resultError     = "error"
)

// ToolAudit records every MCP tool call: a metric sample and an Info log line
// carrying the calling agent, the outcome and the error code of failed calls.
type ToolAudit struct {
	metrics *metrics.Metrics
	logger  *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewToolAudit creates a ToolAudit. m may be nil.
func NewToolAudit(m *metrics.Metrics, logger *zap.Logger) *ToolAudit {
	return &ToolAudit{
		metrics: m,
		logger:  logger.Named("mcp-audit"),
	}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *ToolAudit) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *ToolAudit) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *ToolAudit) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	elapsed := a.elapsed(id)
	outcome, code := resultOK, ""
	if result != nil && result.IsError {
		outcome, code = resultToolError, errorCode(result)
	}
	a.record(ctx, req.Params.Name, outcome, code, elapsed)
}

func (a *ToolAudit) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	a.record(ctx, req.Params.Name, resultError, err.Error(), a.elapsed(id))
}

func (a *ToolAudit) elapsed(id any) time.Duration {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

func (a *ToolAudit) record(ctx context.Context, tool, outcome, code string, elapsed time.Duration) {
	a.metrics.ToolCall(tool, outcome, elapsed)

	fields := []zap.Field{
		zap.String("tool", tool),
		zap.String("result", outcome),
		zap.Duration("duration", elapsed),
	}
	if agent, ok := auth.GetAgent(ctx); ok {
		fields = append(fields, zap.String("agent_id", agent.ID.String()))
	}
	if code != "" {
		fields = append(fields, zap.String("code", code))
	}

	if outcome == resultError {
		a.logger.Warn("MCP tool call failed", fields...)
		return
	}
	a.logger.Info("MCP tool call", fields...)
}

// errorCode extracts the code from a structured tool error result.
func errorCode(result *mcplib.CallToolResult) string {
	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var partial struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal([]byte(tc.Text), &partial); err == nil {
			return partial.Code
		}
	}
	return ""
}
