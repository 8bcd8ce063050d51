package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Actionable errors are returned to the agent as a tool result so the
// details stay visible instead of being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the agent can act on (bad parameters, missing post,
// access denied). Storage and provider failures are returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// HandleServiceError converts a service error into a tool result.
// Dependency and uncategorized errors are returned as Go errors with op as context.
//
//	post, err := deps.Admission.CreatePost(ctx, newPost)
//	if err != nil {
//	    return HandleServiceError(err, "create post")
//	}
func HandleServiceError(err error, op string) (*mcp.CallToolResult, error) {
	if errors.Is(err, apperrors.ErrDependency) || !apperrors.IsCategorized(err) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return NewErrorResult(apperrors.Code(err), err.Error()), nil
}
