package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return val
}

// getOptionalFloat extracts an optional float argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	val, ok := arguments(req)[key].(float64)
	return val, ok
}

// getOptionalInt extracts an optional integer argument. JSON numbers arrive as float64.
func getOptionalInt(req mcp.CallToolRequest, key string) (int, bool) {
	val, ok := getOptionalFloat(req, key)
	if !ok {
		return 0, false
	}
	return int(val), true
}

// getOptionalStringSlice extracts an optional array of strings, skipping non-string items.
func getOptionalStringSlice(req mcp.CallToolRequest, key string) []string {
	raw, ok := arguments(req)[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// requirePostID parses the required post_id argument.
// The returned result is non-nil when the argument is missing or malformed.
func requirePostID(req mcp.CallToolRequest) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString("post_id")
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", err.Error())
	}
	raw = strings.TrimSpace(raw)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, NewErrorResult(
			"invalid_parameters",
			fmt.Sprintf("invalid post_id format: %q is not a valid UUID", raw),
		)
	}
	return id, nil
}

// jsonResult marshals v as the text content of a successful tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonResult, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonResult)), nil
}
