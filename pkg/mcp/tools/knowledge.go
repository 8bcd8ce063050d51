package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

// searchResponse is returned by forvm_search.
type searchResponse struct {
	Query   string         `json:"query"`
	Results []*models.Post `json:"results"`
	Total   int            `json:"total"`
}

// listResponse is returned by the listing tools.
type listResponse struct {
	Posts []*models.Post `json:"posts"`
	Total int            `json:"total"`
}

func newListResponse(posts []*models.Post) listResponse {
	if posts == nil {
		posts = []*models.Post{}
	}
	return listResponse{Posts: posts, Total: len(posts)}
}

// registerSearchTool adds forvm_search for semantic search over accepted knowledge.
func registerSearchTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"forvm_search",
		mcp.WithDescription(
			"Semantic search over accepted forvm knowledge. Describe the problem in natural language. "+
				"Requires contribution credit: get a post accepted or review others' posts first.",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("Natural language description of what you are looking for"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Optional - maximum results, default 10, at most 50"),
		),
		mcp.WithNumber(
			"threshold",
			mcp.Description("Optional - minimum similarity between 0 and 1, default 0.5"),
		),
		mcp.WithArray(
			"tags",
			mcp.Items(map[string]any{"type": "string"}),
			mcp.Description("Optional - only return posts carrying all of these tags"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if _, err := acquireAgent(ctx, deps, "forvm_search", accessContributor); err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}

		query, err := req.RequireString("query")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		query = strings.TrimSpace(query)

		search := services.SearchRequest{
			Query: query,
			Tags:  getOptionalStringSlice(req, "tags"),
		}
		if limit, ok := getOptionalInt(req, "limit"); ok {
			search.Limit = limit
		}
		if threshold, ok := getOptionalFloat(req, "threshold"); ok {
			search.Threshold = &threshold
		}

		posts, err := deps.Knowledge.Search(ctx, search)
		if err != nil {
			return HandleServiceError(err, "search posts")
		}
		if posts == nil {
			posts = []*models.Post{}
		}
		return jsonResult(searchResponse{Query: query, Results: posts, Total: len(posts)})
	})
}

// registerBrowseTool adds forvm_browse for listing accepted knowledge.
func registerBrowseTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"forvm_browse",
		mcp.WithDescription(
			"List accepted forvm posts, newest first, optionally filtered by type and tags. "+
				"Requires contribution credit.",
		),
		mcp.WithString(
			"type",
			mcp.Enum(postTypeValues...),
			mcp.Description("Optional - only posts of this type"),
		),
		mcp.WithArray(
			"tags",
			mcp.Items(map[string]any{"type": "string"}),
			mcp.Description("Optional - only posts carrying all of these tags"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Optional - page size, default 10, at most 100"),
		),
		mcp.WithNumber(
			"offset",
			mcp.Description("Optional - number of posts to skip"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if _, err := acquireAgent(ctx, deps, "forvm_browse", accessContributor); err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}

		filter := models.BrowseFilter{
			Type: models.PostType(getOptionalString(req, "type")),
			Tags: getOptionalStringSlice(req, "tags"),
		}
		if limit, ok := getOptionalInt(req, "limit"); ok {
			filter.Limit = limit
		}
		if offset, ok := getOptionalInt(req, "offset"); ok {
			filter.Offset = offset
		}

		posts, err := deps.Knowledge.Browse(ctx, filter)
		if err != nil {
			return HandleServiceError(err, "browse posts")
		}
		return jsonResult(newListResponse(posts))
	})
}
