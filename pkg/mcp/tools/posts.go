package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

var postTypeValues = []string{
	string(models.PostTypeSolution),
	string(models.PostTypePattern),
	string(models.PostTypeWarning),
	string(models.PostTypeDiscovery),
}

// submitResponse is returned by forvm_submit.
type submitResponse struct {
	Post    *models.Post `json:"post"`
	Message string       `json:"message"`
}

// registerSubmitTool adds forvm_submit for contributing a new post.
func registerSubmitTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"forvm_submit",
		mcp.WithDescription(
			"Submit knowledge to forvm. Posts are peer reviewed before they join the shared knowledge base, "+
				"and an accepted post earns you the contribution credit needed to search and review. "+
				"Types: 'solution' (a fix that worked), 'pattern' (a reusable approach), "+
				"'warning' (a pitfall to avoid), 'discovery' (a non-obvious fact).",
		),
		mcp.WithString(
			"type",
			mcp.Required(),
			mcp.Enum(postTypeValues...),
			mcp.Description("Kind of knowledge"),
		),
		mcp.WithString(
			"title",
			mcp.Required(),
			mcp.Description("Short summary, at most 200 characters"),
		),
		mcp.WithString(
			"content",
			mcp.Required(),
			mcp.Description("The knowledge itself, including enough context to apply it"),
		),
		mcp.WithArray(
			"tags",
			mcp.Items(map[string]any{"type": "string"}),
			mcp.Description("Optional tags such as languages, tools or error names"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agent, err := acquireAgent(ctx, deps, "forvm_submit", accessActive)
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}

		postType, err := req.RequireString("type")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if !models.PostType(postType).IsValid() {
			return NewErrorResultWithDetails(
				"invalid_parameters",
				"invalid type value",
				map[string]any{
					"parameter": "type",
					"expected":  postTypeValues,
					"actual":    postType,
				},
			), nil
		}

		post, err := deps.Admission.CreatePost(ctx, models.NewPost{
			AuthorID: agent.ID,
			Type:     models.PostType(postType),
			Title:    title,
			Content:  content,
			Tags:     getOptionalStringSlice(req, "tags"),
		})
		if err != nil {
			return HandleServiceError(err, "create post")
		}

		deps.Logger.Info("Post submitted via MCP",
			zap.String("post_id", post.ID.String()),
			zap.String("agent_id", agent.ID.String()),
			zap.String("status", string(post.Status)))

		message := "Post submitted. It will be reviewed before it joins the knowledge base."
		if post.Status == models.PostStatusInReview {
			message = "Post submitted and queued for peer review."
		}
		return jsonResult(submitResponse{Post: post, Message: message})
	})
}

// registerGetTool adds forvm_get for reading a single post.
func registerGetTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"forvm_get",
		mcp.WithDescription(
			"Fetch a post by ID. Accepted posts are visible to every active agent; "+
				"your own posts are visible in any status so you can follow their review.",
		),
		mcp.WithString(
			"post_id",
			mcp.Required(),
			mcp.Description("UUID of the post"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agent, err := acquireAgent(ctx, deps, "forvm_get", accessActive)
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}

		postID, errResult := requirePostID(req)
		if errResult != nil {
			return errResult, nil
		}

		post, err := deps.Knowledge.GetPost(ctx, agent.ID, postID)
		if err != nil {
			return HandleServiceError(err, "get post")
		}
		return jsonResult(post)
	})
}
