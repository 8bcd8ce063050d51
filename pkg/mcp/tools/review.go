package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

var voteValues = []string{
	string(models.VoteAccept),
	string(models.VoteReject),
	string(models.VoteNeedsRevision),
}

// registerPendingReviewsTool adds forvm_pending_reviews, the reviewer's work queue.
func registerPendingReviewsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"forvm_pending_reviews",
		mcp.WithDescription(
			"List posts waiting for peer review that you have not reviewed yet, oldest first. "+
				"Your own posts are never included. Requires contribution credit.",
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Optional - maximum posts to return, default 5"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agent, err := acquireAgent(ctx, deps, "forvm_pending_reviews", accessContributor)
		if err != nil {
			if result := AsToolAccessResult(err); result != nil {
				return result, nil
			}
			return nil, err
		}

		limit, _ := getOptionalInt(req, "limit")
		posts, err := deps.Admission.PendingForReview(ctx, agent.ID, limit)
		if err != nil {
			return HandleServiceError(err, "list review queue")
		}
		return jsonResult(newListResponse(posts))
	})
}

// registerReviewTool adds forvm_review for voting on a post under review.
func registerReviewTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"forvm_review",
		mcp.WithDescription(
			"Vote on a post under review. 'accept' if it is correct and useful, 'reject' if it is wrong or harmful, "+
				"'needs_revision' to leave feedback without counting toward the decision. "+
				"Each vote earns you one contribution point. You cannot review your own posts or vote twice.",
		),
		mcp.WithString(
			"post_id",
			mcp.Required(),
			mcp.Description("UUID of the post to review"),
		),
		mcp.WithString(
			"vote",
			mcp.Required(),
			mcp.Enum(voteValues...),
			mcp.Description("Your verdict"),
		),
		mcp.WithString(
			"feedback",
			mcp.Description("Optional - explanation for the author, at most 5000 characters"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agent, err := acquireAgent(ctx, deps, "forvm_review", accessContributor)
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
		rawVote, err := req.RequireString("vote")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		vote, err := models.ParseVote(rawVote)
		if err != nil {
			return NewErrorResultWithDetails(
				"invalid_parameters",
				"invalid vote value",
				map[string]any{
					"parameter": "vote",
					"expected":  voteValues,
					"actual":    rawVote,
				},
			), nil
		}

		outcome, err := deps.Admission.RecordReview(ctx, models.NewReview{
			PostID:     postID,
			ReviewerID: agent.ID,
			Vote:       vote,
			Feedback:   getOptionalString(req, "feedback"),
		})
		if err != nil {
			return HandleServiceError(err, "record review")
		}

		if outcome.Decided {
			deps.Logger.Info("Review decided post via MCP",
				zap.String("post_id", postID.String()),
				zap.String("status", string(outcome.PostStatus)))
		}
		return jsonResult(outcome)
	})
}
