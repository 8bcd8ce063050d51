package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/auth"
	"github.com/ekaya-inc/forvm-engine/pkg/config"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

// mockAgentService serves agents from a map keyed by ID.
type mockAgentService struct {
	agents map[uuid.UUID]*models.Agent
	err    error
}

func (m *mockAgentService) Register(ctx context.Context, reg models.Registration) (*services.RegisteredAgent, error) {
	return nil, apperrors.ErrValidation
}

func (m *mockAgentService) Authenticate(ctx context.Context, apiKey string) (*models.Agent, error) {
	return nil, apperrors.ErrUnauthorized
}

func (m *mockAgentService) VerifyEmail(ctx context.Context, token string) (*models.Agent, error) {
	return nil, apperrors.ErrValidation
}

func (m *mockAgentService) ResendVerification(ctx context.Context, email string) error {
	return nil
}

func (m *mockAgentService) Get(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	if m.err != nil {
		return nil, m.err
	}
	agent, ok := m.agents[agentID]
	if !ok {
		return nil, apperrors.ErrAgentNotFound
	}
	copied := *agent
	return &copied, nil
}

func (m *mockAgentService) Status(ctx context.Context, agentID uuid.UUID) (*models.AgentStatus, error) {
	return nil, apperrors.ErrAgentNotFound
}

// mockAdmission records the last call and returns canned results.
type mockAdmission struct {
	created    *models.NewPost
	reviewed   *models.NewReview
	queueLimit int
	queue      []*models.Post
	outcome    *models.ReviewOutcome
	err        error
}

func (m *mockAdmission) CreatePost(ctx context.Context, p models.NewPost) (*models.Post, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = &p
	return &models.Post{ID: uuid.New(), AuthorID: p.AuthorID, Type: p.Type, Title: p.Title, Content: p.Content, Tags: p.Tags, Status: models.PostStatusPending}, nil
}

func (m *mockAdmission) SubmitForReview(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return nil, apperrors.ErrPostNotFound
}

func (m *mockAdmission) PendingForReview(ctx context.Context, agentID uuid.UUID, limit int) ([]*models.Post, error) {
	m.queueLimit = limit
	return m.queue, m.err
}

func (m *mockAdmission) RecordReview(ctx context.Context, r models.NewReview) (*models.ReviewOutcome, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.reviewed = &r
	return m.outcome, nil
}

func (m *mockAdmission) Approve(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return nil, apperrors.ErrPostNotFound
}

func (m *mockAdmission) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Post, error) {
	return nil, apperrors.ErrPostNotFound
}

func (m *mockAdmission) ListPending(ctx context.Context, limit int) ([]*models.PostWithAuthor, error) {
	return nil, nil
}

func (m *mockAdmission) PendingStats(ctx context.Context) (*models.PendingStats, error) {
	return &models.PendingStats{}, nil
}

// mockKnowledge returns canned posts and records the last query.
type mockKnowledge struct {
	posts  []*models.Post
	post   *models.Post
	search *services.SearchRequest
	filter *models.BrowseFilter
	err    error
}

func (m *mockKnowledge) GetPost(ctx context.Context, requester, postID uuid.UUID) (*models.Post, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.post == nil || m.post.ID != postID || !m.post.VisibleTo(requester) {
		return nil, apperrors.ErrPostNotFound
	}
	return m.post, nil
}

func (m *mockKnowledge) Browse(ctx context.Context, filter models.BrowseFilter) ([]*models.Post, error) {
	m.filter = &filter
	return m.posts, m.err
}

func (m *mockKnowledge) Search(ctx context.Context, req services.SearchRequest) ([]*models.Post, error) {
	m.search = &req
	return m.posts, m.err
}

// toolFixture wires the tools to fakes with one agent per access level.
type toolFixture struct {
	server      *server.MCPServer
	agents      *mockAgentService
	admission   *mockAdmission
	knowledge   *mockKnowledge
	inactive    *models.Agent
	newcomer    *models.Agent
	contributor *models.Agent
}

func newToolFixture(t *testing.T) *toolFixture {
	t.Helper()
	f := &toolFixture{
		inactive:    &models.Agent{ID: uuid.New(), Name: "inactive"},
		newcomer:    &models.Agent{ID: uuid.New(), Name: "newcomer", EmailVerified: true},
		contributor: &models.Agent{ID: uuid.New(), Name: "contributor", EmailVerified: true, ContributionScore: 3},
		admission:   &mockAdmission{},
		knowledge:   &mockKnowledge{},
	}
	f.agents = &mockAgentService{agents: map[uuid.UUID]*models.Agent{
		f.inactive.ID:    f.inactive,
		f.newcomer.ID:    f.newcomer,
		f.contributor.ID: f.contributor,
	}}

	f.server = server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterTools(f.server, &ToolDeps{
		Agents:    f.agents,
		Admission: f.admission,
		Knowledge: f.knowledge,
		Gate:      services.NewAccessGate(config.AccessConfig{RequireVerifiedEmail: true, MinContribution: 1}),
		Logger:    zap.NewNop(),
	})
	return f
}

// toolResponse is the decoded JSON-RPC response of a tools/call.
type toolResponse struct {
	Result *struct {
		IsError bool `json:"isError"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r toolResponse) text() string {
	if r.Result == nil || len(r.Result.Content) == 0 {
		return ""
	}
	return r.Result.Content[0].Text
}

// call invokes tool as agent (nil for an unauthenticated call).
func (f *toolFixture) call(t *testing.T, agent *models.Agent, tool string, args map[string]any) toolResponse {
	t.Helper()
	ctx := context.Background()
	if agent != nil {
		ctx = auth.WithAgent(ctx, agent)
	}

	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(f.server.HandleMessage(ctx, request))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

// errorCodeOf decodes the structured error of a failed tool result.
func errorCodeOf(t *testing.T, resp toolResponse) string {
	t.Helper()
	require.NotNil(t, resp.Result, "expected a tool result, got protocol error %+v", resp.Error)
	require.True(t, resp.Result.IsError, "expected an error result, got %s", resp.text())

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.text()), &errResp))
	return errResp.Code
}

// getTextContent extracts the text string from the first text content item.
func getTextContent(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if tc, ok := result.Content[0].(mcp.TextContent); ok {
		return tc.Text
	}
	return ""
}
