package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/auth"
	"github.com/ekaya-inc/forvm-engine/pkg/config"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

const testAdminToken = "admin-secret"

// mockAgentService authenticates keys from a fixed map.
type mockAgentService struct {
	byKey      map[string]*models.Agent
	registered *services.RegisteredAgent
	verified   *models.Agent
	gate       services.AccessGate
	err        error
	lastEmail  string
}

func (m *mockAgentService) Register(ctx context.Context, reg models.Registration) (*services.RegisteredAgent, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.registered, nil
}

func (m *mockAgentService) Authenticate(ctx context.Context, apiKey string) (*models.Agent, error) {
	agent, ok := m.byKey[apiKey]
	if !ok {
		return nil, auth.ErrInvalidCredentials
	}
	copied := *agent
	return &copied, nil
}

func (m *mockAgentService) VerifyEmail(ctx context.Context, token string) (*models.Agent, error) {
	if token == "" || m.verified == nil {
		return nil, auth.ErrInvalidVerificationToken
	}
	return m.verified, nil
}

func (m *mockAgentService) ResendVerification(ctx context.Context, email string) error {
	m.lastEmail = email
	return m.err
}

func (m *mockAgentService) Get(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	for _, agent := range m.byKey {
		if agent.ID == agentID {
			return agent, nil
		}
	}
	return nil, apperrors.ErrAgentNotFound
}

func (m *mockAgentService) Status(ctx context.Context, agentID uuid.UUID) (*models.AgentStatus, error) {
	agent, err := m.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return m.gate.Status(agent), nil
}

// mockAdmission records calls and returns configured results.
type mockAdmission struct {
	post      *models.Post
	outcome   *models.ReviewOutcome
	pending   []*models.PostWithAuthor
	queue     []*models.Post
	stats     *models.PendingStats
	err       error
	lastNew   models.NewPost
	lastVote  models.NewReview
	lastLimit int
	lastOp    string
	reason    string
}

func (m *mockAdmission) CreatePost(ctx context.Context, p models.NewPost) (*models.Post, error) {
	m.lastNew = p
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	return &models.Post{ID: uuid.New(), AuthorID: p.AuthorID, Type: p.Type, Title: p.Title, Status: models.PostStatusPending}, nil
}

func (m *mockAdmission) SubmitForReview(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return m.decide("submit", id, models.PostStatusInReview)
}

func (m *mockAdmission) PendingForReview(ctx context.Context, agentID uuid.UUID, limit int) ([]*models.Post, error) {
	m.lastLimit = limit
	return m.queue, m.err
}

func (m *mockAdmission) RecordReview(ctx context.Context, r models.NewReview) (*models.ReviewOutcome, error) {
	m.lastVote = r
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

func (m *mockAdmission) Approve(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return m.decide("approve", id, models.PostStatusAccepted)
}

func (m *mockAdmission) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Post, error) {
	m.reason = reason
	return m.decide("reject", id, models.PostStatusRejected)
}

func (m *mockAdmission) ListPending(ctx context.Context, limit int) ([]*models.PostWithAuthor, error) {
	m.lastLimit = limit
	return m.pending, m.err
}

func (m *mockAdmission) PendingStats(ctx context.Context) (*models.PendingStats, error) {
	return m.stats, m.err
}

func (m *mockAdmission) decide(op string, id uuid.UUID, status models.PostStatus) (*models.Post, error) {
	m.lastOp = op
	if m.err != nil {
		return nil, m.err
	}
	return &models.Post{ID: id, Status: status}, nil
}

// mockKnowledge serves fixed results.
type mockKnowledge struct {
	post       *models.Post
	posts      []*models.Post
	err        error
	lastFilter models.BrowseFilter
	lastSearch services.SearchRequest
}

func (m *mockKnowledge) GetPost(ctx context.Context, requester, postID uuid.UUID) (*models.Post, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.post == nil || !m.post.VisibleTo(requester) {
		return nil, apperrors.ErrPostNotFound
	}
	return m.post, nil
}

func (m *mockKnowledge) Browse(ctx context.Context, filter models.BrowseFilter) ([]*models.Post, error) {
	m.lastFilter = filter
	return m.posts, m.err
}

func (m *mockKnowledge) Search(ctx context.Context, req services.SearchRequest) ([]*models.Post, error) {
	m.lastSearch = req
	return m.posts, m.err
}

type mockStats struct {
	stats *models.PublicStats
	err   error
}

func (m *mockStats) Public(ctx context.Context) (*models.PublicStats, error) {
	return m.stats, m.err
}

// mockExplore serves the public listing from fixed values.
type mockExplore struct {
	page       *models.ExplorePage
	post       *models.PostWithAuthor
	tags       []models.TagCount
	err        error
	lastFilter models.ExploreFilter
}

func (m *mockExplore) List(ctx context.Context, filter models.ExploreFilter) (*models.ExplorePage, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	if m.page == nil {
		return &models.ExplorePage{Posts: []*models.PostWithAuthor{}}, nil
	}
	return m.page, nil
}

func (m *mockExplore) Get(ctx context.Context, postID uuid.UUID) (*models.PostWithAuthor, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.post == nil || m.post.ID != postID {
		return nil, apperrors.ErrPostNotFound
	}
	return m.post, nil
}

func (m *mockExplore) PopularTags(ctx context.Context) ([]models.TagCount, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tags, nil
}

// testServer wires every handler onto one mux the way main.go does.
type testServer struct {
	mux       *http.ServeMux
	agents    *mockAgentService
	admission *mockAdmission
	knowledge *mockKnowledge
	stats     *mockStats
	explore   *mockExplore

	inactive    *models.Agent
	newcomer    *models.Agent
	contributor *models.Agent
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gateCfg := config.AccessConfig{RequireVerifiedEmail: true, MinContribution: 1}
	access := services.NewAccessGate(gateCfg)

	s := &testServer{
		mux:         http.NewServeMux(),
		admission:   &mockAdmission{},
		knowledge:   &mockKnowledge{},
		stats:       &mockStats{},
		explore:     &mockExplore{},
		inactive:    &models.Agent{ID: uuid.New(), Name: "inactive"},
		newcomer:    &models.Agent{ID: uuid.New(), Name: "newcomer", EmailVerified: true},
		contributor: &models.Agent{ID: uuid.New(), Name: "contributor", EmailVerified: true, ContributionScore: 3},
	}
	s.agents = &mockAgentService{
		gate: access,
		byKey: map[string]*models.Agent{
			"key-inactive":    s.inactive,
			"key-newcomer":    s.newcomer,
			"key-contributor": s.contributor,
		},
	}

	logger := zap.NewNop()
	authMiddleware := auth.NewMiddleware(s.agents, auth.NewAdminAuthenticator(testAdminToken, nil, logger), logger)
	gate := NewGate(authMiddleware, access, logger)

	NewAgentHandler(s.agents, logger).RegisterRoutes(s.mux, gate)
	NewPostHandler(s.admission, s.knowledge, logger).RegisterRoutes(s.mux, gate)
	NewAdminHandler(s.admission, logger).RegisterRoutes(s.mux, gate)
	NewStatsHandler(s.stats, logger).RegisterRoutes(s.mux)
	NewExploreHandler(s.explore, logger).RegisterRoutes(s.mux)
	return s
}

// do sends a request; apiKey goes in x-api-key, or use header overrides.
func (s *testServer) do(t *testing.T, method, path, apiKey string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}
