package services

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/repositories"
)

// fakeStore is an in-memory stand-in for Postgres. InTx holds a store-wide lock for the
// whole transaction and restores a snapshot when fn fails, which gives the same
// serializable, all-or-nothing behavior the services rely on.
type fakeStore struct {
	mu       sync.Mutex
	posts    map[uuid.UUID]*models.Post
	reviews  []*models.Review
	agents   map[uuid.UUID]*models.Agent
	seq      int
	failures map[string]error
	txCount  int
}

type fakeTxKey struct{}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:    make(map[uuid.UUID]*models.Post),
		agents:   make(map[uuid.UUID]*models.Agent),
		failures: make(map[string]error),
	}
}

func (s *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	snapshot := s.snapshot()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// lock takes the store lock unless ctx is already inside InTx.
func (s *fakeStore) lock(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// failWith makes the next call of op return err.
func (s *fakeStore) failWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *fakeStore) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

type storeSnapshot struct {
	posts   map[uuid.UUID]*models.Post
	reviews []*models.Review
	agents  map[uuid.UUID]*models.Agent
	seq     int
}

func (s *fakeStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		posts:   make(map[uuid.UUID]*models.Post, len(s.posts)),
		reviews: slices.Clone(s.reviews),
		agents:  make(map[uuid.UUID]*models.Agent, len(s.agents)),
		seq:     s.seq,
	}
	for id, p := range s.posts {
		snap.posts[id] = copyPost(p)
	}
	for id, a := range s.agents {
		cp := *a
		snap.agents[id] = &cp
	}
	return snap
}

func (s *fakeStore) restore(snap storeSnapshot) {
	s.posts = snap.posts
	s.reviews = snap.reviews
	s.agents = snap.agents
	s.seq = snap.seq
}

func copyPost(p *models.Post) *models.Post {
	cp := *p
	cp.Tags = slices.Clone(p.Tags)
	cp.Embedding = slices.Clone(p.Embedding)
	if p.AcceptedAt != nil {
		at := *p.AcceptedAt
		cp.AcceptedAt = &at
	}
	return &cp
}

func (s *fakeStore) nextTime() time.Time {
	s.seq++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
}

// ----------------------------------------------------------------------------
// Test helpers
// ----------------------------------------------------------------------------

func (s *fakeStore) addAgent(score int, verified bool) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.Agent{
		ID:                uuid.New(),
		CreatedAt:         s.nextTime(),
		Name:              "agent",
		Platform:          models.PlatformCustom,
		Email:             uuid.NewString() + "@example.com",
		EmailVerified:     verified,
		ContributionScore: score,
	}
	s.agents[a.ID] = a
	cp := *a
	return &cp
}

func (s *fakeStore) addPost(author uuid.UUID, status models.PostStatus) *models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Post{
		ID:        uuid.New(),
		CreatedAt: s.nextTime(),
		AuthorID:  author,
		Type:      models.PostTypeSolution,
		Title:     "title",
		Content:   "content",
		Tags:      []string{"go"},
		Status:    status,
	}
	if status == models.PostStatusAccepted {
		at := p.CreatedAt
		p.AcceptedAt = &at
	}
	s.posts[p.ID] = p
	return copyPost(p)
}

func (s *fakeStore) post(id uuid.UUID) *models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPost(s.posts[id])
}

func (s *fakeStore) agent(id uuid.UUID) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.agents[id]
	return &cp
}

func (s *fakeStore) reviewCount(postID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.reviews {
		if r.PostID == postID {
			n++
		}
	}
	return n
}

// ----------------------------------------------------------------------------
// PostRepository
// ----------------------------------------------------------------------------

type fakePosts struct{ s *fakeStore }

var _ repositories.PostRepository = fakePosts{}

func (f fakePosts) Create(ctx context.Context, post *models.Post) error {
	defer f.s.lock(ctx)()
	if err := f.s.fail("posts.Create"); err != nil {
		return err
	}
	if _, ok := f.s.agents[post.AuthorID]; !ok {
		return apperrors.ErrAgentNotFound
	}
	post.ID = uuid.New()
	post.CreatedAt = f.s.nextTime()
	if post.Status == "" {
		post.Status = models.PostStatusPending
	}
	post.HasEmbedding = len(post.Embedding) > 0
	f.s.posts[post.ID] = copyPost(post)
	return nil
}

func (f fakePosts) GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	defer f.s.lock(ctx)()
	if err := f.s.fail("posts.GetByID"); err != nil {
		return nil, err
	}
	p, ok := f.s.posts[id]
	if !ok {
		return nil, apperrors.ErrPostNotFound
	}
	return copyPost(p), nil
}

func (f fakePosts) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	if ctx.Value(fakeTxKey{}) == nil {
		return nil, errors.New("GetForUpdate requires a transaction")
	}
	return f.GetByID(ctx, id)
}

func (f fakePosts) IncrementTally(ctx context.Context, id uuid.UUID, vote models.Vote) (models.Tally, error) {
	defer f.s.lock(ctx)()
	if err := f.s.fail("posts.IncrementTally"); err != nil {
		return models.Tally{}, err
	}
	p, ok := f.s.posts[id]
	if !ok {
		return models.Tally{}, apperrors.ErrPostNotFound
	}
	switch vote {
	case models.VoteAccept:
		p.AcceptCount++
	case models.VoteReject:
		p.RejectCount++
	default:
		return models.Tally{}, apperrors.NewValidationError("vote", "does not move the tally")
	}
	p.ReviewCount++
	return p.Tally(), nil
}

func (f fakePosts) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.PostStatus, to models.PostStatus) (*models.Post, error) {
	defer f.s.lock(ctx)()
	if err := f.s.fail("posts.TransitionStatus"); err != nil {
		return nil, err
	}
	p, ok := f.s.posts[id]
	if !ok || !slices.Contains(from, p.Status) {
		return nil, apperrors.ErrInvalidTransition
	}
	p.Status = to
	if to == models.PostStatusAccepted && p.AcceptedAt == nil {
		at := f.s.nextTime()
		p.AcceptedAt = &at
	}
	return copyPost(p), nil
}

func (f fakePosts) sorted(keep func(*models.Post) bool) []*models.Post {
	out := make([]*models.Post, 0)
	for _, p := range f.s.posts {
		if keep(p) {
			out = append(out, copyPost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func (f fakePosts) ListPendingForReview(ctx context.Context, agentID uuid.UUID, limit int) ([]*models.Post, error) {
	defer f.s.lock(ctx)()
	voted := make(map[uuid.UUID]bool)
	for _, r := range f.s.reviews {
		if r.ReviewerID == agentID {
			voted[r.PostID] = true
		}
	}
	return truncate(f.sorted(func(p *models.Post) bool {
		return p.Status == models.PostStatusInReview && p.AuthorID != agentID && !voted[p.ID]
	}), limit), nil
}

func (f fakePosts) withAuthor(posts []*models.Post) []*models.PostWithAuthor {
	out := make([]*models.PostWithAuthor, 0, len(posts))
	for _, p := range posts {
		pa := &models.PostWithAuthor{Post: p}
		if a, ok := f.s.agents[p.AuthorID]; ok {
			pa.AuthorName = a.Name
			pa.AuthorPlatform = a.Platform
		}
		out = append(out, pa)
	}
	return out
}

func (f fakePosts) ListByStatus(ctx context.Context, status models.PostStatus, limit int) ([]*models.PostWithAuthor, error) {
	defer f.s.lock(ctx)()
	posts := truncate(f.sorted(func(p *models.Post) bool { return p.Status == status }), limit)
	return f.withAuthor(posts), nil
}

func (f fakePosts) Browse(ctx context.Context, filter models.BrowseFilter) ([]*models.Post, error) {
	defer f.s.lock(ctx)()
	posts := f.sorted(func(p *models.Post) bool {
		if p.Status != models.PostStatusAccepted {
			return false
		}
		if filter.Type != "" && p.Type != filter.Type {
			return false
		}
		for _, tag := range filter.Tags {
			if !slices.Contains(p.Tags, tag) {
				return false
			}
		}
		return true
	})
	slices.Reverse(posts)
	if filter.Offset >= len(posts) {
		return []*models.Post{}, nil
	}
	return truncate(posts[filter.Offset:], filter.Limit), nil
}

func (f fakePosts) Search(ctx context.Context, q models.SearchQuery) ([]*models.Post, error) {
	defer f.s.lock(ctx)()
	if err := f.s.fail("posts.Search"); err != nil {
		return nil, err
	}
	posts := f.sorted(func(p *models.Post) bool {
		return p.Status == models.PostStatusAccepted && len(p.Embedding) > 0
	})
	out := make([]*models.Post, 0)
	for _, p := range posts {
		sim := dot(p.Embedding, q.Embedding)
		if sim < q.Threshold {
			continue
		}
		p.Similarity = &sim
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Similarity > *out[j].Similarity })
	return truncate(out, q.Limit), nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range min(len(a), len(b)) {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func (f fakePosts) ListMissingEmbeddings(ctx context.Context, limit int) ([]*models.Post, error) {
	defer f.s.lock(ctx)()
	return truncate(f.sorted(func(p *models.Post) bool { return len(p.Embedding) == 0 }), limit), nil
}

func (f fakePosts) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	defer f.s.lock(ctx)()
	if err := f.s.fail("posts.SetEmbedding"); err != nil {
		return err
	}
	p, ok := f.s.posts[id]
	if !ok {
		return apperrors.ErrPostNotFound
	}
	p.Embedding = slices.Clone(embedding)
	p.HasEmbedding = true
	return nil
}

func (f fakePosts) CountByStatus(ctx context.Context) (map[models.PostStatus]int, error) {
	defer f.s.lock(ctx)()
	if err := f.s.fail("posts.CountByStatus"); err != nil {
		return nil, err
	}
	counts := make(map[models.PostStatus]int)
	for _, p := range f.s.posts {
		counts[p.Status]++
	}
	return counts, nil
}

func (f fakePosts) CountByType(ctx context.Context, status models.PostStatus) (map[models.PostType]int, error) {
	defer f.s.lock(ctx)()
	counts := make(map[models.PostType]int)
	for _, p := range f.s.posts {
		if p.Status == status {
			counts[p.Type]++
		}
	}
	return counts, nil
}

func (f fakePosts) ListRecentAccepted(ctx context.Context, limit int) ([]*models.PostWithAuthor, error) {
	defer f.s.lock(ctx)()
	posts := f.sorted(func(p *models.Post) bool { return p.Status == models.PostStatusAccepted })
	slices.Reverse(posts)
	return f.withAuthor(truncate(posts, limit)), nil
}

func (f fakePosts) Explore(ctx context.Context, filter models.ExploreFilter) ([]*models.PostWithAuthor, int, error) {
	defer f.s.lock(ctx)()
	if err := f.s.fail("posts.Explore"); err != nil {
		return nil, 0, err
	}
	posts := f.sorted(func(p *models.Post) bool {
		if p.Status != models.PostStatusAccepted {
			return false
		}
		if filter.Type != "" && p.Type != filter.Type {
			return false
		}
		return filter.Tag == "" || slices.Contains(p.Tags, filter.Tag)
	})
	slices.Reverse(posts)
	total := len(posts)
	if filter.Offset >= total {
		return f.withAuthor(nil), total, nil
	}
	return f.withAuthor(truncate(posts[filter.Offset:], filter.Limit)), total, nil
}

func (f fakePosts) GetAccepted(ctx context.Context, id uuid.UUID) (*models.PostWithAuthor, error) {
	defer f.s.lock(ctx)()
	p, ok := f.s.posts[id]
	if !ok || p.Status != models.PostStatusAccepted {
		return nil, apperrors.ErrPostNotFound
	}
	return f.withAuthor([]*models.Post{copyPost(p)})[0], nil
}

func (f fakePosts) PopularTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	defer f.s.lock(ctx)()
	counts := make(map[string]int)
	for _, p := range f.s.posts {
		if p.Status != models.PostStatusAccepted {
			continue
		}
		for _, tag := range p.Tags {
			counts[tag]++
		}
	}
	tags := make([]models.TagCount, 0, len(counts))
	for tag, n := range counts {
		tags = append(tags, models.TagCount{Tag: tag, Count: n})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})
	return truncate(tags, limit), nil
}

// ----------------------------------------------------------------------------
// ReviewRepository
// ----------------------------------------------------------------------------

type fakeReviews struct{ s *fakeStore }

var _ repositories.ReviewRepository = fakeReviews{}

func (f fakeReviews) Create(ctx context.Context, review *models.Review) error {
	defer f.s.lock(ctx)()
	if err := f.s.fail("reviews.Create"); err != nil {
		return err
	}
	for _, r := range f.s.reviews {
		if r.ReviewerID == review.ReviewerID && r.PostID == review.PostID {
			return apperrors.ErrDuplicateReview
		}
	}
	review.ID = uuid.New()
	review.CreatedAt = f.s.nextTime()
	cp := *review
	f.s.reviews = append(f.s.reviews, &cp)
	return nil
}

func (f fakeReviews) Exists(ctx context.Context, reviewerID, postID uuid.UUID) (bool, error) {
	defer f.s.lock(ctx)()
	for _, r := range f.s.reviews {
		if r.ReviewerID == reviewerID && r.PostID == postID {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeReviews) ListByPost(ctx context.Context, postID uuid.UUID) ([]*models.Review, error) {
	defer f.s.lock(ctx)()
	out := make([]*models.Review, 0)
	for _, r := range f.s.reviews {
		if r.PostID == postID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// AgentRepository
// ----------------------------------------------------------------------------

type fakeAgents struct{ s *fakeStore }

var _ repositories.AgentRepository = fakeAgents{}

func (f fakeAgents) Create(ctx context.Context, agent *models.Agent) error {
	defer f.s.lock(ctx)()
	if err := f.s.fail("agents.Create"); err != nil {
		return err
	}
	for _, a := range f.s.agents {
		if a.Email == agent.Email {
			return apperrors.ErrEmailTaken
		}
	}
	agent.ID = uuid.New()
	agent.CreatedAt = f.s.nextTime()
	agent.LastActive = agent.CreatedAt
	cp := *agent
	f.s.agents[agent.ID] = &cp
	return nil
}

func (f fakeAgents) find(match func(*models.Agent) bool) (*models.Agent, error) {
	for _, a := range f.s.agents {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperrors.ErrAgentNotFound
}

func (f fakeAgents) GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	defer f.s.lock(ctx)()
	if err := f.s.fail("agents.GetByID"); err != nil {
		return nil, err
	}
	return f.find(func(a *models.Agent) bool { return a.ID == id })
}

func (f fakeAgents) GetByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error) {
	defer f.s.lock(ctx)()
	if err := f.s.fail("agents.GetByAPIKeyHash"); err != nil {
		return nil, err
	}
	return f.find(func(a *models.Agent) bool { return a.APIKeyHash == hash })
}

func (f fakeAgents) GetByEmail(ctx context.Context, email string) (*models.Agent, error) {
	defer f.s.lock(ctx)()
	return f.find(func(a *models.Agent) bool { return a.Email == email })
}

func (f fakeAgents) IncrementContribution(ctx context.Context, id uuid.UUID) (int, error) {
	defer f.s.lock(ctx)()
	if err := f.s.fail("agents.IncrementContribution"); err != nil {
		return 0, err
	}
	a, ok := f.s.agents[id]
	if !ok {
		return 0, apperrors.ErrAgentNotFound
	}
	a.ContributionScore++
	return a.ContributionScore, nil
}

func (f fakeAgents) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	defer f.s.lock(ctx)()
	a, ok := f.s.agents[id]
	if !ok {
		return apperrors.ErrAgentNotFound
	}
	a.EmailVerified = true
	return nil
}

func (f fakeAgents) TouchLastActive(ctx context.Context, id uuid.UUID) error {
	defer f.s.lock(ctx)()
	if err := f.s.fail("agents.TouchLastActive"); err != nil {
		return err
	}
	a, ok := f.s.agents[id]
	if !ok {
		return apperrors.ErrAgentNotFound
	}
	a.LastActive = f.s.nextTime()
	return nil
}

func (f fakeAgents) Count(ctx context.Context) (int, error) {
	defer f.s.lock(ctx)()
	if err := f.s.fail("agents.Count"); err != nil {
		return 0, err
	}
	return len(f.s.agents), nil
}

// ----------------------------------------------------------------------------
// Embedder
// ----------------------------------------------------------------------------

type fakeEmbedder struct {
	mu    sync.Mutex
	fn    func(text string) ([]float32, error)
	calls []string
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	e.mu.Unlock()
	if e.fn == nil {
		return []float32{1, 0, 0}, nil
	}
	return e.fn(text)
}
