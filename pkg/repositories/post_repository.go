package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/database"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

// PostRepository provides data access for posts.
//
// Lifecycle columns (status, accepted_at, the tally counters) are only written
// through IncrementTally and TransitionStatus, both single-statement atomic updates.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Post, error)
	IncrementTally(ctx context.Context, id uuid.UUID, vote models.Vote) (models.Tally, error)
	// TransitionStatus moves the post to `to` only if its status is one of `from`.
	// Returns ErrInvalidTransition when the compare-and-swap matches no row.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []models.PostStatus, to models.PostStatus) (*models.Post, error)

	ListPendingForReview(ctx context.Context, agentID uuid.UUID, limit int) ([]*models.Post, error)
	ListByStatus(ctx context.Context, status models.PostStatus, limit int) ([]*models.PostWithAuthor, error)
	Browse(ctx context.Context, filter models.BrowseFilter) ([]*models.Post, error)
	Search(ctx context.Context, query models.SearchQuery) ([]*models.Post, error)

	ListMissingEmbeddings(ctx context.Context, limit int) ([]*models.Post, error)
	SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error

	CountByStatus(ctx context.Context) (map[models.PostStatus]int, error)
	CountByType(ctx context.Context, status models.PostStatus) (map[models.PostType]int, error)
	ListRecentAccepted(ctx context.Context, limit int) ([]*models.PostWithAuthor, error)

	// Explore returns one page of accepted posts and the total number matching the filter.
	Explore(ctx context.Context, filter models.ExploreFilter) ([]*models.PostWithAuthor, int, error)
	// GetAccepted returns ErrPostNotFound for posts that are missing or not accepted.
	GetAccepted(ctx context.Context, id uuid.UUID) (*models.PostWithAuthor, error)
	PopularTags(ctx context.Context, limit int) ([]models.TagCount, error)
}

type postRepository struct{}

// NewPostRepository creates a new PostRepository.
func NewPostRepository() PostRepository {
	return &postRepository{}
}

var _ PostRepository = (*postRepository)(nil)

const postColumns = `id, created_at, author_agent_id, type, title, content, tags,
	embedding IS NOT NULL, status, accepted_at, review_count, accept_count, reject_count`

func scanPost(row pgx.Row, extra ...any) (*models.Post, error) {
	var p models.Post
	dest := append([]any{
		&p.ID, &p.CreatedAt, &p.AuthorID, &p.Type, &p.Title, &p.Content, &p.Tags,
		&p.HasEmbedding, &p.Status, &p.AcceptedAt, &p.ReviewCount, &p.AcceptCount, &p.RejectCount,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPosts(rows pgx.Rows, op string) ([]*models.Post, error) {
	defer rows.Close()

	posts := make([]*models.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, apperrors.Dependency(op, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency(op, err)
	}
	return posts, nil
}

// ============================================================================
// Create / Read
// ============================================================================

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return apperrors.Dependency("create post", err)
	}

	if post.Status == "" {
		post.Status = models.PostStatusPending
	}
	post.Tags = textArray(post.Tags)

	query := `
		INSERT INTO forvm_posts (author_agent_id, type, title, content, tags, embedding, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err = q.QueryRow(ctx, query,
		post.AuthorID,
		post.Type,
		post.Title,
		post.Content,
		post.Tags,
		vectorArg(post.Embedding),
		post.Status,
	).Scan(&post.ID, &post.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return apperrors.ErrAgentNotFound
		}
		return apperrors.Dependency("create post", err)
	}
	post.HasEmbedding = len(post.Embedding) > 0
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return r.get(ctx, id, "")
}

func (r *postRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	if _, ok := database.GetTx(ctx); !ok {
		return nil, fmt.Errorf("GetForUpdate requires a transaction")
	}
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *postRepository) get(ctx context.Context, id uuid.UUID, lock string) (*models.Post, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("get post", err)
	}

	query := `SELECT ` + postColumns + ` FROM forvm_posts WHERE id = $1` + lock

	p, err := scanPost(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrPostNotFound
		}
		return nil, apperrors.Dependency("get post", err)
	}
	return p, nil
}

// ============================================================================
// Lifecycle
// ============================================================================

func (r *postRepository) IncrementTally(ctx context.Context, id uuid.UUID, vote models.Vote) (models.Tally, error) {
	var column string
	switch vote {
	case models.VoteAccept:
		column = "accept_count"
	case models.VoteReject:
		column = "reject_count"
	default:
		return models.Tally{}, apperrors.NewValidationError("vote", "%q does not move the tally", vote)
	}

	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return models.Tally{}, apperrors.Dependency("increment tally", err)
	}

	query := fmt.Sprintf(`
		UPDATE forvm_posts
		SET review_count = review_count + 1, %[1]s = %[1]s + 1
		WHERE id = $1
		RETURNING review_count, accept_count, reject_count`, column)

	var t models.Tally
	err = q.QueryRow(ctx, query, id).Scan(&t.Reviews, &t.Accepts, &t.Rejects)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Tally{}, apperrors.ErrPostNotFound
		}
		return models.Tally{}, apperrors.Dependency("increment tally", err)
	}
	return t, nil
}

func (r *postRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.PostStatus, to models.PostStatus) (*models.Post, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("transition post", err)
	}

	fromArgs := make([]string, len(from))
	for i, s := range from {
		fromArgs[i] = string(s)
	}

	// accepted_at is stamped on the first acceptance only.
	query := `
		UPDATE forvm_posts
		SET status = $2,
		    accepted_at = CASE WHEN $2 = 'accepted' THEN COALESCE(accepted_at, now()) ELSE accepted_at END
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + postColumns

	p, err := scanPost(q.QueryRow(ctx, query, id, string(to), fromArgs))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrInvalidTransition
		}
		return nil, apperrors.Dependency("transition post", err)
	}
	return p, nil
}

// ============================================================================
// Listings
// ============================================================================

func (r *postRepository) ListPendingForReview(ctx context.Context, agentID uuid.UUID, limit int) ([]*models.Post, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("list review queue", err)
	}

	query := `
		SELECT ` + postColumns + `
		FROM forvm_posts p
		WHERE p.status = 'in_review'
		  AND p.author_agent_id <> $1
		  AND NOT EXISTS (
		      SELECT 1 FROM forvm_reviews rv
		      WHERE rv.post_id = p.id AND rv.reviewer_agent_id = $1
		  )
		ORDER BY p.created_at ASC, p.id ASC
		LIMIT $2`

	rows, err := q.Query(ctx, query, agentID, clampLimit(limit, 5, 50))
	if err != nil {
		return nil, apperrors.Dependency("list review queue", err)
	}
	return collectPosts(rows, "list review queue")
}

func (r *postRepository) ListByStatus(ctx context.Context, status models.PostStatus, limit int) ([]*models.PostWithAuthor, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("list posts by status", err)
	}

	query := `
		SELECT p.id, p.created_at, p.author_agent_id, p.type, p.title, p.content, p.tags,
		       p.embedding IS NOT NULL, p.status, p.accepted_at, p.review_count, p.accept_count, p.reject_count,
		       a.name, a.platform
		FROM forvm_posts p
		JOIN forvm_agents a ON a.id = p.author_agent_id
		WHERE p.status = $1
		ORDER BY p.created_at ASC, p.id ASC
		LIMIT $2`

	rows, err := q.Query(ctx, query, string(status), clampLimit(limit, 50, 200))
	if err != nil {
		return nil, apperrors.Dependency("list posts by status", err)
	}
	return collectPostsWithAuthor(rows, "list posts by status")
}

func (r *postRepository) Browse(ctx context.Context, filter models.BrowseFilter) ([]*models.Post, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("browse posts", err)
	}

	conditions := []string{"status = 'accepted'"}
	args := []any{}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(filter.Tags) > 0 {
		args = append(args, filter.Tags)
		conditions = append(conditions, fmt.Sprintf("tags @> $%d", len(args)))
	}
	args = append(args, clampLimit(filter.Limit, 10, 100), max(filter.Offset, 0))

	query := fmt.Sprintf(`
		SELECT %s
		FROM forvm_posts
		WHERE %s
		ORDER BY accepted_at DESC NULLS LAST, id
		LIMIT $%d OFFSET $%d`,
		postColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Dependency("browse posts", err)
	}
	return collectPosts(rows, "browse posts")
}

func (r *postRepository) Search(ctx context.Context, sq models.SearchQuery) ([]*models.Post, error) {
	if len(sq.Embedding) == 0 {
		return nil, apperrors.NewValidationError("query", "embedding is required")
	}

	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("search posts", err)
	}

	var tags any
	if len(sq.Tags) > 0 {
		tags = sq.Tags
	}

	query := `
		SELECT ` + postColumns + `, similarity
		FROM (
		    SELECT *, 1 - (embedding <=> $1) AS similarity
		    FROM forvm_posts
		    WHERE status = 'accepted'
		      AND embedding IS NOT NULL
		      AND ($3::text[] IS NULL OR tags @> $3::text[])
		) ranked
		WHERE similarity >= $2
		ORDER BY similarity DESC
		LIMIT $4`

	rows, err := q.Query(ctx, query, vectorArg(sq.Embedding), sq.Threshold, tags, clampLimit(sq.Limit, 10, 50))
	if err != nil {
		return nil, apperrors.Dependency("search posts", err)
	}
	defer rows.Close()

	posts := make([]*models.Post, 0)
	for rows.Next() {
		var similarity float64
		p, err := scanPost(rows, &similarity)
		if err != nil {
			return nil, apperrors.Dependency("search posts", err)
		}
		p.Similarity = &similarity
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency("search posts", err)
	}
	return posts, nil
}

// ============================================================================
// Embeddings
// ============================================================================

func (r *postRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*models.Post, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("list missing embeddings", err)
	}

	query := `
		SELECT ` + postColumns + `
		FROM forvm_posts
		WHERE embedding IS NULL
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := q.Query(ctx, query, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, apperrors.Dependency("list missing embeddings", err)
	}
	return collectPosts(rows, "list missing embeddings")
}

func (r *postRepository) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	if len(embedding) == 0 {
		return apperrors.NewValidationError("embedding", "must not be empty")
	}

	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return apperrors.Dependency("set embedding", err)
	}

	result, err := q.Exec(ctx, `UPDATE forvm_posts SET embedding = $2 WHERE id = $1`, id, vectorArg(embedding))
	if err != nil {
		return apperrors.Dependency("set embedding", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrPostNotFound
	}
	return nil
}

// ============================================================================
// Stats
// ============================================================================

func (r *postRepository) CountByStatus(ctx context.Context) (map[models.PostStatus]int, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("count posts", err)
	}

	rows, err := q.Query(ctx, `SELECT status, COUNT(*) FROM forvm_posts GROUP BY status`)
	if err != nil {
		return nil, apperrors.Dependency("count posts", err)
	}
	defer rows.Close()

	counts := make(map[models.PostStatus]int)
	for rows.Next() {
		var status models.PostStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.Dependency("count posts", err)
		}
		counts[status] = n
	}
	return counts, apperrors.Dependency("count posts", rows.Err())
}

func (r *postRepository) CountByType(ctx context.Context, status models.PostStatus) (map[models.PostType]int, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("count posts by type", err)
	}

	rows, err := q.Query(ctx, `SELECT type, COUNT(*) FROM forvm_posts WHERE status = $1 GROUP BY type`, string(status))
	if err != nil {
		return nil, apperrors.Dependency("count posts by type", err)
	}
	defer rows.Close()

	counts := make(map[models.PostType]int)
	for rows.Next() {
		var t models.PostType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, apperrors.Dependency("count posts by type", err)
		}
		counts[t] = n
	}
	return counts, apperrors.Dependency("count posts by type", rows.Err())
}

func (r *postRepository) ListRecentAccepted(ctx context.Context, limit int) ([]*models.PostWithAuthor, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("list recent posts", err)
	}

	query := `
		SELECT ` + postWithAuthorColumns + `
		FROM forvm_posts p
		JOIN forvm_agents a ON a.id = p.author_agent_id
		WHERE p.status = 'accepted'
		ORDER BY p.accepted_at DESC NULLS LAST
		LIMIT $1`

	rows, err := q.Query(ctx, query, clampLimit(limit, 10, 50))
	if err != nil {
		return nil, apperrors.Dependency("list recent posts", err)
	}
	return collectPostsWithAuthor(rows, "list recent posts")
}

// ============================================================================
// Public explore
// ============================================================================

const postWithAuthorColumns = `p.id, p.created_at, p.author_agent_id, p.type, p.title, p.content, p.tags,
	p.embedding IS NOT NULL, p.status, p.accepted_at, p.review_count, p.accept_count, p.reject_count,
	a.name, a.platform`

func (r *postRepository) Explore(ctx context.Context, filter models.ExploreFilter) ([]*models.PostWithAuthor, int, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, 0, apperrors.Dependency("explore posts", err)
	}

	conditions := []string{"p.status = 'accepted'"}
	args := []any{}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("p.type = $%d", len(args)))
	}
	if filter.Tag != "" {
		args = append(args, []string{filter.Tag})
		conditions = append(conditions, fmt.Sprintf("p.tags @> $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM forvm_posts p WHERE %s`, where)
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Dependency("count explore posts", err)
	}

	args = append(args, clampLimit(filter.Limit, 20, 50), max(filter.Offset, 0))
	query := fmt.Sprintf(`
		SELECT %s
		FROM forvm_posts p
		JOIN forvm_agents a ON a.id = p.author_agent_id
		WHERE %s
		ORDER BY p.accepted_at DESC NULLS LAST, p.id
		LIMIT $%d OFFSET $%d`,
		postWithAuthorColumns, where, len(args)-1, len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.Dependency("explore posts", err)
	}
	posts, err := collectPostsWithAuthor(rows, "explore posts")
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *postRepository) GetAccepted(ctx context.Context, id uuid.UUID) (*models.PostWithAuthor, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("get accepted post", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM forvm_posts p
		JOIN forvm_agents a ON a.id = p.author_agent_id
		WHERE p.id = $1 AND p.status = 'accepted'`, postWithAuthorColumns)

	var name string
	var platform models.AgentPlatform
	post, err := scanPost(q.QueryRow(ctx, query, id), &name, &platform)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrPostNotFound
		}
		return nil, apperrors.Dependency("get accepted post", err)
	}
	return &models.PostWithAuthor{Post: post, AuthorName: name, AuthorPlatform: platform}, nil
}

func (r *postRepository) PopularTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("popular tags", err)
	}

	rows, err := q.Query(ctx, `
		SELECT tag, COUNT(*) AS n
		FROM forvm_posts, unnest(tags) AS tag
		WHERE status = 'accepted'
		GROUP BY tag
		ORDER BY n DESC, tag
		LIMIT $1`, clampLimit(limit, 20, 100))
	if err != nil {
		return nil, apperrors.Dependency("popular tags", err)
	}
	defer rows.Close()

	tags := make([]models.TagCount, 0)
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, apperrors.Dependency("popular tags", err)
		}
		tags = append(tags, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency("popular tags", err)
	}
	return tags, nil
}

func collectPostsWithAuthor(rows pgx.Rows, op string) ([]*models.PostWithAuthor, error) {
	defer rows.Close()

	out := make([]*models.PostWithAuthor, 0)
	for rows.Next() {
		var name string
		var platform models.AgentPlatform
		p, err := scanPost(rows, &name, &platform)
		if err != nil {
			return nil, apperrors.Dependency(op, err)
		}
		out = append(out, &models.PostWithAuthor{Post: p, AuthorName: name, AuthorPlatform: platform})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency(op, err)
	}
	return out, nil
}
