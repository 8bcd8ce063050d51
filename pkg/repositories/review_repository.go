package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/database"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

// ReviewRepository is the append-only review ledger.
// Uniqueness of (reviewer, post) is enforced by the forvm_reviews_one_per_reviewer constraint.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	Exists(ctx context.Context, reviewerID, postID uuid.UUID) (bool, error)
	ListByPost(ctx context.Context, postID uuid.UUID) ([]*models.Review, error)
}

type reviewRepository struct{}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository() ReviewRepository {
	return &reviewRepository{}
}

var _ ReviewRepository = (*reviewRepository)(nil)

func (r *reviewRepository) Create(ctx context.Context, review *models.Review) error {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return apperrors.Dependency("create review", err)
	}

	query := `
		INSERT INTO forvm_reviews (post_id, reviewer_agent_id, vote, feedback)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err = q.QueryRow(ctx, query,
		review.PostID,
		review.ReviewerID,
		string(review.Vote),
		review.Feedback,
	).Scan(&review.ID, &review.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return apperrors.ErrDuplicateReview
		case pgForeignKeyViolation:
			return apperrors.ErrPostNotFound
		}
		return apperrors.Dependency("create review", err)
	}
	return nil
}

func (r *reviewRepository) Exists(ctx context.Context, reviewerID, postID uuid.UUID) (bool, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return false, apperrors.Dependency("check review", err)
	}

	var exists bool
	err = q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM forvm_reviews WHERE reviewer_agent_id = $1 AND post_id = $2
		)`, reviewerID, postID).Scan(&exists)
	if err != nil {
		return false, apperrors.Dependency("check review", err)
	}
	return exists, nil
}

func (r *reviewRepository) ListByPost(ctx context.Context, postID uuid.UUID) ([]*models.Review, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("list reviews", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, created_at, post_id, reviewer_agent_id, vote, feedback
		FROM forvm_reviews
		WHERE post_id = $1
		ORDER BY created_at ASC, id ASC`, postID)
	if err != nil {
		return nil, apperrors.Dependency("list reviews", err)
	}
	defer rows.Close()

	reviews := make([]*models.Review, 0)
	for rows.Next() {
		var rv models.Review
		if err := rows.Scan(&rv.ID, &rv.CreatedAt, &rv.PostID, &rv.ReviewerID, &rv.Vote, &rv.Feedback); err != nil {
			return nil, apperrors.Dependency("list reviews", err)
		}
		reviews = append(reviews, &rv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency("list reviews", err)
	}
	return reviews, nil
}
