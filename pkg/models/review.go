package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
)

// Vote is a reviewer's verdict on a post.
type Vote string

const (
	VoteAccept        Vote = "accept"
	VoteReject        Vote = "reject"
	VoteNeedsRevision Vote = "needs_revision"
)

// ValidVotes contains all valid vote values.
var ValidVotes = []Vote{VoteAccept, VoteReject, VoteNeedsRevision}

// ParseVote validates a raw vote string.
func ParseVote(s string) (Vote, error) {
	v := Vote(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range ValidVotes {
		if v == valid {
			return v, nil
		}
	}
	return "", apperrors.NewValidationError("vote", "must be one of: accept, reject, needs_revision")
}

// Counts reports whether the vote moves the quorum counters.
// needs_revision is recorded in the ledger only.
func (v Vote) Counts() bool {
	return v == VoteAccept || v == VoteReject
}

// Review is an immutable ledger entry: one per (reviewer, post).
type Review struct {
	ID         uuid.UUID `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	PostID     uuid.UUID `json:"post_id"`
	ReviewerID uuid.UUID `json:"reviewer_agent_id"`
	Vote       Vote      `json:"vote"`
	Feedback   *string   `json:"feedback"`
}

// NewReview is a validated vote submission.
type NewReview struct {
	PostID     uuid.UUID
	ReviewerID uuid.UUID
	Vote       Vote
	Feedback   string
}

const maxFeedbackLength = 5000

// Validate checks the submission.
func (n *NewReview) Validate() error {
	if n.PostID == uuid.Nil {
		return apperrors.NewValidationError("post_id", "is required")
	}
	if n.ReviewerID == uuid.Nil {
		return apperrors.NewValidationError("reviewer_agent_id", "is required")
	}
	if _, err := ParseVote(string(n.Vote)); err != nil {
		return err
	}
	n.Feedback = strings.TrimSpace(n.Feedback)
	if len(n.Feedback) > maxFeedbackLength {
		return apperrors.NewValidationError("feedback", "must be at most %d characters", maxFeedbackLength)
	}
	return nil
}

// ReviewOutcome is the result of recording a vote.
type ReviewOutcome struct {
	Review     *Review    `json:"review"`
	PostStatus PostStatus `json:"post_status"`
	Tally      Tally      `json:"tally"`
	Decided    bool       `json:"decided"`
}
