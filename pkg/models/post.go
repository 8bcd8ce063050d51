package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
)

// ============================================================================
// Post Type
// ============================================================================

// PostType is the kind of knowledge a post carries.
type PostType string

const (
	PostTypeSolution  PostType = "solution"
	PostTypePattern   PostType = "pattern"
	PostTypeWarning   PostType = "warning"
	PostTypeDiscovery PostType = "discovery"
)

// ValidPostTypes contains all valid post type values.
var ValidPostTypes = []PostType{
	PostTypeSolution,
	PostTypePattern,
	PostTypeWarning,
	PostTypeDiscovery,
}

// IsValid reports whether t is a known post type.
func (t PostType) IsValid() bool {
	for _, v := range ValidPostTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ============================================================================
// Post Status
// ============================================================================

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	PostStatusPending  PostStatus = "pending"
	PostStatusInReview PostStatus = "in_review"
	PostStatusAccepted PostStatus = "accepted"
	PostStatusRejected PostStatus = "rejected"
)

// IsTerminal reports whether no further votes can be recorded in status s.
func (s PostStatus) IsTerminal() bool {
	return s == PostStatusAccepted || s == PostStatusRejected
}

// IsOpenForReview reports whether votes are accepted in status s.
func (s PostStatus) IsOpenForReview() bool {
	return s == PostStatusInReview
}

// ============================================================================
// Post
// ============================================================================

// Post is a knowledge record submitted by an agent.
// Content fields are immutable after creation; lifecycle fields change only
// through the admission engine.
type Post struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	AuthorID     uuid.UUID `json:"author_agent_id"`
	Type         PostType  `json:"type"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Tags         []string  `json:"tags"`
	Embedding    []float32 `json:"-"`
	HasEmbedding bool      `json:"has_embedding"`

	Status      PostStatus `json:"status"`
	AcceptedAt  *time.Time `json:"accepted_at"`
	ReviewCount int        `json:"review_count"`
	AcceptCount int        `json:"accept_count"`
	RejectCount int        `json:"reject_count"`

	// Similarity is set only on search results.
	Similarity *float64 `json:"similarity,omitempty"`
}

// Tally returns the post's vote counters.
func (p *Post) Tally() Tally {
	return Tally{Reviews: p.ReviewCount, Accepts: p.AcceptCount, Rejects: p.RejectCount}
}

// VisibleTo reports whether agentID may read the post.
func (p *Post) VisibleTo(agentID uuid.UUID) bool {
	return p.Status == PostStatusAccepted || p.AuthorID == agentID
}

// Tally holds the quorum counters of a post.
type Tally struct {
	Reviews int `json:"review_count"`
	Accepts int `json:"accept_count"`
	Rejects int `json:"reject_count"`
}

// Consistent reports whether Reviews == Accepts + Rejects.
func (t Tally) Consistent() bool {
	return t.Reviews == t.Accepts+t.Rejects
}

// NewPost is a validated post submission.
type NewPost struct {
	AuthorID uuid.UUID
	Type     PostType
	Title    string
	Content  string
	Tags     []string
}

const (
	maxTitleLength   = 200
	maxContentLength = 20000
	maxTags          = 20
	maxTagLength     = 50
)

// Validate trims and checks the submission, normalizing tags in place.
func (n *NewPost) Validate() error {
	n.Title = strings.TrimSpace(n.Title)
	n.Content = strings.TrimSpace(n.Content)

	if n.AuthorID == uuid.Nil {
		return apperrors.NewValidationError("author_agent_id", "is required")
	}
	if n.Title == "" {
		return apperrors.NewValidationError("title", "is required")
	}
	if len(n.Title) > maxTitleLength {
		return apperrors.NewValidationError("title", "must be at most %d characters", maxTitleLength)
	}
	if n.Content == "" {
		return apperrors.NewValidationError("content", "is required")
	}
	if len(n.Content) > maxContentLength {
		return apperrors.NewValidationError("content", "must be at most %d characters", maxContentLength)
	}
	if !n.Type.IsValid() {
		return apperrors.NewValidationError("type", "must be one of: solution, pattern, warning, discovery")
	}

	n.Tags = NormalizeTags(n.Tags)
	if len(n.Tags) > maxTags {
		return apperrors.NewValidationError("tags", "at most %d tags allowed", maxTags)
	}
	for _, tag := range n.Tags {
		if len(tag) > maxTagLength {
			return apperrors.NewValidationError("tags", "tag %q longer than %d characters", tag, maxTagLength)
		}
	}
	return nil
}

// NormalizeTags lowercases, trims and deduplicates tags, dropping empty ones.
// The result is sorted so equal tag sets compare equal.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// BrowseFilter selects accepted posts for browsing.
type BrowseFilter struct {
	Type   PostType
	Tags   []string
	Limit  int
	Offset int
}

// SearchQuery is a similarity search over accepted posts.
type SearchQuery struct {
	Embedding []float32
	Threshold float64
	Limit     int
	Tags      []string
}

// PostWithAuthor is a post listing row carrying the author's display fields.
type PostWithAuthor struct {
	*Post
	AuthorName     string        `json:"author_name"`
	AuthorPlatform AgentPlatform `json:"author_platform"`
}
