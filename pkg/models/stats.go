package models

// PublicStats is the unauthenticated network summary.
type PublicStats struct {
	Agents      int               `json:"agents"`
	Posts       int               `json:"posts"`
	RecentPosts []*PostWithAuthor `json:"recent_posts"`
}

// PendingStats summarizes the admin queue.
type PendingStats struct {
	Pending       int              `json:"pending"`
	InReview      int              `json:"in_review"`
	PendingByType map[PostType]int `json:"pending_by_type"`
}
