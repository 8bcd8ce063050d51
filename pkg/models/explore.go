package models

// ExploreFilter selects accepted posts for the public listing.
type ExploreFilter struct {
	Type   PostType
	Tag    string
	Limit  int
	Offset int
}

// ExplorePage is one page of the public listing.
type ExplorePage struct {
	Posts   []*PostWithAuthor `json:"posts"`
	Total   int               `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	HasMore bool              `json:"has_more"`
}

// TagCount is the number of accepted posts carrying a tag.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}
