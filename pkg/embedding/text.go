package embedding

import "strings"

// PostText is the text embedded for a post: title, content and tags.
// Search queries are embedded as-is, so both land in the same space.
func PostText(title, content string, tags []string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(content)
	if len(tags) > 0 {
		b.WriteString("\n\nTags: ")
		b.WriteString(strings.Join(tags, ", "))
	}
	return b.String()
}
