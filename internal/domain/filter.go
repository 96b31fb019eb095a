package domain

import "strings"

// FilterByKeywords отбирает посты, где любое из ключевых слов встречается в
// заголовке или теле (без учёта регистра). Пустой список — фильтра нет.
func FilterByKeywords(posts []RedditPost, keywords []string) []RedditPost {
	if len(keywords) == 0 {
		return posts
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		trimmed := strings.ToLower(strings.TrimSpace(k))
		if trimmed == "" {
			continue
		}
		lowered = append(lowered, trimmed)
	}
	if len(lowered) == 0 {
		return posts
	}

	filtered := make([]RedditPost, 0, len(posts))
	for _, post := range posts {
		haystack := strings.ToLower(post.Title + " " + post.Selftext)
		for _, keyword := range lowered {
			if strings.Contains(haystack, keyword) {
				filtered = append(filtered, post)
				break
			}
		}
	}
	return filtered
}
