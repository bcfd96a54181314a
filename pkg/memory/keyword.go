package memory

import (
	"fmt"
	"regexp"
	"strings"
)

// compileGlob converts a key pattern with "*" wildcards into an anchored
// regular expression. All other characters match literally.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, `.*`)
	re, err := regexp.Compile("^" + quoted + "$")
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// keywordScore rates how well an item matches a query when no search
// index is configured. Exact matches score 1.0, prefix matches 0.9,
// substring matches 0.7, comparing case-insensitively against both the
// item key and its text.
func keywordScore(query, key, text string) float64 {
	q := strings.ToLower(query)
	score := matchScore(q, strings.ToLower(key))
	if text != "" {
		if s := matchScore(q, strings.ToLower(text)); s > score {
			score = s
		}
	}
	return score
}

func matchScore(query, candidate string) float64 {
	switch {
	case candidate == query:
		return 1.0
	case strings.HasPrefix(candidate, query):
		return 0.9
	case strings.Contains(candidate, query):
		return 0.7
	default:
		return 0
	}
}
