package ai

import (
	"regexp"
	"strings"
)

// matches assistant file-search markers such as 【4:0†source】 and the whitespace before them
var citationPattern = regexp.MustCompile(`\s*【[^】†]+†source】`)

func StripCitations(s string) string {
	return strings.TrimSpace(citationPattern.ReplaceAllString(s, ""))
}
