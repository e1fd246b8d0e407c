package util

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"
)

var hashtagRe = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}_]+)`)

// NormalizeInput flattens newlines and escapes HTML so composed text is
// safe to embed in an activity body.
func NormalizeInput(text string) string {
	normalized := strings.Replace(text, "\n", " ", -1)
	normalized = html.EscapeString(normalized)
	return strings.TrimSpace(normalized)
}

// ExtractHashtags returns the deduplicated #tag names found in text,
// without the leading hash, in order of first appearance.
func ExtractHashtags(text string) []string {
	matches := hashtagRe.FindAllStringSubmatch(text, -1)

	seen := make(map[string]bool, len(matches))
	var tags []string
	for _, m := range matches {
		tag := m[2]
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}
