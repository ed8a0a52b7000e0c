package audit

import (
	"regexp"
	"strings"
)

var (
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
)

func titleOf(body string) string {
	m := titleRe.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// visibleWordCount approximates the text a visitor sees: script, style and
// markup are stripped before counting whitespace-separated words.
func visibleWordCount(body string) int {
	text := scriptRe.ReplaceAllString(body, " ")
	text = tagRe.ReplaceAllString(text, " ")
	return len(strings.Fields(text))
}
