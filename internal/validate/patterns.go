package validate

import (
	"regexp"
	"strings"
)

// Pattern families used by the content-inspection classifier (spec.md
// §4.E step 5). Each pattern is word-boundary, case-insensitive; the
// body text is already lower-cased before matching so the (?i) flag is
// mostly redundant but kept for patterns reused standalone in tests.

var paywallPatterns = compileAll([]string{
	`subscribe to continue`,
	`purchase this article`,
	`\$[0-9]+(\.[0-9]+)? to access`,
	`institutional subscription required`,
	`buy this article`,
	`get access to this article`,
	`pay.?per.?view`,
	`purchase a subscription`,
	`rent this article`,
	`unlock this article`,
	`this content is locked`,
	`subscription required to view`,
})

var loginPatterns = compileAll([]string{
	`sign in to continue`,
	`log in to view`,
	`institutional access required`,
	`please log in to access`,
	`create a free account to continue`,
	`sign in to read`,
	`login required`,
	`you must be logged in`,
	`access through your institution`,
	`sign in with your library card`,
})

var previewPatterns = compileAll([]string{
	`limited preview`,
	`sample pages`,
	`read [0-9]+ pages free`,
	`preview only`,
	`this is a preview`,
	`read the first chapter`,
	`free preview available`,
	`excerpt only`,
	`look inside`,
})

var soft404Patterns = compileAll([]string{
	`page not found`,
	`document unavailable`,
	`doi not found`,
	`we couldn.t find`,
	`the page you requested`,
	`content not available`,
	`no longer available`,
	`404 error`,
})

// compileAll wraps each pattern in word-boundary anchors, but only on
// the side that actually starts/ends with a word character — a boundary
// anchor next to a non-word character (e.g. the leading "$" in a price
// pattern) can never match and would silently disable the pattern.
func compileAll(patterns []string) []*regexp.Regexp {
	wordChar := regexp.MustCompile(`^[A-Za-z0-9(\[]`)
	wordCharEnd := regexp.MustCompile(`[A-Za-z0-9)\]]$`)

	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		lead, trail := "", ""
		if wordChar.MatchString(p) {
			lead = `\b`
		}
		if wordCharEnd.MatchString(p) {
			trail = `\b`
		}
		out = append(out, regexp.MustCompile(`(?i)`+lead+`(`+p+`)`+trail))
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, body string) []string {
	var matched []string
	for _, p := range patterns {
		if p.MatchString(body) {
			matched = append(matched, p.String())
		}
	}
	return matched
}

var tier1Domains = []string{".edu", ".gov", "archive.org", "doi.org"}

func isTier1(host string) bool {
	for _, t := range tier1Domains {
		if strings.HasPrefix(t, ".") {
			if strings.HasSuffix(host, t) {
				return true
			}
			continue
		}
		if strings.Contains(host, t) {
			return true
		}
	}
	return false
}
