package refstore

import (
	"regexp"
	"strings"
)

var (
	idLineRe     = regexp.MustCompile(`^\[([^\]]*)\]\s?(.*)$`)
	relevanceRe  = regexp.MustCompile(`(?s)\s*Relevance:\s*(.*)$`)
	secondaryRe  = regexp.MustCompile(`\s*SECONDARY_URL\[([^\]]*)\]`)
	primaryRe    = regexp.MustCompile(`\s*PRIMARY_URL\[([^\]]*)\]`)
	flagsRe      = regexp.MustCompile(`\s*FLAGS\[([^\]]*)\]`)
	secondaryLbl = regexp.MustCompile(`(?i)^Secondary URL:\s*(.*)$`)
	primaryLbl   = regexp.MustCompile(`(?i)^Primary URL:\s*(.*)$`)
	flagsLbl     = regexp.MustCompile(`(?i)^FLAGS:\s*(.*)$`)
	authorYearRe = regexp.MustCompile(`^(?P<authors>.*?)\s*\((?P<year>\d{4}|in press)\)\.?\s*(?P<rest>.*)$`)
	ellipsisRe   = regexp.MustCompile(`\.{3,}\s*$`)
	dateSalvage  = regexp.MustCompile(`(?i)^(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{0,2},?\s*\d{0,4}\)\s*`)
)

// suffix holds the optional trailing fields stripped from the head of a
// reference line before the bibliography grammar is applied.
type suffix struct {
	flags     []string
	primary   *string
	secondary *string
	relevance string
}

// stripSuffix removes the known trailing tokens from line and returns the
// remaining head text plus whatever suffix fields were found. It also
// accepts the tokens appearing as a lone labelled continuation line (the
// historical multi-line variant), in which case head is empty.
func stripSuffix(line string) (head string, s suffix) {
	tail := line

	if m := relevanceRe.FindStringSubmatchIndex(tail); m != nil {
		s.relevance = strings.TrimSpace(tail[m[2]:m[3]])
		tail = tail[:m[0]]
	}
	if m := secondaryRe.FindStringSubmatchIndex(tail); m != nil {
		v := tail[m[2]:m[3]]
		s.secondary = &v
		tail = tail[:m[0]] + tail[m[1]:]
	}
	if m := primaryRe.FindStringSubmatchIndex(tail); m != nil {
		v := tail[m[2]:m[3]]
		s.primary = &v
		tail = tail[:m[0]] + tail[m[1]:]
	}
	if m := flagsRe.FindStringSubmatchIndex(tail); m != nil {
		v := tail[m[2]:m[3]]
		s.flags = splitTokens(v)
		tail = tail[:m[0]] + tail[m[1]:]
	}

	return strings.TrimSpace(tail), s
}

func splitTokens(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// isContinuationLine reports whether line is a historical multi-line
// continuation fragment (a lone FLAGS[...]/Primary URL:/Secondary
// URL:/Relevance: line) rather than the start of a new reference or an
// unrelated passthrough line.
func isContinuationLine(line string) (suffix, bool) {
	trimmed := strings.TrimSpace(line)
	var s suffix
	switch {
	case strings.HasPrefix(trimmed, "FLAGS["):
		_, s = stripSuffix(trimmed)
		return s, true
	case flagsLbl.MatchString(trimmed):
		m := flagsLbl.FindStringSubmatch(trimmed)
		s.flags = splitTokens(m[1])
		return s, true
	case primaryLbl.MatchString(trimmed):
		m := primaryLbl.FindStringSubmatch(trimmed)
		v := strings.TrimSpace(m[1])
		s.primary = &v
		return s, true
	case secondaryLbl.MatchString(trimmed):
		m := secondaryLbl.FindStringSubmatch(trimmed)
		v := strings.TrimSpace(m[1])
		s.secondary = &v
		return s, true
	case strings.HasPrefix(trimmed, "Relevance:"):
		m := relevanceRe.FindStringSubmatch(trimmed)
		if m != nil {
			s.relevance = strings.TrimSpace(m[1])
		}
		return s, true
	}
	return s, false
}

// parseHead applies the tolerant "Author(s) (YYYY). Title. Publication."
// grammar with progressive fallback.
func parseHead(head string) (authors, year, title, publication string, confidence map[string]Confidence) {
	confidence = map[string]Confidence{
		"authors":     ConfidenceMissing,
		"year":        ConfidenceMissing,
		"title":       ConfidenceMissing,
		"publication": ConfidenceMissing,
	}
	head = strings.TrimSpace(head)
	if head == "" {
		return "", "", "", "", confidence
	}

	m := authorYearRe.FindStringSubmatch(head)
	if m != nil {
		authors = strings.TrimSpace(m[1])
		year = m[2]
		rest := strings.TrimSpace(m[3])
		if authors != "" {
			confidence["authors"] = ConfidenceFound
		}
		confidence["year"] = ConfidenceFound

		title, publication = splitTitlePublication(rest)
		title = cleanTitle(title)
		if title != "" {
			confidence["title"] = ConfidenceFound
		}
		if publication != "" {
			confidence["publication"] = ConfidenceFound
		}
		return authors, year, title, publication, confidence
	}

	// Fallback: no "(YYYY)" found. Treat the whole head as an uncertain
	// title; authors/year/publication are missing.
	title = cleanTitle(strings.TrimSuffix(head, "."))
	confidence["title"] = ConfidenceUncertain
	return "", "", title, "", confidence
}

func splitTitlePublication(rest string) (title, publication string) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, ". ", 2)
	title = strings.TrimSpace(strings.TrimSuffix(parts[0], "."))
	if len(parts) == 2 {
		publication = strings.TrimSpace(strings.TrimSuffix(parts[1], "."))
	}
	return title, publication
}

func cleanTitle(title string) string {
	title = ellipsisRe.ReplaceAllString(title, "")
	title = dateSalvage.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}
