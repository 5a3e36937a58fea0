package strategy

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
)

// Primary-query templates (spec.md §4.C).

func primaryTemplate1(title60, surname, year string) string {
	return fmt.Sprintf(`"%s" %s %s filetype:pdf`, title60, surname, year)
}

func primaryTemplate2(title, author string) string {
	return fmt.Sprintf(`"%s" %s site:.edu OR site:.gov`, title, author)
}

func primaryTemplate3(title, author string) string {
	return fmt.Sprintf(`%s %s archive.org OR researchgate.net`, title, author)
}

func primaryFallbackTemplate(title, publisher string) string {
	return fmt.Sprintf(`"%s" %s book`, title, publisher)
}

// Secondary-query templates.

func secondaryTemplate1(title string) string {
	return fmt.Sprintf(`"%s" review`, title)
}

func secondaryTemplate2(title, author string) string {
	return fmt.Sprintf(`"%s" "book review" %s`, title, author)
}

func secondaryTemplate3(title, author string) string {
	return fmt.Sprintf(`%s %s analysis OR critique`, title, author)
}

func secondaryFallbackTemplate(title, relevance string) string {
	kws := extractKeywords(title+" "+relevance, 3)
	return strings.Join(kws, " ") + " scholarly discussion"
}

func orJoin(terms []string) string {
	return strings.Join(terms, " OR ")
}

// authorSurname extracts the first author's surname from a free-form
// authors field such as "Tversky & Kahneman" or "Skinner, B.F.".
func authorSurname(authors string) string {
	authors = strings.TrimSpace(authors)
	if authors == "" {
		return ""
	}
	first := authors
	for _, sep := range []string{"&", ",", " and ", ";"} {
		if i := strings.Index(first, sep); i >= 0 {
			first = first[:i]
		}
	}
	first = strings.TrimSpace(first)
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// truncateAtWord truncates s to at most max runes without splitting a
// word, per spec.md §4.C ("over-long titles are truncated at a word
// boundary").
func truncateAtWord(s string, max int) string {
	if len([]rune(s)) <= max {
		return s
	}
	runes := []rune(s)[:max]
	cut := string(runes)
	if i := strings.LastIndexAny(cut, " \t"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "in": true,
	"on": true, "to": true, "for": true, "is": true, "with": true, "by": true,
	"as": true, "at": true, "from": true, "or": true, "its": true, "into": true,
}

// extractKeywords normalizes text (NFD, strip accents, per the ASCII-
// folding pattern used across the pack for free-text tokenization), then
// returns up to n significant words in first-appearance order, longest
// words preferred when truncating.
func extractKeywords(text string, n int) []string {
	folded := foldASCII(text)
	fields := strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	type word struct {
		text  string
		order int
	}
	seen := map[string]bool{}
	var candidates []word
	for i, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		candidates = append(candidates, word{text: f, order: i})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].text) != len(candidates[j].text) {
			return len(candidates[i].text) > len(candidates[j].text)
		}
		return candidates[i].order < candidates[j].order
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].order < candidates[j].order })

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.text)
	}
	return out
}

func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isMn(r rune) bool { return unicode.Is(unicode.Mn, r) }

// tier1Keywords scans a reference's last-surveyed candidates for hosts
// in the tier-1 free-access domain set and returns up to n of their bare
// host keywords, used by the plus_best_2_from_tier_1 strategy to seed a
// follow-up query with domains that previously worked.
func tier1Keywords(candidates []refstore.Candidate, n int) []string {
	tiers := []string{".edu", ".gov", "archive.org", "doi.org"}
	seen := map[string]bool{}
	var out []string
	for _, c := range candidates {
		host := hostOf(c.URL)
		for _, t := range tiers {
			if strings.Contains(host, t) && !seen[host] {
				seen[host] = true
				out = append(out, host)
			}
		}
		if len(out) >= n {
			break
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func hostOf(rawURL string) string {
	u := strings.TrimPrefix(rawURL, "https://")
	u = strings.TrimPrefix(u, "http://")
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(u)
}
