// Package strategy implements the Query Strategist (spec.md §4.C): it
// chooses how to generate search queries for one reference and renders
// the bounded, deterministic query list the Search Client will execute.
package strategy

import (
	"strings"

	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
)

// Mode selects between the adaptive per-reference strategy picker
// (Smart, the default) and the fixed legacy 8-query split (Standard).
type Mode string

const (
	ModeSmart    Mode = "smart"
	ModeStandard Mode = "standard"
)

// Name identifies one of the three Smart-mode strategies.
type Name string

const (
	TitleFirst60Chars  Name = "title_first_60_chars"
	TitleKeywords5     Name = "title_keywords_5_terms"
	PlusBest2FromTier1 Name = "plus_best_2_from_tier_1"
)

const maxQueryLen = 200

// Strategist renders the query list for a reference according to the
// configured mode.
type Strategist struct {
	Mode Mode

	// PrimarySplit and SecondarySplit govern Standard mode only; they
	// must sum to 8 (spec.md §6's primary_split/secondary_split).
	PrimarySplit   int
	SecondarySplit int
}

// NewStrategist returns a Strategist in the given mode, defaulting the
// Standard-mode split to 6 primary + 2 secondary when unset.
func NewStrategist(mode Mode, primarySplit, secondarySplit int) *Strategist {
	if primarySplit == 0 && secondarySplit == 0 {
		primarySplit, secondarySplit = 6, 2
	}
	return &Strategist{Mode: mode, PrimarySplit: primarySplit, SecondarySplit: secondarySplit}
}

// Select is the pure, deterministic strategy-selection function from
// spec.md §4.C, used only in Smart mode.
func Select(ref *refstore.Reference) Name {
	if ref.HasFlag(refstore.FlagManualReview) ||
		ref.HasFlag(refstore.FlagPaywall) ||
		ref.HasFlag(refstore.FlagValidationFailed) {
		return TitleKeywords5
	}
	if len(ref.Title) < 20 || strings.TrimSpace(ref.Authors) == "" {
		return PlusBest2FromTier1
	}
	return TitleFirst60Chars
}

// Render produces the bounded, ordered query list for ref and marks it
// dirty via Reference.SetQueries.
func (s *Strategist) Render(ref *refstore.Reference) []string {
	var queries []string
	if s.Mode == ModeStandard {
		queries = s.renderStandard(ref)
	} else {
		queries = s.renderSmart(ref, Select(ref))
	}
	ref.SetQueries(queries)
	return queries
}

func (s *Strategist) renderSmart(ref *refstore.Reference, strategyName Name) []string {
	surname := authorSurname(ref.Authors)
	switch strategyName {
	case TitleKeywords5:
		kws := extractKeywords(ref.Title+" "+ref.Relevance, 5)
		joined := strings.Join(kws, " ")
		return dedupTruncate([]string{
			joined,
			withFiletypePDF(joined),
			joined + " review",
		})
	case PlusBest2FromTier1:
		tier1 := tier1Keywords(ref.Candidates, 2)
		base := ref.Title
		if len(tier1) > 0 {
			base = orJoin(tier1) + " " + ref.Title
		}
		return dedupTruncate([]string{
			base,
			primaryFallbackTemplate(ref.Title, ref.Publication),
			secondaryTemplate1(ref.Title),
		})
	default: // TitleFirst60Chars
		title60 := truncateAtWord(ref.Title, 60)
		return dedupTruncate([]string{
			primaryTemplate1(title60, surname, ref.Year),
			primaryTemplate2(ref.Title, surname),
			primaryTemplate3(ref.Title, surname),
		})
	}
}

func (s *Strategist) renderStandard(ref *refstore.Reference) []string {
	surname := authorSurname(ref.Authors)
	title60 := truncateAtWord(ref.Title, 60)

	primaries := allocateTemplates(s.PrimarySplit, []func() string{
		func() string { return primaryTemplate1(title60, surname, ref.Year) },
		func() string { return primaryTemplate2(ref.Title, surname) },
		func() string { return primaryTemplate3(ref.Title, surname) },
	}, func() string { return primaryFallbackTemplate(ref.Title, ref.Publication) })

	secondaries := allocateTemplates(s.SecondarySplit, []func() string{
		func() string { return secondaryTemplate1(ref.Title) },
		func() string { return secondaryTemplate2(ref.Title, surname) },
		func() string { return secondaryTemplate3(ref.Title, surname) },
	}, func() string { return secondaryFallbackTemplate(ref.Title, ref.Relevance) })

	out := make([]string, 0, len(primaries)+len(secondaries))
	out = append(out, primaries...)
	out = append(out, secondaries...)
	return dedupTruncate(out)
}

// allocateTemplates fills a budget of n queries: 75% cycling through the
// core templates, the remainder filled by the fallback, per spec.md
// §4.C's "(75% of standard-mode primary budget)" split.
func allocateTemplates(n int, core []func() string, fallback func() string) []string {
	if n <= 0 {
		return nil
	}
	coreCount := (n*3 + 2) / 4 // round(n*0.75)
	if coreCount > n {
		coreCount = n
	}
	out := make([]string, 0, n)
	for i := 0; i < coreCount; i++ {
		out = append(out, core[i%len(core)]())
	}
	for len(out) < n {
		out = append(out, fallback())
	}
	return out
}

func dedupTruncate(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = truncateQuery(strings.Join(strings.Fields(q), " "))
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}

// truncateQuery enforces the 200-char limit, cutting at a word boundary.
func truncateQuery(q string) string {
	if len(q) <= maxQueryLen {
		return q
	}
	return truncateAtWord(q, maxQueryLen)
}

func withFiletypePDF(q string) string {
	return q + " filetype:pdf"
}
