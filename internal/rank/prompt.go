package rank

import (
	"fmt"
	"strings"

	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
)

// systemPrompt is the fixed preamble: the pipe-delimited output grammar
// plus the scoring tiers and caps table from spec.md §4.F, delivered to
// the model so its own scores are pre-aligned with the orchestrator's
// re-enforcement of the same caps.
const systemPrompt = `You score candidate URLs for a bibliographic reference against two slots: PRIMARY (the work itself, ideally free full text) and SECONDARY (a distinct review or analysis of the work, never the same URL as PRIMARY).

Respond with exactly one line per candidate, no other text, no markdown fences, in this pipe-delimited form:
INDEX|PRIMARY|SECONDARY|PRIMARY_REASON|SECONDARY_REASON|TITLE_MATCH|AUTHOR_MATCH|RECOMMEND

PRIMARY and SECONDARY are integers 0-100. TITLE_MATCH is one of exact/partial/none. AUTHOR_MATCH is yes/no. RECOMMEND is primary/secondary/neither. Keep each reason under 120 characters.

Primary scoring tiers:
95-100: free full text from a tier-1 domain (.edu, .gov, archive.org, doi.org), title matches exactly, no review indicators.
85-94: free full text from a general domain.
70-84: paywalled or preview full text.
60-74: publisher/purchase page (last resort).
<=55: this is a review, quotations, aggregator, or wrong-language page.

Secondary scoring tiers:
90-100: scholarly review article (PDF in a journal, title contains "review").
75-89: non-academic but critical review (blog, magazine).
60-74: academic discussion citing the work.
<=60: bibliography/metadata page, review aggregator site, or topic-only discussion.

Caps you must respect:
- Non-English TLD (.de, .fr, .jp, etc.): PRIMARY <= 70.
- Title contains "review of" / "book review" / "reviewed by": PRIMARY <= 55.
- URL contains "quotations", "excerpts", "anthology", "selections": PRIMARY <= 65.
- Domain is a known aggregator (e.g. complete-review.com, goodreads.com): SECONDARY <= 60.
- Domain is a bibliography listing (e.g. philpapers.org/rec/, worldcat.org, library catalogs): SECONDARY <= 55.
- Content-type mismatch (a PDF URL returned HTML): both PRIMARY and SECONDARY <= 40.
`

// Prompt is the rendered (system, user) pair for one rank-batch request.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the user-message listing the reference and its
// numbered candidates, per spec.md §4.F.
func BuildPrompt(ref *refstore.Reference, candidates []refstore.Candidate) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Reference: %s (%s). %s. %s\n\n", ref.Authors, ref.Year, ref.Title, ref.Publication)
	if ref.Relevance != "" {
		fmt.Fprintf(&b, "Relevance: %s\n\n", ref.Relevance)
	}
	b.WriteString("Candidates:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s | title: %s | snippet: %s\n", i, c.URL, c.Title, truncate(c.Snippet, 200))
	}
	return Prompt{System: systemPrompt, User: b.String()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
