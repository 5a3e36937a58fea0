// Package validate implements the Accessibility Validator (spec.md
// §4.E): classifies candidate URLs by actually fetching and inspecting
// content, never by domain heuristics alone.
package validate

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
	"github.com/fergidotcom/reference-refinement-sub003/pkg/safeutil"
)

const defaultConcurrency = 4

// Validator fetches and classifies candidate URLs with bounded
// concurrency.
type Validator struct {
	HTTPClient  *http.Client
	Concurrency int
	// TopK bounds how many candidates (ranked highest-first by the
	// caller) are actually validated, per spec.md §4.E's cost bound.
	TopK int
}

// NewValidator returns a Validator with the spec defaults (≤4 concurrent
// fetches, top 20 candidates).
func NewValidator() *Validator {
	return &Validator{HTTPClient: newHTTPClient(), Concurrency: defaultConcurrency, TopK: 20}
}

// Validate classifies the top TopK of candidates (already ordered
// highest-priority-first by the caller) and returns the full candidate
// slice with Validation populated on the ones that were checked. It
// never returns an error for an individual candidate's fetch failure —
// that is recorded in the candidate's own ValidationResult — only for
// something that would prevent validation from running at all (a nil
// reference).
func (v *Validator) Validate(ctx context.Context, ref *refstore.Reference, candidates []refstore.Candidate) ([]refstore.Candidate, error) {
	if ref == nil {
		return candidates, errors.New("validate: nil reference")
	}
	topK := v.TopK
	if topK <= 0 {
		topK = 20
	}
	limit := v.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	bound := len(candidates)
	if bound > topK {
		bound = topK
	}

	titleWords := significantWords(ref.Title)

	results := make([]*refstore.ValidationResult, bound)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for i := 0; i < bound; i++ {
		i := i
		candidate := candidates[i]
		group.Go(func() error {
			// classifyOne parses attacker-controlled HTML via goquery; a
			// malformed document panicking must not take the whole batch
			// down with it (spec.md §4.E: one bad candidate never fails
			// the reference).
			if err := safeutil.Call(func() error {
				results[i] = v.classifyOne(groupCtx, candidate, titleWords)
				return nil
			}); err != nil {
				results[i] = &refstore.ValidationResult{Status: refstore.StatusNetworkError, Confidence: 0, Note: err.Error()}
			}
			return nil // a single candidate failure never aborts the batch
		})
	}
	if err := group.Wait(); err != nil {
		return candidates, err
	}

	out := make([]refstore.Candidate, len(candidates))
	copy(out, candidates)
	for i := 0; i < bound; i++ {
		out[i].Validation = results[i]
	}
	return out, nil
}

func (v *Validator) classifyOne(ctx context.Context, candidate refstore.Candidate, titleWords []string) *refstore.ValidationResult {
	res := fetch(ctx, v.HTTPClient, candidate.URL)
	if res.err != nil {
		status := refstore.StatusNetworkError
		if looksLikeTimeout(res.err) || ctx.Err() != nil {
			status = refstore.StatusTimeout
		}
		return &refstore.ValidationResult{Status: status, Confidence: 0, Note: res.err.Error()}
	}

	if res.statusCode >= 400 {
		code := res.statusCode
		return &refstore.ValidationResult{Status: refstore.StatusHTTPError, HTTPCode: &code, EffectiveURL: res.effectiveURL, Confidence: 0}
	}

	if pathLooksLikePDF(candidate.URL) && !strings.Contains(strings.ToLower(res.contentType), "pdf") && strings.Contains(strings.ToLower(res.contentType), "html") {
		code := res.statusCode
		return &refstore.ValidationResult{
			Status: refstore.StatusContentTypeMismatch, HTTPCode: &code,
			EffectiveURL: res.effectiveURL, Confidence: 15,
		}
	}

	lowerBody := strings.ToLower(res.body)
	code := res.statusCode

	if m := anyMatch(paywallPatterns, lowerBody); len(m) > 0 {
		return &refstore.ValidationResult{Status: refstore.StatusPaywall, HTTPCode: &code, EffectiveURL: res.effectiveURL, DetectedPatterns: m, Confidence: 50}
	}
	if m := anyMatch(loginPatterns, lowerBody); len(m) > 0 {
		return &refstore.ValidationResult{Status: refstore.StatusLoginRequired, HTTPCode: &code, EffectiveURL: res.effectiveURL, DetectedPatterns: m, Confidence: 55}
	}
	if m := anyMatch(previewPatterns, lowerBody); len(m) > 0 {
		return &refstore.ValidationResult{Status: refstore.StatusPreviewOnly, HTTPCode: &code, EffectiveURL: res.effectiveURL, DetectedPatterns: m, Confidence: 35}
	}
	if m := anyMatch(soft404Patterns, lowerBody); len(m) > 0 {
		return &refstore.ValidationResult{Status: refstore.StatusSoft404, HTTPCode: &code, EffectiveURL: res.effectiveURL, DetectedPatterns: m, Confidence: 0}
	}

	bodyText := extractText(res.body)
	coverage := titleCoverage(bodyText, titleWords)

	if coverage >= minTitleCoverage(titleWords) {
		score := 90
		if isTier1(hostOf(res.effectiveURL)) {
			score = 95
		}
		return &refstore.ValidationResult{Status: refstore.StatusOK, HTTPCode: &code, EffectiveURL: res.effectiveURL, Confidence: score}
	}

	return &refstore.ValidationResult{
		Status: refstore.StatusOK, HTTPCode: &code, EffectiveURL: res.effectiveURL,
		Confidence: 40, Note: "wrong_content",
	}
}

// extractText pulls visible body text via goquery, stripping script/
// style content, the way an HTML-aware content classifier should rather
// than regex-scraping raw markup.
func extractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, nav, noscript").Remove()
	return doc.Text()
}

func significantWords(title string) []string {
	fields := strings.Fields(title)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.Trim(f, ".,:;!?\"'()"))
		if len(f) >= 4 {
			out = append(out, f)
		}
		if len(out) >= 6 {
			break
		}
	}
	return out
}

func titleCoverage(bodyText string, titleWords []string) int {
	lower := strings.ToLower(bodyText)
	count := 0
	for _, w := range titleWords {
		if strings.Contains(lower, w) {
			count++
		}
	}
	return count
}

func minTitleCoverage(titleWords []string) int {
	if len(titleWords) >= 6 {
		return 3
	}
	if len(titleWords) == 0 {
		return 0
	}
	half := len(titleWords) / 2
	if half < 1 {
		return 1
	}
	return half
}

// RejectedCandidates returns the subset of candidates whose validation
// status is rejected, sorted by tie-break order (accessibility desc,
// rank asc, query index asc) as a convenience for callers building a
// diagnostic report.
func RejectedCandidates(candidates []refstore.Candidate) []refstore.Candidate {
	var rejected []refstore.Candidate
	for _, c := range candidates {
		if c.Validation != nil && c.Validation.Status.Rejected() {
			rejected = append(rejected, c)
		}
	}
	sort.SliceStable(rejected, func(i, j int) bool {
		ci, cj := rejected[i], rejected[j]
		if ci.Validation.Confidence != cj.Validation.Confidence {
			return ci.Validation.Confidence > cj.Validation.Confidence
		}
		if ci.RankWithinQuery != cj.RankWithinQuery {
			return ci.RankWithinQuery < cj.RankWithinQuery
		}
		return ci.QueryIndex < cj.QueryIndex
	})
	return rejected
}
