// Package refstore implements the line-oriented bibliographic reference
// store: tolerant parsing of the `[ID] bibliography FLAGS[...] ...` grammar,
// byte-exact round-trip for anything the pipeline did not touch, and the
// small set of mutator methods the Orchestrator is allowed to call.
package refstore

import "slices"

// Confidence records how sure the tolerant parser is about one field.
type Confidence string

const (
	ConfidenceFound     Confidence = "found"
	ConfidenceUncertain Confidence = "uncertain"
	ConfidenceMissing   Confidence = "missing"
)

// Known flag tokens. The enumeration is open — any other whitespace-
// separated token surviving a parse is preserved verbatim in Flags.
const (
	FlagFinalized        = "FINALIZED"
	FlagManualReview     = "MANUAL_REVIEW"
	FlagUnfinalized      = "UNFINALIZED"
	FlagPaywall          = "PAYWALL_DETECTED"
	FlagDeepValidate     = "NEEDS_DEEP_VALIDATION"
	FlagValidationFailed = "URL_VALIDATION_FAILED"
)

// URLs holds the two canonical slots a committed reference owns.
type URLs struct {
	Primary   *string
	Secondary *string
}

// Reference is one bibliographic entry. ID is externally assigned and
// immutable; Authors/Year/Title/Publication are preserved verbatim unless
// an explicit edit occurs. Queries/Candidates/URLs/Flags are the fields
// the Orchestrator owns and may mutate.
type Reference struct {
	ID          int
	Authors     string
	Year        string
	Title       string
	Publication string
	Relevance   string

	Queries    []string
	Candidates []Candidate
	URLs       URLs
	Flags      []string

	// FieldConfidence records the tolerant parser's confidence per
	// head-grammar field (Authors/Year/Title/Publication). Never
	// serialized; used only for diagnostics and strategy selection
	// (e.g. "author missing" feeds the query strategist).
	FieldConfidence map[string]Confidence

	// raw is the canonical single-line form Save last wrote for this
	// reference after re-serializing it; it is empty until then. The
	// Store keeps each entry's source text (including any historical
	// multi-line continuation form) and Save writes that through
	// byte-for-byte as long as dirty is false.
	raw   string
	dirty bool
}

// Dirty reports whether this reference has been mutated since it was
// loaded, i.e. whether Save must re-serialize it instead of writing raw
// through verbatim.
func (r *Reference) Dirty() bool { return r.dirty }

// HasFlag reports whether token is present in Flags.
func (r *Reference) HasFlag(token string) bool {
	return slices.Contains(r.Flags, token)
}

// AddFlag adds token to Flags if not already present and marks the
// reference dirty. Adding a flag is always a mutation, even if the flag
// was already implicitly true some other way, because the ledger/version
// tag contract requires every committed reference to gain exactly one
// BATCH_v* token (see orchestrator.Commit).
func (r *Reference) AddFlag(token string) {
	if slices.Contains(r.Flags, token) {
		return
	}
	r.Flags = append(r.Flags, token)
	r.dirty = true
}

// RemoveFlag removes token from Flags if present and marks the reference
// dirty.
func (r *Reference) RemoveFlag(token string) {
	i := slices.Index(r.Flags, token)
	if i < 0 {
		return
	}
	r.Flags = slices.Delete(r.Flags, i, i+1)
	r.dirty = true
}

// SetQueries replaces the rendered query list for this pass.
func (r *Reference) SetQueries(queries []string) {
	r.Queries = queries
	r.dirty = true
}

// SetCandidates replaces the last-surveyed candidate set.
func (r *Reference) SetCandidates(candidates []Candidate) {
	r.Candidates = candidates
	r.dirty = true
}

// SetPrimaryURL sets or clears the primary URL slot.
func (r *Reference) SetPrimaryURL(url *string) {
	r.URLs.Primary = url
	r.dirty = true
}

// SetSecondaryURL sets or clears the secondary URL slot.
func (r *Reference) SetSecondaryURL(url *string) {
	r.URLs.Secondary = url
	r.dirty = true
}

// Candidate is a per-search-hit record surfaced by the Search Client.
type Candidate struct {
	URL              string
	Title            string
	Snippet          string
	OriginatingQuery string
	RankWithinQuery  int
	QueryIndex       int

	// Populated after Accessibility Validation / LLM Ranking run; zero
	// values mean "not yet evaluated this pass".
	Validation *ValidationResult
	Ranking    *Ranking
}

// ValidationStatus is the outcome of fetching and classifying a candidate
// URL.
type ValidationStatus string

const (
	StatusOK                  ValidationStatus = "ok"
	StatusHTTPError           ValidationStatus = "http_error"
	StatusContentTypeMismatch ValidationStatus = "content_type_mismatch"
	StatusPaywall             ValidationStatus = "paywall"
	StatusLoginRequired       ValidationStatus = "login_required"
	StatusPreviewOnly         ValidationStatus = "preview_only"
	StatusSoft404             ValidationStatus = "soft_404"
	StatusTimeout             ValidationStatus = "timeout"
	StatusNetworkError        ValidationStatus = "network_error"
)

// Rejected reports whether a candidate with this status must be excluded
// from a slot unless no valid alternative exists for it (spec.md §3).
func (s ValidationStatus) Rejected() bool { return s != StatusOK }

// ValidationResult is the Accessibility Validator's verdict for one URL.
type ValidationResult struct {
	Status           ValidationStatus
	HTTPCode         *int
	EffectiveURL     string
	DetectedPatterns []string
	Confidence       int // 0-100, aka accessibility_score
	Note             string
}

// TitleMatch classifies how closely a candidate's apparent title matches
// the reference title, as judged by the LLM Ranker.
type TitleMatch string

const (
	TitleMatchExact   TitleMatch = "exact"
	TitleMatchPartial TitleMatch = "partial"
	TitleMatchNone    TitleMatch = "none"
)

// AuthorMatch classifies whether the candidate's author(s) match.
type AuthorMatch string

const (
	AuthorMatchYes AuthorMatch = "yes"
	AuthorMatchNo  AuthorMatch = "no"
)

// Recommend is the LLM's own slot recommendation for a candidate.
type Recommend string

const (
	RecommendPrimary   Recommend = "primary"
	RecommendSecondary Recommend = "secondary"
	RecommendNeither   Recommend = "neither"
)

// Ranking is one (reference, candidate) scoring row out of the LLM
// Ranker's pipe-delimited score matrix.
type Ranking struct {
	PrimaryScore    int
	SecondaryScore  int
	PrimaryReason   string
	SecondaryReason string
	TitleMatch      TitleMatch
	AuthorMatch     AuthorMatch
	Recommend       Recommend
}
