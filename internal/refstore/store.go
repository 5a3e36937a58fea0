package refstore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fergidotcom/reference-refinement-sub003/internal/atomicfile"
)

// ErrFormat is wrapped into any per-line parse failure reported in
// Warnings; it is never returned from Load itself (spec.md §4.A: "a parse
// failure never raises").
var ErrFormat = errors.New("store_format_error")

// line is either a passthrough (comment/blank/unparseable) line, kept
// verbatim, or a reference entry.
type line struct {
	raw string
	ref *Reference // nil for passthrough lines
}

// Store is the in-memory image of one reference-store file.
type Store struct {
	lines    []line
	byID     map[int]*Reference
	Warnings []string
}

// Load reads path and tolerantly parses it into a Store. It never returns
// an error for malformed reference lines — those are skipped and recorded
// in Warnings — but does return an error if the file itself cannot be
// read.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("refstore: open %s: %w", path, err)
	}
	defer f.Close()

	s := &Store{byID: make(map[int]*Reference)}

	raw, err := readAllLines(f)
	if err != nil {
		return nil, fmt.Errorf("refstore: read %s: %w", path, err)
	}

	i := 0
	for i < len(raw) {
		text := raw[i]
		ref, span, ok := s.tryParseEntry(raw, i)
		if ok {
			s.lines = append(s.lines, line{raw: span, ref: ref})
			if _, dup := s.byID[ref.ID]; dup {
				s.Warnings = append(s.Warnings, fmt.Sprintf("duplicate reference id %d at line %d", ref.ID, i+1))
			}
			s.byID[ref.ID] = ref
			i += countLines(span)
			continue
		}

		if looksLikeIDLine(text) {
			s.Warnings = append(s.Warnings, fmt.Sprintf("%v: line %d: %q", ErrFormat, i+1, text))
		}
		s.lines = append(s.lines, line{raw: text})
		i++
	}

	return s, nil
}

// tryParseEntry attempts to parse a reference entry starting at raw[i],
// absorbing any trailing historical continuation lines. It returns the
// parsed Reference, the exact raw span consumed (joined by "\n",
// preserving the original text for byte-identical passthrough), and
// whether parsing succeeded.
func (s *Store) tryParseEntry(raw []string, i int) (*Reference, string, bool) {
	text := raw[i]
	m := idLineRe.FindStringSubmatch(text)
	if m == nil || !strings.HasPrefix(strings.TrimSpace(text), "[") {
		return nil, "", false
	}
	id, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil {
		return nil, "", false
	}

	head, sfx := stripSuffix(m[2])
	authors, year, title, publication, confidence := parseHead(head)

	ref := &Reference{
		ID:              id,
		Authors:         authors,
		Year:            year,
		Title:           title,
		Publication:     publication,
		Flags:           sfx.flags,
		Relevance:       sfx.relevance,
		FieldConfidence: confidence,
	}
	if sfx.primary != nil {
		ref.URLs.Primary = sfx.primary
	}
	if sfx.secondary != nil {
		ref.URLs.Secondary = sfx.secondary
	}

	span := []string{text}
	j := i + 1
	for j < len(raw) {
		more, isCont := isContinuationLine(raw[j])
		if !isCont {
			break
		}
		span = append(span, raw[j])
		mergeSuffix(ref, more)
		j++
	}

	return ref, strings.Join(span, "\n"), true
}

func mergeSuffix(ref *Reference, s suffix) {
	for _, f := range s.flags {
		if !contains(ref.Flags, f) {
			ref.Flags = append(ref.Flags, f)
		}
	}
	if s.primary != nil {
		ref.URLs.Primary = s.primary
	}
	if s.secondary != nil {
		ref.URLs.Secondary = s.secondary
	}
	if s.relevance != "" {
		ref.Relevance = s.relevance
	}
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func looksLikeIDLine(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "[")
}

func countLines(span string) int {
	return strings.Count(span, "\n") + 1
}

func readAllLines(f *os.File) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}

// References returns every parsed reference in file order.
func (s *Store) References() []*Reference {
	out := make([]*Reference, 0, len(s.byID))
	for _, l := range s.lines {
		if l.ref != nil {
			out = append(out, l.ref)
		}
	}
	return out
}

// Get returns the reference with the given ID, or nil.
func (s *Store) Get(id int) *Reference { return s.byID[id] }

// Criteria selects a subset of references for a batch run.
type Criteria struct {
	IDStart, IDEnd int  // inclusive range; zero IDEnd means unbounded
	NotFinalized   bool // exclude references already flagged FINALIZED
	Predicate      func(*Reference) bool
}

// Filter returns references matching criteria, in store order.
func (s *Store) Filter(c Criteria) []*Reference {
	var out []*Reference
	for _, ref := range s.References() {
		if c.IDStart != 0 && ref.ID < c.IDStart {
			continue
		}
		if c.IDEnd != 0 && ref.ID > c.IDEnd {
			continue
		}
		if c.NotFinalized && ref.HasFlag(FlagFinalized) {
			continue
		}
		if c.Predicate != nil && !c.Predicate(ref) {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// Save writes the store back to path using atomicfile's write-temp,
// fsync, rename discipline. References that were never mutated are
// written through byte-for-byte from their original source span;
// mutated references are re-serialized into canonical single-line form.
func Save(path string, s *Store) error {
	var b strings.Builder
	for idx, l := range s.lines {
		if idx > 0 {
			b.WriteByte('\n')
		}
		if l.ref == nil || !l.ref.dirty {
			b.WriteString(l.raw)
			continue
		}
		b.WriteString(serialize(l.ref))
	}
	b.WriteByte('\n')

	if err := atomicfile.Write(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("refstore: save %s: %w", path, err)
	}
	for i := range s.lines {
		if ref := s.lines[i].ref; ref != nil && ref.dirty {
			ref.dirty = false
			ref.raw = serialize(ref)
			s.lines[i].raw = ref.raw
		}
	}
	return nil
}

// serialize renders ref into the canonical single-line grammar.
func serialize(ref *Reference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] ", ref.ID)

	switch {
	case ref.Authors != "" && ref.Year != "":
		fmt.Fprintf(&b, "%s (%s). %s.", ref.Authors, ref.Year, ref.Title)
	case ref.Title != "":
		fmt.Fprintf(&b, "%s.", ref.Title)
	}
	if ref.Publication != "" {
		fmt.Fprintf(&b, " %s.", ref.Publication)
	}

	if len(ref.Flags) > 0 {
		fmt.Fprintf(&b, " FLAGS[%s]", strings.Join(ref.Flags, " "))
	}
	if ref.URLs.Primary != nil {
		fmt.Fprintf(&b, " PRIMARY_URL[%s]", escapeURL(*ref.URLs.Primary))
	}
	if ref.URLs.Secondary != nil {
		fmt.Fprintf(&b, " SECONDARY_URL[%s]", escapeURL(*ref.URLs.Secondary))
	}
	if ref.Relevance != "" {
		fmt.Fprintf(&b, " Relevance: %s", ref.Relevance)
	}
	return b.String()
}

// escapeURL percent-encodes any literal ']' so it cannot be mistaken for
// the end of a bracketed field, per spec.md §6.
func escapeURL(u string) string {
	return strings.ReplaceAll(u, "]", "%5D")
}
