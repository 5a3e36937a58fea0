package rank

import (
	"errors"
	"regexp"
	"strings"

	"github.com/spf13/cast"

	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
)

// ErrParseFailure is returned by Parse when more than half the expected
// lines failed to parse (spec.md §4.F: "if parse_errors > 50% of
// expected lines, fail the batch").
var ErrParseFailure = errors.New("rank_parse_error")

var fenceLine = regexp.MustCompile("^\\s*```")
var dataLine = regexp.MustCompile(`^\s*\d+\s*\|`)

const maxReasonLen = 120

// Row is one parsed score-matrix line.
type Row struct {
	Index   int
	Ranking refstore.Ranking
}

// Parse parses the model's pipe-delimited score matrix (spec.md §4.F),
// skipping markdown fences and any leading prose, and coercing numeric
// fields tolerantly via spf13/cast since a model occasionally emits
// "85" as "85.0" or with stray whitespace.
func Parse(text string, expectedLines int) ([]Row, error) {
	lines := strings.Split(text, "\n")
	var rows []Row
	parseErrors := 0

	for _, line := range lines {
		if fenceLine.MatchString(line) {
			continue
		}
		if !dataLine.MatchString(line) {
			continue
		}
		row, ok := parseLine(line)
		if !ok {
			parseErrors++
			continue
		}
		rows = append(rows, row)
	}

	if expectedLines > 0 && parseErrors*2 > expectedLines {
		return rows, ErrParseFailure
	}
	return rows, nil
}

func parseLine(line string) (Row, bool) {
	fields := strings.Split(strings.TrimSpace(line), "|")
	if len(fields) < 8 {
		return Row{}, false
	}

	index := cast.ToInt(strings.TrimSpace(fields[0]))
	primary := clamp(cast.ToInt(strings.TrimSpace(fields[1])), 0, 100)
	secondary := clamp(cast.ToInt(strings.TrimSpace(fields[2])), 0, 100)

	return Row{
		Index: index,
		Ranking: refstore.Ranking{
			PrimaryScore:    primary,
			SecondaryScore:  secondary,
			PrimaryReason:   truncate(strings.TrimSpace(fields[3]), maxReasonLen),
			SecondaryReason: truncate(strings.TrimSpace(fields[4]), maxReasonLen),
			TitleMatch:      parseTitleMatch(fields[5]),
			AuthorMatch:     parseAuthorMatch(fields[6]),
			Recommend:       parseRecommend(fields[7]),
		},
	}, true
}

func parseTitleMatch(s string) refstore.TitleMatch {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return refstore.TitleMatchExact
	case "partial":
		return refstore.TitleMatchPartial
	default:
		return refstore.TitleMatchNone
	}
}

func parseAuthorMatch(s string) refstore.AuthorMatch {
	if strings.EqualFold(strings.TrimSpace(s), "yes") {
		return refstore.AuthorMatchYes
	}
	return refstore.AuthorMatchNo
}

func parseRecommend(s string) refstore.Recommend {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary":
		return refstore.RecommendPrimary
	case "secondary":
		return refstore.RecommendSecondary
	default:
		return refstore.RecommendNeither
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
