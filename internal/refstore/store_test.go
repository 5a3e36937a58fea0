package refstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "refs.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ParsesBasicGrammar(t *testing.T) {
	path := writeTemp(t, `[10] Skinner (1953). Science and Human Behavior. Free Press.
`)
	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.References(), 1)

	ref := s.Get(10)
	require.NotNil(t, ref)
	require.Equal(t, "Skinner", ref.Authors)
	require.Equal(t, "1953", ref.Year)
	require.Equal(t, "Science and Human Behavior", ref.Title)
	require.Equal(t, "Free Press", ref.Publication)
}

func TestLoad_ParsesFlagsAndURLs(t *testing.T) {
	path := writeTemp(t, `[11] Tversky & Kahneman (1974). Judgment under uncertainty. Science. FLAGS[BATCH_v1.0] PRIMARY_URL[https://uci.edu/tversky.pdf] SECONDARY_URL[https://jstor.org/review] Relevance: heuristics and biases
`)
	s, err := Load(path)
	require.NoError(t, err)
	ref := s.Get(11)
	require.NotNil(t, ref)
	require.True(t, ref.HasFlag("BATCH_v1.0"))
	require.Equal(t, "https://uci.edu/tversky.pdf", *ref.URLs.Primary)
	require.Equal(t, "https://jstor.org/review", *ref.URLs.Secondary)
	require.Equal(t, "heuristics and biases", ref.Relevance)
}

func TestLoad_PreservesBlankAndCommentLines(t *testing.T) {
	content := "# a comment\n\n[12] Anderson (1983). Imagined Communities.\n"
	path := writeTemp(t, content)
	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.lines, 3)
	require.Equal(t, "# a comment", s.lines[0].raw)
	require.Equal(t, "", s.lines[1].raw)
}

func TestLoad_MultiLineHistoricalVariant(t *testing.T) {
	content := "[13] Searle (2010). Making the Social World.\n" +
		"FLAGS[MANUAL_REVIEW]\n" +
		"Primary URL: https://example.com/searle\n"
	path := writeTemp(t, content)
	s, err := Load(path)
	require.NoError(t, err)
	ref := s.Get(13)
	require.NotNil(t, ref)
	require.True(t, ref.HasFlag("MANUAL_REVIEW"))
	require.Equal(t, "https://example.com/searle", *ref.URLs.Primary)
	require.False(t, ref.Dirty())
}

func TestLoad_UnparseableIDProducesWarningNotError(t *testing.T) {
	path := writeTemp(t, "[notanumber] broken entry\n[14] Ok (2000). Fine Title.\n")
	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.References(), 1)
	require.NotEmpty(t, s.Warnings)
}

func TestSave_IsIdentityForUntouchedReferences(t *testing.T) {
	content := "[20] Author A (2001). A Title. Pub One.\n[21] Author B (2002). B Title. Pub Two.\n"
	path := writeTemp(t, content)
	s, err := Load(path)
	require.NoError(t, err)

	out := filepath.Join(filepath.Dir(path), "out.txt")
	require.NoError(t, Save(out, s))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, content, string(got))
}

func TestSave_RewritesOnlyMutatedReferences(t *testing.T) {
	content := "[20] Author A (2001). A Title. Pub One.\n[21] Author B (2002). B Title. Pub Two.\n"
	path := writeTemp(t, content)
	s, err := Load(path)
	require.NoError(t, err)

	url := "https://example.com/a"
	s.Get(20).SetPrimaryURL(&url)
	s.Get(20).AddFlag("BATCH_v1.0")

	out := filepath.Join(filepath.Dir(path), "out.txt")
	require.NoError(t, Save(out, s))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := splitLinesKeepEmpty(string(got))
	require.Contains(t, lines[0], "PRIMARY_URL[https://example.com/a]")
	require.Contains(t, lines[0], "FLAGS[BATCH_v1.0]")
	require.Equal(t, "[21] Author B (2002). B Title. Pub Two.", lines[1])
}

func TestFilter_ByRangeAndFlag(t *testing.T) {
	content := "[1] A (2000). T1.\n[2] B (2001). T2. FLAGS[FINALIZED]\n[3] C (2002). T3.\n"
	path := writeTemp(t, content)
	s, err := Load(path)
	require.NoError(t, err)

	got := s.Filter(Criteria{IDStart: 2, IDEnd: 3, NotFinalized: true})
	require.Len(t, got, 1)
	require.Equal(t, 3, got[0].ID)
}

func splitLinesKeepEmpty(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == '\n' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
