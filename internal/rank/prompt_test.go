package rank

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
)

func TestBuildPrompt_ListsReferenceAndNumberedCandidates(t *testing.T) {
	ref := &refstore.Reference{Authors: "Skinner", Year: "1953", Title: "Science and Human Behavior", Publication: "Free Press"}
	candidates := []refstore.Candidate{
		{URL: "https://archive.org/details/x", Title: "Science and Human Behavior"},
		{URL: "https://example.com/review", Title: "A review"},
	}
	p := BuildPrompt(ref, candidates)
	require.Contains(t, p.User, "Skinner")
	require.Contains(t, p.User, "0. https://archive.org/details/x")
	require.Contains(t, p.User, "1. https://example.com/review")
	require.Contains(t, p.System, "PRIMARY|SECONDARY")
}

func TestBuildPrompt_IncludesCapsTable(t *testing.T) {
	ref := &refstore.Reference{Title: "x"}
	p := BuildPrompt(ref, nil)
	require.Contains(t, p.System, "philpapers.org")
	require.Contains(t, p.System, "goodreads.com")
}
