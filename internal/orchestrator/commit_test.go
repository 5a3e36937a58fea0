package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
)

func TestCommit_SetsURLsAndBatchVersionTag(t *testing.T) {
	ref := &refstore.Reference{ID: 1, Title: "x"}
	primary := withScores("https://primary", 90, 0, 100)
	secondary := withScores("https://secondary", 0, 80, 100)
	Commit(ref, &primary, &secondary, "BATCH_v1.0", false)

	require.NotNil(t, ref.URLs.Primary)
	require.Equal(t, "https://primary", *ref.URLs.Primary)
	require.Equal(t, "https://secondary", *ref.URLs.Secondary)
	require.True(t, ref.HasFlag("BATCH_v1.0"))
	require.False(t, ref.HasFlag(refstore.FlagManualReview))
}

func TestCommit_AddsManualReviewWhenPrimarySlotEmpty(t *testing.T) {
	ref := &refstore.Reference{ID: 1, Title: "x"}
	Commit(ref, nil, nil, "BATCH_v1.0", false)

	require.True(t, ref.HasFlag(refstore.FlagManualReview))
}

func TestCommit_NoManualReviewWhenOnlySecondarySlotEmpty(t *testing.T) {
	// spec.md §8 scenario 1: primary assigned, no candidate clears the
	// secondary threshold — this is normal operation, not a review case.
	ref := &refstore.Reference{ID: 1, Title: "x"}
	primary := withScores("https://primary", 90, 0, 100)
	Commit(ref, &primary, nil, "BATCH_v1.0", false)

	require.False(t, ref.HasFlag(refstore.FlagManualReview))
	require.Nil(t, ref.URLs.Secondary)
}

func TestCommit_FinalizesOnlyWhenAutoFinalizeAndBothAboveEightyFive(t *testing.T) {
	ref := &refstore.Reference{ID: 1, Title: "x"}
	primary := withScores("https://primary", 90, 0, 100)
	secondary := withScores("https://secondary", 0, 88, 100)
	Commit(ref, &primary, &secondary, "BATCH_v1.0", true)

	require.True(t, ref.HasFlag(refstore.FlagFinalized))
	require.False(t, ref.HasFlag(refstore.FlagManualReview))
}

func TestCommit_DoesNotFinalizeWhenAutoFinalizeFalse(t *testing.T) {
	ref := &refstore.Reference{ID: 1, Title: "x"}
	primary := withScores("https://primary", 95, 0, 100)
	secondary := withScores("https://secondary", 0, 95, 100)
	Commit(ref, &primary, &secondary, "BATCH_v1.0", false)

	require.False(t, ref.HasFlag(refstore.FlagFinalized))
}

func TestCommit_NeverRemovesExistingFinalizedFlag(t *testing.T) {
	ref := &refstore.Reference{ID: 1, Title: "x", Flags: []string{refstore.FlagFinalized}}
	Commit(ref, nil, nil, "BATCH_v1.1", false)

	require.True(t, ref.HasFlag(refstore.FlagFinalized))
	require.True(t, ref.HasFlag(refstore.FlagManualReview))
}
