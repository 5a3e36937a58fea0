package orchestrator

import "github.com/fergidotcom/reference-refinement-sub003/internal/refstore"

// Commit applies one pass's selection result to ref and tags it with
// batchVersion (e.g. "BATCH_v1.0"), per spec.md §4.G. It is the sole
// place that adds FINALIZED or MANUAL_REVIEW: FINALIZED only when
// autoFinalize is set and both slots cleared 85, which also clears any
// existing MANUAL_REVIEW in the same commit; otherwise MANUAL_REVIEW is
// added only when the primary slot stayed empty (an empty secondary is
// normal — most references have no qualifying review candidate — and
// never manual-review-worthy on its own), and cleared once a primary is
// assigned. Commit never removes an existing FINALIZED tag — demoting a
// previously finalized reference on a later low-confidence pass is left
// undecided by spec.md and not attempted here.
func Commit(ref *refstore.Reference, primary, secondary *refstore.Candidate, batchVersion string, autoFinalize bool) {
	if primary != nil {
		u := primary.URL
		ref.SetPrimaryURL(&u)
	}
	if secondary != nil {
		u := secondary.URL
		ref.SetSecondaryURL(&u)
	}

	ref.AddFlag(batchVersion)

	if autoFinalize && primary != nil && secondary != nil {
		pEff, _ := effectiveScores(*primary)
		_, sEff := effectiveScores(*secondary)
		if pEff >= 85 && sEff >= 85 {
			ref.AddFlag(refstore.FlagFinalized)
			ref.RemoveFlag(refstore.FlagManualReview)
			return
		}
	}

	if primary == nil {
		ref.AddFlag(refstore.FlagManualReview)
	} else {
		ref.RemoveFlag(refstore.FlagManualReview)
	}
}
