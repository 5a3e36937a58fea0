package orchestrator

import "github.com/fergidotcom/reference-refinement-sub003/internal/refstore"

// effectiveScores computes Eff_P/Eff_S for c (spec.md §4.G): the ranker's
// raw score capped by the validator's accessibility confidence. A
// candidate never validated or never ranked this pass contributes zero
// to both slots.
func effectiveScores(c refstore.Candidate) (effP, effS int) {
	if c.Ranking == nil || c.Validation == nil {
		return 0, 0
	}
	capScore := c.Validation.Confidence
	return min(c.Ranking.PrimaryScore, capScore), min(c.Ranking.SecondaryScore, capScore)
}

// better reports whether candidate a (with effective score effA) should
// be preferred over candidate b (effB) under the tie-break order from
// spec.md §4.G: accessibility_score desc, rank_within_query asc,
// original_query_index asc.
func better(a refstore.Candidate, effA int, b refstore.Candidate, effB int) bool {
	if effA != effB {
		return effA > effB
	}
	aConf, bConf := 0, 0
	if a.Validation != nil {
		aConf = a.Validation.Confidence
	}
	if b.Validation != nil {
		bConf = b.Validation.Confidence
	}
	if aConf != bConf {
		return aConf > bConf
	}
	if a.RankWithinQuery != b.RankWithinQuery {
		return a.RankWithinQuery < b.RankWithinQuery
	}
	return a.QueryIndex < b.QueryIndex
}

// argMaxEligible returns the index of the candidate maximizing effFn
// among those at or above threshold, excluding index exclude. ok is
// false when no candidate qualifies.
func argMaxEligible(candidates []refstore.Candidate, effFn func(refstore.Candidate) int, threshold float64, exclude int) (best int, ok bool) {
	best = -1
	bestEff := 0
	for i, c := range candidates {
		if i == exclude {
			continue
		}
		eff := effFn(c)
		if float64(eff) < threshold {
			continue
		}
		if best == -1 || better(c, eff, candidates[best], bestEff) {
			best, bestEff = i, eff
		}
	}
	return best, best != -1
}

// Select applies the deterministic selection rule of spec.md §4.G to one
// reference's candidate set: the primary slot maximizes Eff_P above
// primaryThreshold; the secondary slot maximizes Eff_S above
// secondaryThreshold among the remaining candidates, subject to mutual
// exclusivity — once a primary clears 85, a candidate is only
// secondary-eligible if its Eff_S exceeds its own Eff_P by at least 20,
// i.e. it reads as review-like rather than source-like. Either return
// value is nil when no candidate qualifies for that slot.
func Select(candidates []refstore.Candidate, primaryThreshold, secondaryThreshold float64) (primary, secondary *refstore.Candidate) {
	effP := func(c refstore.Candidate) int { p, _ := effectiveScores(c); return p }
	effS := func(c refstore.Candidate) int { _, s := effectiveScores(c); return s }

	pIdx, pOk := argMaxEligible(candidates, effP, primaryThreshold, -1)

	secondaryEff := effS
	if pOk {
		if p, _ := effectiveScores(candidates[pIdx]); p >= 85 {
			secondaryEff = func(c refstore.Candidate) int {
				p, s := effectiveScores(c)
				if s-p < 20 {
					return -1
				}
				return s
			}
		}
	}

	exclude := -1
	if pOk {
		exclude = pIdx
	}
	sIdx, sOk := argMaxEligible(candidates, secondaryEff, secondaryThreshold, exclude)

	if pOk {
		c := candidates[pIdx]
		primary = &c
	}
	if sOk {
		c := candidates[sIdx]
		secondary = &c
	}
	return primary, secondary
}
