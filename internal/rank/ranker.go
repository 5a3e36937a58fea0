package rank

import (
	"context"
	"errors"

	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
)

// Completer is the minimal surface RankBatch needs from a model client —
// Client satisfies it — factored out so the retry/halving logic can be
// exercised against a fake in tests without a live API.
type Completer interface {
	Rank(ctx context.Context, prompt Prompt) (string, error)
}

// RankBatch scores candidates against ref in one request, retrying
// exactly once with the batch halved on a timeout or parse failure
// (spec.md §4.F). A second failure at the halved size propagates that
// failure's error unchanged — the orchestrator is responsible for
// counting consecutive rank-batch failures across a reference and
// deciding when to give up (spec.md §4.G).
func RankBatch(ctx context.Context, c Completer, ref *refstore.Reference, candidates []refstore.Candidate) ([]refstore.Candidate, error) {
	return rankBatch(ctx, c, ref, candidates, true)
}

func rankBatch(ctx context.Context, c Completer, ref *refstore.Reference, candidates []refstore.Candidate, allowHalve bool) ([]refstore.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	prompt := BuildPrompt(ref, candidates)
	text, err := c.Rank(ctx, prompt)
	if err == nil {
		rows, parseErr := Parse(text, len(candidates))
		if parseErr == nil {
			return applyRows(candidates, rows), nil
		}
		err = parseErr
	}

	retryable := errors.Is(err, ErrTimeout) || errors.Is(err, ErrParseFailure)
	if !retryable || !allowHalve || len(candidates) < 2 {
		return candidates, err
	}

	mid := len(candidates) / 2
	first, err1 := rankBatch(ctx, c, ref, candidates[:mid], false)
	if err1 != nil {
		return candidates, err1
	}
	second, err2 := rankBatch(ctx, c, ref, candidates[mid:], false)
	if err2 != nil {
		return candidates, err2
	}
	return append(first, second...), nil
}

// RankCandidates is the orchestrator-facing entrypoint: it scores one
// already-sized batch through RankBatch using c itself as the
// Completer. The orchestrator decides batch size (rank_batch_size);
// RankBatch stays a free function so its retry/halving logic keeps
// testing against a fake Completer.
func (c *Client) RankCandidates(ctx context.Context, ref *refstore.Reference, candidates []refstore.Candidate) ([]refstore.Candidate, error) {
	return RankBatch(ctx, c, ref, candidates)
}

func applyRows(candidates []refstore.Candidate, rows []Row) []refstore.Candidate {
	out := make([]refstore.Candidate, len(candidates))
	copy(out, candidates)
	for _, row := range rows {
		if row.Index < 0 || row.Index >= len(out) {
			continue
		}
		r := row.Ranking
		out[row.Index].Ranking = &r
	}
	return out
}
