// Package orchestrator drives the per-reference workflow of spec.md
// §4.G: Selected → Queried → Searched → Validated → Ranked → Assigned →
// Committed. It owns the selection rule, the commit/flag discipline, and
// the failure semantics that decide whether a bad reference is skipped,
// recorded as an error, or escalated into a paused, resumable run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/fergidotcom/reference-refinement-sub003/internal/ledger"
	"github.com/fergidotcom/reference-refinement-sub003/internal/rank"
	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
	"github.com/fergidotcom/reference-refinement-sub003/internal/search"
	"github.com/fergidotcom/reference-refinement-sub003/internal/strategy"
	"github.com/fergidotcom/reference-refinement-sub003/internal/validate"
)

// rankPromptTokenBudget is a conservative ceiling on one rank-batch
// prompt's estimated size, leaving headroom under typical 8k-context
// ranking models for the model's own output tokens.
const rankPromptTokenBudget = 6000

// ErrQuotaPause is returned by Run when a reference's search quota was
// exhausted; the caller (cmd/refenrich) maps this to exit code 3.
var ErrQuotaPause = errors.New("orchestrator: paused on search quota exhaustion")

// ErrRankFailed marks a reference recorded with error=rank_failed after
// too many consecutive rank-batch failures (spec.md §4.G): its URLs are
// left untouched and the run continues with the next reference.
var ErrRankFailed = errors.New("rank_failed")

const defaultMaxConsecutiveRankFailures = 2

// Searcher is the Search Client surface the orchestrator needs;
// *search.Client satisfies it directly.
type Searcher interface {
	Search(ctx context.Context, query string, queryIndex int) ([]refstore.Candidate, error)
}

// CandidateValidator is the Accessibility Validator surface the
// orchestrator needs; *validate.Validator satisfies it directly.
type CandidateValidator interface {
	Validate(ctx context.Context, ref *refstore.Reference, candidates []refstore.Candidate) ([]refstore.Candidate, error)
}

// CandidateRanker is the LLM Ranker surface the orchestrator needs;
// *rank.Client satisfies it via RankCandidates.
type CandidateRanker interface {
	RankCandidates(ctx context.Context, ref *refstore.Reference, candidates []refstore.Candidate) ([]refstore.Candidate, error)
}

// Config holds the per-run knobs of spec.md §6's config contract that
// the orchestrator itself consumes (selection/query-mode fields live in
// internal/config and internal/strategy).
type Config struct {
	PrimaryThreshold, SecondaryThreshold float64
	AutoFinalize                         bool
	BatchVersion                         string
	InterReferenceDelay                  time.Duration
	RankBatchSize                        int
	MaxConsecutiveRankFailures           int
	DryRun                               bool
}

// Options constructs an Orchestrator, mirroring the teacher's
// BatchJobOptions-then-constructor shape (core/job.NewBatchJob).
type Options struct {
	Store      *refstore.Store
	OutputPath string
	Strategist *strategy.Strategist
	Search     Searcher
	Validate   CandidateValidator
	Rank       CandidateRanker
	Ledger     *ledger.Ledger
	Config     Config
	Logger     *slog.Logger
}

// Orchestrator sequences the per-reference workflow over one batch run.
type Orchestrator struct {
	store      *refstore.Store
	outputPath string
	strategist *strategy.Strategist
	search     Searcher
	validate   CandidateValidator
	rank       CandidateRanker
	ledger     *ledger.Ledger
	config     Config
	logger     *slog.Logger
}

// New builds an Orchestrator from opt, filling in defaults spec.md §6
// names (rank_batch_size, max consecutive rank failures).
func New(opt Options) *Orchestrator {
	cfg := opt.Config
	if cfg.RankBatchSize <= 0 {
		cfg.RankBatchSize = 10
	}
	if cfg.MaxConsecutiveRankFailures <= 0 {
		cfg.MaxConsecutiveRankFailures = defaultMaxConsecutiveRankFailures
	}
	if cfg.PrimaryThreshold <= 0 {
		cfg.PrimaryThreshold = 75
	}
	if cfg.SecondaryThreshold <= 0 {
		cfg.SecondaryThreshold = 75
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      opt.Store,
		outputPath: opt.OutputPath,
		strategist: opt.Strategist,
		search:     opt.Search,
		validate:   opt.Validate,
		rank:       opt.Rank,
		ledger:     opt.Ledger,
		config:     cfg,
		logger:     logger,
	}
}

// Result summarizes one Run call across its reference list.
type Result struct {
	Processed int
	Skipped   int
	Errored   int
	Planned   int
}

// Run drives refs through the state machine in store order, honoring
// ctx cancellation at every suspension point (spec.md §5): in-flight
// per-reference commits finish; nothing starts after cancellation is
// observed. Callers resume by passing the same refs again — completed
// IDs are skipped via the ledger.
func (o *Orchestrator) Run(ctx context.Context, refs []*refstore.Reference) (Result, error) {
	var result Result

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if !o.config.DryRun && o.ledger.Completed(ref.ID) {
			result.Skipped++
			continue
		}

		queries := o.strategist.Render(ref)
		stats := ledger.Stats{QueriesGenerated: len(queries)}

		if o.config.DryRun {
			o.logger.Info("dry-run plan", "reference_id", ref.ID, "queries", queries)
			result.Planned++
			continue
		}

		if err := o.processOne(ctx, ref, queries, &stats, &result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (o *Orchestrator) processOne(ctx context.Context, ref *refstore.Reference, queries []string, stats *ledger.Stats, result *Result) error {
	candidates, err := o.searchAll(ctx, queries, stats)
	if err != nil {
		if errors.Is(err, search.ErrQuotaExhausted) {
			if pauseErr := o.ledger.Pause(); pauseErr != nil {
				return pauseErr
			}
			return fmt.Errorf("%w: reference %d: %v", ErrQuotaPause, ref.ID, err)
		}
		if recErr := o.ledger.RecordError(ref.ID, err); recErr != nil {
			return recErr
		}
		result.Errored++
		return nil
	}
	ref.SetCandidates(candidates)

	validated, err := o.validate.Validate(ctx, ref, candidates)
	if err != nil {
		if recErr := o.ledger.RecordError(ref.ID, err); recErr != nil {
			return recErr
		}
		result.Errored++
		return nil
	}
	ref.SetCandidates(validated)
	o.logRejectedCandidates(ref, validated)

	ranked, err := o.rankAll(ctx, ref, validated, stats)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		if recErr := o.ledger.RecordError(ref.ID, err); recErr != nil {
			return recErr
		}
		result.Errored++
		return nil
	}
	ref.SetCandidates(ranked)

	primary, secondary := Select(ranked, o.config.PrimaryThreshold, o.config.SecondaryThreshold)
	if primary == nil || secondary == nil {
		stats.Warnings++
	}
	Commit(ref, primary, secondary, o.config.BatchVersion, o.config.AutoFinalize)
	if o.config.AutoFinalize && primary != nil && secondary != nil {
		pEff, _ := effectiveScores(*primary)
		_, sEff := effectiveScores(*secondary)
		if pEff >= 85 && sEff >= 85 {
			stats.AutoFinalized++
		}
	}

	if err := refstore.Save(o.outputPath, o.store); err != nil {
		return fmt.Errorf("orchestrator: commit reference %d: %w", ref.ID, err)
	}
	if err := o.ledger.Record(ref.ID, *stats); err != nil {
		return err
	}
	result.Processed++

	if o.config.InterReferenceDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.config.InterReferenceDelay):
		}
	}
	return nil
}

// searchAll runs every query, accumulating and deduplicating candidates
// in first-seen order across the full query list (spec.md §5). A query
// that still fails after the search client's own retries is counted in
// stats.Warnings and skipped — it does not fail the reference — except quota
// exhaustion, which always propagates so the batch can pause.
func (o *Orchestrator) searchAll(ctx context.Context, queries []string, stats *ledger.Stats) ([]refstore.Candidate, error) {
	var all []refstore.Candidate
	for i, q := range queries {
		hits, err := o.search.Search(ctx, q, i)
		if err != nil {
			if errors.Is(err, search.ErrQuotaExhausted) {
				return nil, err
			}
			stats.Warnings++
			continue
		}
		stats.SearchesRun++
		all = append(all, hits...)
	}
	return dedupeAcrossQueries(all), nil
}

func dedupeAcrossQueries(candidates []refstore.Candidate) []refstore.Candidate {
	return lo.UniqBy(candidates, func(c refstore.Candidate) string {
		return search.NormalizeURL(c.URL)
	})
}

// rankAll submits candidates to the ranker in rank_batch_size chunks.
// Two consecutive batch failures abort the reference with ErrRankFailed
// (spec.md §4.G); a lone failure carries that chunk's candidates
// forward into the result with no Ranking set, which effectiveScores
// treats as a zero score, so they fall out of Select's thresholds
// without ever being explicitly dropped — and the run moves on, since
// there is nothing for a single failure to be "consecutive" with yet.
func (o *Orchestrator) rankAll(ctx context.Context, ref *refstore.Reference, candidates []refstore.Candidate, stats *ledger.Stats) ([]refstore.Candidate, error) {
	batchSize := o.config.RankBatchSize
	out := make([]refstore.Candidate, 0, len(candidates))
	consecutiveFailures := 0
	var lastErr error

	for start := 0; start < len(candidates); start += batchSize {
		end := min(start+batchSize, len(candidates))
		batch := candidates[start:end]

		o.checkPromptBudget(ref, batch)

		ranked, err := o.rank.RankCandidates(ctx, ref, batch)
		if err != nil {
			consecutiveFailures++
			lastErr = err
			out = append(out, batch...)
			if consecutiveFailures >= o.config.MaxConsecutiveRankFailures {
				return nil, fmt.Errorf("%w: %v", ErrRankFailed, lastErr)
			}
			continue
		}
		consecutiveFailures = 0
		stats.RanksCompleted += len(ranked)
		out = append(out, ranked...)
	}

	return out, nil
}

// logRejectedCandidates surfaces each rejected candidate's per-candidate
// reason (spec.md §7) as a diagnostic log line, in the same tie-break
// order Select uses (accessibility desc, rank asc, query index asc).
func (o *Orchestrator) logRejectedCandidates(ref *refstore.Reference, validated []refstore.Candidate) {
	for _, c := range validate.RejectedCandidates(validated) {
		o.logger.Debug("candidate rejected", "reference_id", ref.ID, "url", c.URL, "status", c.Validation.Status, "note", c.Validation.Note)
	}
}

// checkPromptBudget logs a warning when a batch's rendered prompt risks
// truncation against the ranker's context window, before the request is
// ever sent.
func (o *Orchestrator) checkPromptBudget(ref *refstore.Reference, batch []refstore.Candidate) {
	prompt := rank.BuildPrompt(ref, batch)
	tokens, err := rank.EstimateTokens(prompt.System + prompt.User)
	if err != nil {
		o.logger.Warn("rank prompt token estimate failed", "reference_id", ref.ID, "error", err)
		return
	}
	if tokens > rankPromptTokenBudget {
		o.logger.Warn("rank prompt exceeds token budget", "reference_id", ref.ID, "estimated_tokens", tokens, "budget", rankPromptTokenBudget)
	}
}
