package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fergidotcom/reference-refinement-sub003/internal/ledger"
	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
	"github.com/fergidotcom/reference-refinement-sub003/internal/search"
	"github.com/fergidotcom/reference-refinement-sub003/internal/strategy"
)

// distinctSearcher returns a uniquely-URLed candidate per query so
// dedup across queries never collapses the batch to a single candidate.
type distinctSearcher struct{ calls int }

func (f *distinctSearcher) Search(ctx context.Context, query string, queryIndex int) ([]refstore.Candidate, error) {
	f.calls++
	return []refstore.Candidate{{
		URL:         fmt.Sprintf("https://example.com/%d", queryIndex),
		Title:       "Science and Human Behavior",
		QueryIndex:  queryIndex,
	}}, nil
}

type fakeSearcher struct {
	calls     int
	candidate refstore.Candidate
	err       error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, queryIndex int) ([]refstore.Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c := f.candidate
	c.OriginatingQuery = query
	c.QueryIndex = queryIndex
	return []refstore.Candidate{c}, nil
}

type fakeValidator struct {
	confidence int
}

func (f *fakeValidator) Validate(ctx context.Context, ref *refstore.Reference, candidates []refstore.Candidate) ([]refstore.Candidate, error) {
	out := make([]refstore.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Validation = &refstore.ValidationResult{Status: refstore.StatusOK, Confidence: f.confidence}
	}
	return out, nil
}

type fakeRanker struct {
	primary, secondary int
	err                error
}

func (f *fakeRanker) RankCandidates(ctx context.Context, ref *refstore.Reference, candidates []refstore.Candidate) ([]refstore.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]refstore.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Ranking = &refstore.Ranking{PrimaryScore: f.primary, SecondaryScore: f.secondary}
	}
	return out, nil
}

func newTestStore(t *testing.T, line string) (*refstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "refs.txt")
	require.NoError(t, writeFile(path, line+"\n"))
	store, err := refstore.Load(path)
	require.NoError(t, err)
	return store, path
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	dir := t.TempDir()
	l, err := ledger.Begin(filepath.Join(dir, "progress.json"), "hash")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRun_CommitsAssignedURLsAndRecordsLedger(t *testing.T) {
	store, path := newTestStore(t, "[1] Skinner (1953). Science and Human Behavior. Free Press.")
	l := newTestLedger(t)

	o := New(Options{
		Store:      store,
		OutputPath: path,
		Strategist: strategy.NewStrategist(strategy.ModeStandard, 6, 2),
		Search:     &fakeSearcher{candidate: refstore.Candidate{URL: "https://archive.org/details/x", Title: "Science and Human Behavior"}},
		Validate:   &fakeValidator{confidence: 90},
		Rank:       &fakeRanker{primary: 90, secondary: 10},
		Ledger:     l,
		Config:     Config{BatchVersion: "BATCH_v1.0"},
	})

	result, err := o.Run(context.Background(), store.References())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)

	ref := store.Get(1)
	require.NotNil(t, ref.URLs.Primary)
	require.Equal(t, "https://archive.org/details/x", *ref.URLs.Primary)
	require.True(t, l.Completed(1))
}

func TestRun_SkipsAlreadyCompletedReferences(t *testing.T) {
	store, path := newTestStore(t, "[1] Skinner (1953). Science and Human Behavior. Free Press.")
	l := newTestLedger(t)
	require.NoError(t, l.Record(1, ledger.Stats{}))

	searcher := &fakeSearcher{candidate: refstore.Candidate{URL: "https://x", Title: "t"}}
	o := New(Options{
		Store:      store,
		OutputPath: path,
		Strategist: strategy.NewStrategist(strategy.ModeStandard, 6, 2),
		Search:     searcher,
		Validate:   &fakeValidator{confidence: 90},
		Rank:       &fakeRanker{primary: 90, secondary: 10},
		Ledger:     l,
		Config:     Config{BatchVersion: "BATCH_v1.0"},
	})

	result, err := o.Run(context.Background(), store.References())
	require.NoError(t, err)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, 0, searcher.calls)
}

func TestRun_DryRunRendersQueriesWithoutExternalCalls(t *testing.T) {
	store, path := newTestStore(t, "[1] Skinner (1953). Science and Human Behavior. Free Press.")
	l := newTestLedger(t)
	searcher := &fakeSearcher{candidate: refstore.Candidate{URL: "https://x", Title: "t"}}

	o := New(Options{
		Store:      store,
		OutputPath: path,
		Strategist: strategy.NewStrategist(strategy.ModeStandard, 6, 2),
		Search:     searcher,
		Validate:   &fakeValidator{confidence: 90},
		Rank:       &fakeRanker{primary: 90, secondary: 10},
		Ledger:     l,
		Config:     Config{BatchVersion: "BATCH_v1.0", DryRun: true},
	})

	result, err := o.Run(context.Background(), store.References())
	require.NoError(t, err)
	require.Equal(t, 1, result.Planned)
	require.Equal(t, 0, searcher.calls)
}

func TestRun_QuotaExhaustionPausesAndReturnsSentinel(t *testing.T) {
	store, path := newTestStore(t, "[1] Skinner (1953). Science and Human Behavior. Free Press.")
	l := newTestLedger(t)

	o := New(Options{
		Store:      store,
		OutputPath: path,
		Strategist: strategy.NewStrategist(strategy.ModeStandard, 6, 2),
		Search:     &fakeSearcher{err: search.ErrQuotaExhausted},
		Validate:   &fakeValidator{confidence: 90},
		Rank:       &fakeRanker{primary: 90, secondary: 10},
		Ledger:     l,
		Config:     Config{BatchVersion: "BATCH_v1.0"},
	})

	_, err := o.Run(context.Background(), store.References())
	require.ErrorIs(t, err, ErrQuotaPause)
}

func TestRun_TwoConsecutiveRankFailuresRecordsRankFailed(t *testing.T) {
	store, path := newTestStore(t, "[1] Skinner (1953). Science and Human Behavior. Free Press.")
	l := newTestLedger(t)

	o := New(Options{
		Store:      store,
		OutputPath: path,
		Strategist: strategy.NewStrategist(strategy.ModeStandard, 6, 2),
		Search:     &distinctSearcher{},
		Validate:   &fakeValidator{confidence: 90},
		Rank:       &fakeRanker{err: errors.New("rank_timeout")},
		Ledger:     l,
		Config:     Config{BatchVersion: "BATCH_v1.0", RankBatchSize: 1, MaxConsecutiveRankFailures: 2},
	})

	result, err := o.Run(context.Background(), store.References())
	require.NoError(t, err)
	require.Equal(t, 1, result.Errored)
	require.True(t, l.Completed(1))

	errs := l.RecentErrors(1)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error, "rank_failed")

	ref := store.Get(1)
	require.Nil(t, ref.URLs.Primary)
}
