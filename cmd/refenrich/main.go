// Command refenrich runs one batch pass of the Reference Enrichment
// Pipeline (spec.md): it discovers, scores, and assigns PRIMARY/
// SECONDARY URLs for a reference store. Signal handling follows
// Tangerg-lynx/core/lynx's start/wait/stop lifecycle, collapsed onto a
// single cancellable context since this process runs one job, not a
// multi-job scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/fergidotcom/reference-refinement-sub003/internal/config"
	"github.com/fergidotcom/reference-refinement-sub003/internal/ledger"
	"github.com/fergidotcom/reference-refinement-sub003/internal/orchestrator"
	"github.com/fergidotcom/reference-refinement-sub003/internal/rank"
	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
	"github.com/fergidotcom/reference-refinement-sub003/internal/search"
	"github.com/fergidotcom/reference-refinement-sub003/internal/strategy"
	"github.com/fergidotcom/reference-refinement-sub003/internal/validate"
)

// Exit codes per spec.md §6: 0 success, 1 fatal error, 2 partial
// (some references recorded as errors), 3 quota exhausted (resumable).
const (
	exitOK             = 0
	exitFatal          = 1
	exitPartial        = 2
	exitQuotaExhausted = 3
)

type cli struct {
	Config string `arg:"" help:"Path to the run configuration file (YAML)."`
	DryRun bool   `help:"Render queries and report the plan without making external calls."`
	Resume bool   `help:"Resume from an existing ledger (default when a ledger file already exists)."`
	Force  bool   `help:"Ignore the existing ledger and start a fresh run."`
}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("refenrich"),
		kong.Description("Assigns PRIMARY/SECONDARY URLs to bibliographic references."),
	)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, c, logger))
}

func run(ctx context.Context, c cli, logger *slog.Logger) int {
	cfg, err := config.Load(c.Config)
	if err != nil {
		logger.Error("config load failed", "error", err)
		return exitFatal
	}

	store, err := refstore.Load(cfg.InputFile)
	if err != nil {
		logger.Error("store load failed", "error", err)
		return exitFatal
	}
	for _, w := range store.Warnings {
		logger.Warn("store parse warning", "detail", w)
	}

	ledgerPath := cfg.OutputFile + ".ledger.json"
	configHash := hashConfig(cfg)

	var l *ledger.Ledger
	if c.Force {
		l, err = ledger.Begin(ledgerPath, configHash)
	} else {
		l, _, err = ledger.LoadOrNew(ledgerPath, configHash)
	}
	if err != nil {
		if errors.Is(err, ledger.ErrLocked) {
			logger.Error("another run holds the ledger lock", "path", ledgerPath)
		} else {
			logger.Error("ledger open failed", "error", err)
		}
		return exitFatal
	}
	defer l.Close()

	refs := selectReferences(store, cfg)
	if cfg.MaxReferences > 0 && len(refs) > cfg.MaxReferences {
		refs = refs[:cfg.MaxReferences]
	}

	orch := orchestrator.New(orchestrator.Options{
		Store:      store,
		OutputPath: cfg.OutputFile,
		Strategist: strategy.NewStrategist(strategy.Mode(cfg.QueryMode), cfg.PrimarySplit, cfg.SecondarySplit),
		Search:     buildSearchClient(cfg),
		Validate:   buildValidator(cfg),
		Rank:       buildRankClient(cfg),
		Ledger:     l,
		Logger:     logger,
		Config: orchestrator.Config{
			PrimaryThreshold:    cfg.PrimaryThreshold,
			SecondaryThreshold:  cfg.SecondaryThreshold,
			AutoFinalize:        cfg.AutoFinalize,
			BatchVersion:        cfg.BatchVersion,
			InterReferenceDelay: time.Duration(cfg.RateLimit.InterRefMs) * time.Millisecond,
			RankBatchSize:       cfg.RankBatchSize,
			DryRun:              c.DryRun,
		},
	})

	result, err := orch.Run(ctx, refs)
	logger.Info("run finished", "processed", result.Processed, "skipped", result.Skipped, "errored", result.Errored, "planned", result.Planned)

	if err != nil {
		if errors.Is(err, orchestrator.ErrQuotaPause) {
			logger.Error("search quota exhausted, pausing for resume", "error", err)
			return exitQuotaExhausted
		}
		logger.Error("run aborted", "error", err)
		return exitFatal
	}

	if result.Errored > 0 {
		return exitPartial
	}
	return exitOK
}

func selectReferences(store *refstore.Store, cfg *config.Config) []*refstore.Reference {
	switch cfg.SelectionMode {
	case config.SelectionRange:
		return store.Filter(refstore.Criteria{IDStart: cfg.IDStart, IDEnd: cfg.IDEnd, NotFinalized: cfg.NotFinalized})
	case config.SelectionCriteria:
		return store.Filter(refstore.Criteria{NotFinalized: cfg.NotFinalized})
	default: // all_incomplete
		return store.Filter(refstore.Criteria{
			NotFinalized: true,
			Predicate: func(r *refstore.Reference) bool {
				return r.URLs.Primary == nil || r.URLs.Secondary == nil
			},
		})
	}
}

func buildSearchClient(cfg *config.Config) *search.Client {
	provider := &search.HTTPProvider{
		Endpoint: cfg.SearchAPIURL,
		APIKey:   cfg.SearchAPIKey,
	}
	return search.NewClient(provider, cfg.RateLimit.SearchMs, time.Duration(cfg.RateLimit.InterRefMs)*time.Millisecond)
}

func buildValidator(cfg *config.Config) *validate.Validator {
	v := validate.NewValidator()
	if cfg.ValidateTopK > 0 {
		v.TopK = cfg.ValidateTopK
	}
	return v
}

func buildRankClient(cfg *config.Config) *rank.Client {
	c := rank.NewClient(cfg.OpenAIAPIKey, cfg.RankModel)
	if cfg.RankTimeoutMs > 0 {
		c.Timeout = time.Duration(cfg.RankTimeoutMs) * time.Millisecond
	}
	return c
}

func hashConfig(cfg *config.Config) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d|%.0f|%.0f|%v",
		cfg.InputFile, cfg.OutputFile, cfg.QueryMode,
		cfg.PrimarySplit, cfg.SecondarySplit,
		cfg.PrimaryThreshold, cfg.SecondaryThreshold, cfg.AutoFinalize)
}
