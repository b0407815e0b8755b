// Package app builds the import service and its dependencies from
// configuration. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/ledger-import/internal/aicache"
	"github.com/dvloznov/ledger-import/internal/categorizer"
	"github.com/dvloznov/ledger-import/internal/config"
	"github.com/dvloznov/ledger-import/internal/dedup"
	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/runlog"
	"github.com/dvloznov/ledger-import/internal/store"
)

// App holds the wired import service.
type App struct {
	Config      *config.Config
	Store       *store.Store
	Ledger      *ledger.Client
	Categorizer *categorizer.Categorizer
	Service     *importer.Service

	closers []func() error
}

// New validates cfg and wires every dependency. Credentials are checked
// before any client is created.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	a.Ledger, err = OpenLedger(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	cache, closeCache, err := OpenCache(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeCache)

	provider, err := categorizer.NewProvider(ctx, cfg.AI)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Categorizer = categorizer.New(provider, cache)

	processor, err := importer.NewProcessor(importer.ProcessorConfig{
		Dedup:       dedup.NewStage(a.Ledger),
		Entities:    st,
		Corrections: st,
		Categorizer: a.Categorizer,
		BaseURL:     cfg.Notion.BaseURL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	executor := importer.NewExecutor(a.Ledger, st,
		importer.WithWorkers(cfg.Import.Workers),
		importer.WithWriteDelay(cfg.Import.WriteDelay),
	)

	a.Service = importer.NewService(processor, executor, a.openRecorder(ctx))
	return a, nil
}

// openRecorder returns the BigQuery run log, or nil when it is disabled or
// cannot be created.
func (a *App) openRecorder(ctx context.Context) importer.RunRecorder {
	log := logger.FromContext(ctx)

	rec, err := runlog.NewBigQueryRecorder(ctx, a.Config.RunLog.ProjectID, a.Config.RunLog.Dataset)
	if errors.Is(err, runlog.ErrDisabled) {
		log.Debug().Msg("Run log disabled")
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("Run log unavailable")
		return nil
	}
	if err := rec.EnsureTable(ctx); err != nil {
		log.Warn().Err(err).Msg("Run log table check failed")
	}

	a.closers = append(a.closers, rec.Close)
	return rec
}

// Close releases every resource opened by New, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenLedger creates the Notion-backed ledger client.
func OpenLedger(cfg *config.Config) (*ledger.Client, error) {
	if err := cfg.ValidateLedger(); err != nil {
		return nil, err
	}

	// The limiter, not the write delay, bounds sustained throughput: one
	// request per worker may go out at once, then Notion's average applies.
	notion, err := ledger.NewNotionClient(cfg.Notion.Token, cfg.Notion.RequestsPerSecond, cfg.Import.Workers)
	if err != nil {
		return nil, err
	}

	return ledger.NewClient(notion, ledger.Databases{
		BalanceSheetID: cfg.Notion.BalanceSheetDBID,
		EntitiesID:     cfg.Notion.EntitiesDBID,
		BaseURL:        cfg.Notion.BaseURL,
	}), nil
}

// OpenCache returns the AI suggestion cache: bolt when a cache path is
// configured, memory otherwise.
func OpenCache(cfg *config.Config) (aicache.Cache, func() error, error) {
	if cfg.AI.CachePath == "" {
		return aicache.NewMemory(), func() error { return nil }, nil
	}

	b, err := aicache.OpenBolt(cfg.AI.CachePath)
	if err != nil {
		return nil, nil, fmt.Errorf("OpenCache: %w", err)
	}
	return b, b.Close, nil
}
