package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/store"
)

const (
	// DefaultWorkers is the size of the write pool.
	DefaultWorkers = 3
	// DefaultWriteDelay is slept by each worker after every write attempt.
	DefaultWriteDelay = 400 * time.Millisecond
)

// PageWriter writes pages to the ledger; implemented by *ledger.Client.
type PageWriter interface {
	CreateTransactionPage(ctx context.Context, tx domain.ConfirmedTransaction) (*ledger.CreatedPage, error)
	CreateEntityPage(ctx context.Context, name string) (*ledger.CreatedPage, error)
}

// EntityCache receives entities created during an import.
type EntityCache interface {
	UpsertEntity(ctx context.Context, e store.Entity) error
}

// Executor writes confirmed transactions with a fixed pool of workers. Each
// worker sleeps after every write attempt, which bounds the aggregate write
// rate to workers/delay.
type Executor struct {
	writer  PageWriter
	cache   EntityCache
	workers int
	delay   time.Duration
}

type ExecutorOption func(*Executor)

// WithWorkers sets the pool size.
func WithWorkers(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithWriteDelay sets the per-worker delay after each write.
func WithWriteDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d >= 0 {
			e.delay = d
		}
	}
}

// NewExecutor creates an Executor. cache may be nil.
func NewExecutor(writer PageWriter, cache EntityCache, opts ...ExecutorOption) *Executor {
	e := &Executor{
		writer:  writer,
		cache:   cache,
		workers: DefaultWorkers,
		delay:   DefaultWriteDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// execution is the state shared by the workers of one Execute call.
type execution struct {
	batchID string
	obs     Observer

	mu       sync.Mutex
	result   *domain.ExecuteResult
	finished int

	entityGroup singleflight.Group
	entityMu    sync.Mutex
	entities    map[string]*ledger.CreatedPage
}

// Execute writes txs to the ledger. Write failures are recorded per item and
// never stop the batch. When ctx is cancelled, in-flight writes complete and
// unclaimed items are counted as skipped.
func (e *Executor) Execute(ctx context.Context, batchID string, txs []domain.ConfirmedTransaction, obs Observer) *domain.ExecuteResult {
	log := logger.FromContext(ctx).With().
		Str("component", "executor").
		Str("batch_id", batchID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	run := &execution{
		batchID: batchID,
		obs:     observerOrNop(obs),
		result: &domain.ExecuteResult{
			BatchID: batchID,
			Failed:  []domain.ImportResult{},
			Results: []domain.ImportResult{},
		},
		entities: make(map[string]*ledger.CreatedPage),
	}
	run.obs.OnStep(StepImporting, len(txs))

	queue := make(chan int, len(txs))
	for i := range txs {
		queue <- i
	}
	close(queue)

	log.Info().
		Int("transaction_count", len(txs)).
		Int("workers", e.workers).
		Dur("write_delay", e.delay).
		Msg("Executing import")

	var g errgroup.Group
	for w := 0; w < e.workers; w++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				i, ok := <-queue
				if !ok {
					return nil
				}
				if wrote := e.executeOne(ctx, run, txs[i]); wrote {
					sleep(ctx, e.delay)
				}
			}
		})
	}
	_ = g.Wait()

	run.mu.Lock()
	defer run.mu.Unlock()
	if unclaimed := len(txs) - run.finished; unclaimed > 0 {
		run.result.Skipped += unclaimed
		log.Warn().Int("unclaimed", unclaimed).Err(ctx.Err()).Msg("Import cancelled before all transactions were claimed")
	}

	log.Info().
		Int("imported", run.result.Imported).
		Int("failed", len(run.result.Failed)).
		Int("skipped", run.result.Skipped).
		Msg("Import executed")

	return run.result
}

// executeOne writes a single transaction and reports whether a write was
// attempted. The write runs detached from ctx cancellation so a claimed
// item always completes.
func (e *Executor) executeOne(ctx context.Context, run *execution, tx domain.ConfirmedTransaction) (wrote bool) {
	summary := domain.SummariseTransaction(tx.ParsedTransaction)
	run.obs.OnItem(summary)

	if tx.Status == domain.StatusSkipped {
		run.mu.Lock()
		run.result.Skipped++
		run.finished++
		run.mu.Unlock()
		run.obs.OnItemDone(summary, "")
		return false
	}

	res := domain.ImportResult{Transaction: tx}
	defer func() {
		if r := recover(); r != nil {
			log := logger.FromContext(ctx)
			log.Error().
				Str("checksum", tx.Checksum).
				Interface("panic", r).
				Msg("Panic while writing transaction")
			res.Success = false
			res.Error = fmt.Sprintf("%v", r)
		}
		run.record(res)
		run.obs.OnItemDone(summary, res.Error)
		wrote = true
	}()

	writeCtx := context.WithoutCancel(ctx)

	if tx.Entity != nil && tx.Entity.EntityID == "" && strings.TrimSpace(tx.Entity.EntityName) != "" {
		page, err := e.ensureEntity(writeCtx, run, strings.TrimSpace(tx.Entity.EntityName))
		if err != nil {
			res.Error = err.Error()
			return true
		}
		entity := *tx.Entity
		entity.EntityID = page.ID
		entity.EntityURL = page.URL
		tx.Entity = &entity
		res.Transaction = tx
	}

	page, err := e.writer.CreateTransactionPage(writeCtx, tx)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("checksum", tx.Checksum).
			Msg("Failed to write transaction")
		res.Error = err.Error()
		return true
	}

	res.Success = true
	res.PageID = page.ID
	res.PageURL = page.URL
	return true
}

// ensureEntity creates the entity page for name at most once per run, even
// when several workers need it at the same time.
func (e *Executor) ensureEntity(ctx context.Context, run *execution, name string) (*ledger.CreatedPage, error) {
	key := strings.ToUpper(name)

	v, err, _ := run.entityGroup.Do(key, func() (interface{}, error) {
		run.entityMu.Lock()
		page, ok := run.entities[key]
		run.entityMu.Unlock()
		if ok {
			return page, nil
		}

		page, err := e.writer.CreateEntityPage(ctx, name)
		if err != nil {
			return nil, err
		}

		run.entityMu.Lock()
		run.entities[key] = page
		run.entityMu.Unlock()

		log := logger.FromContext(ctx)
		if e.cache != nil {
			err := e.cache.UpsertEntity(ctx, store.Entity{ID: page.ID, Name: name, URL: page.URL})
			if err != nil {
				log.Warn().Err(err).Str("entity", name).Msg("Failed to cache new entity")
			}
		}
		log.Info().Str("entity", name).Str("page_id", page.ID).Msg("Created entity")
		return page, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create entity %q: %w", name, err)
	}
	return v.(*ledger.CreatedPage), nil
}

func (run *execution) record(res domain.ImportResult) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.finished++
	run.result.Results = append(run.result.Results, res)
	if res.Success {
		run.result.Imported++
	} else {
		run.result.Failed = append(run.result.Failed, res)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
