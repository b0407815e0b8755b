package importer

import (
	"context"
	"sync"

	"github.com/dvloznov/ledger-import/internal/categorizer"
	"github.com/dvloznov/ledger-import/internal/dedup"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/store"
)

type mockDeduplicator struct {
	FindExistingChecksumsFunc func(ctx context.Context, checksums []string) dedup.Result
}

func (m *mockDeduplicator) FindExistingChecksums(ctx context.Context, checksums []string) dedup.Result {
	if m.FindExistingChecksumsFunc != nil {
		return m.FindExistingChecksumsFunc(ctx, checksums)
	}
	return dedup.Result{Checksums: map[string]struct{}{}}
}

type mockEntitySource struct {
	NameToID map[string]string
	Aliases  map[string]string
	Err      error
}

func (m *mockEntitySource) EntityNameToID(ctx context.Context) (map[string]string, error) {
	return m.NameToID, m.Err
}

func (m *mockEntitySource) EntityAliases(ctx context.Context) (map[string]string, error) {
	return m.Aliases, m.Err
}

type mockCorrectionFinder struct {
	FindMatchingCorrectionFunc func(ctx context.Context, description string, threshold float64) (*store.Correction, error)
}

func (m *mockCorrectionFinder) FindMatchingCorrection(ctx context.Context, description string, threshold float64) (*store.Correction, error) {
	if m.FindMatchingCorrectionFunc != nil {
		return m.FindMatchingCorrectionFunc(ctx, description, threshold)
	}
	return nil, nil
}

type mockCategorizer struct {
	CategorizeFunc func(ctx context.Context, rawRow, batchID string) (*categorizer.Outcome, error)
	calls          int
}

func (m *mockCategorizer) Categorize(ctx context.Context, rawRow, batchID string) (*categorizer.Outcome, error) {
	m.calls++
	if m.CategorizeFunc != nil {
		return m.CategorizeFunc(ctx, rawRow, batchID)
	}
	return &categorizer.Outcome{}, nil
}

type mockPageWriter struct {
	mu                        sync.Mutex
	CreateTransactionPageFunc func(ctx context.Context, tx domain.ConfirmedTransaction) (*ledger.CreatedPage, error)
	CreateEntityPageFunc      func(ctx context.Context, name string) (*ledger.CreatedPage, error)
	written                   []domain.ConfirmedTransaction
	entityCalls               []string
}

func (m *mockPageWriter) CreateTransactionPage(ctx context.Context, tx domain.ConfirmedTransaction) (*ledger.CreatedPage, error) {
	m.mu.Lock()
	m.written = append(m.written, tx)
	m.mu.Unlock()
	if m.CreateTransactionPageFunc != nil {
		return m.CreateTransactionPageFunc(ctx, tx)
	}
	return &ledger.CreatedPage{ID: "page-" + tx.Checksum, URL: "https://www.notion.so/page" + tx.Checksum}, nil
}

func (m *mockPageWriter) CreateEntityPage(ctx context.Context, name string) (*ledger.CreatedPage, error) {
	m.mu.Lock()
	m.entityCalls = append(m.entityCalls, name)
	m.mu.Unlock()
	if m.CreateEntityPageFunc != nil {
		return m.CreateEntityPageFunc(ctx, name)
	}
	return &ledger.CreatedPage{ID: "entity-" + name, URL: "https://www.notion.so/entity" + name}, nil
}

type mockEntityCache struct {
	mu       sync.Mutex
	upserted []store.Entity
}

func (m *mockEntityCache) UpsertEntity(ctx context.Context, e store.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, e)
	return nil
}

type recordingObserver struct {
	mu    sync.Mutex
	steps []string
	items int
	done  int
	errs  []string
}

func (o *recordingObserver) OnStep(step string, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, step)
}

func (o *recordingObserver) OnItem(summary string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items++
}

func (o *recordingObserver) OnItemDone(summary string, errMsg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done++
	if errMsg != "" {
		o.errs = append(o.errs, errMsg)
	}
}
