package importer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/ledger"
)

func confirmed(checksum string) domain.ConfirmedTransaction {
	return domain.ConfirmedTransaction{
		ProcessedTransaction: domain.ProcessedTransaction{
			ParsedTransaction: parsed("WOOLWORTHS "+checksum, checksum),
			Entity:            &domain.EntityInfo{EntityID: "woolworths-id", EntityName: "Woolworths", MatchType: domain.MatchPrefix},
			Status:            domain.StatusMatched,
		},
		Kind: domain.KindExpense,
	}
}

func TestExecute_PartialFailureIsolation(t *testing.T) {
	writer := &mockPageWriter{
		CreateTransactionPageFunc: func(ctx context.Context, tx domain.ConfirmedTransaction) (*ledger.CreatedPage, error) {
			if tx.Checksum == "2" {
				return nil, errors.New("notion: 502 bad gateway")
			}
			return &ledger.CreatedPage{ID: "page-" + tx.Checksum}, nil
		},
	}
	e := NewExecutor(writer, nil, WithWriteDelay(0))

	got := e.Execute(context.Background(), "batch", []domain.ConfirmedTransaction{confirmed("1"), confirmed("2"), confirmed("3")}, nil)

	if got.Imported != 2 {
		t.Errorf("Imported = %d, want 2", got.Imported)
	}
	if len(got.Failed) != 1 || got.Failed[0].Transaction.Checksum != "2" || got.Failed[0].Error == "" {
		t.Errorf("Failed = %+v", got.Failed)
	}
	if len(got.Results) != 3 {
		t.Errorf("Results = %d, want 3", len(got.Results))
	}
	for _, r := range got.Results {
		if r.Transaction.Checksum != "2" && (!r.Success || r.PageID != "page-"+r.Transaction.Checksum) {
			t.Errorf("result %+v should have succeeded", r)
		}
	}
}

func TestExecute_ThroughputBound(t *testing.T) {
	const (
		n     = 7
		delay = 60 * time.Millisecond
	)
	var inFlight, maxInFlight int32
	writer := &mockPageWriter{
		CreateTransactionPageFunc: func(ctx context.Context, tx domain.ConfirmedTransaction) (*ledger.CreatedPage, error) {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				prev := atomic.LoadInt32(&maxInFlight)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return &ledger.CreatedPage{ID: tx.Checksum}, nil
		},
	}
	e := NewExecutor(writer, nil, WithWriteDelay(delay))

	txs := make([]domain.ConfirmedTransaction, n)
	for i := range txs {
		txs[i] = confirmed(fmt.Sprint(i))
	}

	start := time.Now()
	got := e.Execute(context.Background(), "batch", txs, nil)
	elapsed := time.Since(start)

	minimum := time.Duration((n+DefaultWorkers-1)/DefaultWorkers) * delay
	if elapsed < minimum {
		t.Errorf("elapsed = %v, want at least %v", elapsed, minimum)
	}
	if got.Imported != n {
		t.Errorf("Imported = %d, want %d", got.Imported, n)
	}
	if maxInFlight > DefaultWorkers {
		t.Errorf("max concurrent writes = %d, want <= %d", maxInFlight, DefaultWorkers)
	}

	seen := map[string]int{}
	for _, tx := range writer.written {
		seen[tx.Checksum]++
	}
	for sum, count := range seen {
		if count != 1 {
			t.Errorf("transaction %s written %d times", sum, count)
		}
	}
	if len(seen) != n {
		t.Errorf("distinct writes = %d, want %d", len(seen), n)
	}
}

func TestExecute_SkippedStatusNotWritten(t *testing.T) {
	writer := &mockPageWriter{}
	e := NewExecutor(writer, nil, WithWriteDelay(0))

	skipped := confirmed("s")
	skipped.Status = domain.StatusSkipped

	got := e.Execute(context.Background(), "batch", []domain.ConfirmedTransaction{confirmed("a"), skipped}, nil)
	if got.Imported != 1 || got.Skipped != 1 {
		t.Errorf("Imported = %d, Skipped = %d, want 1/1", got.Imported, got.Skipped)
	}
	if len(writer.written) != 1 {
		t.Errorf("writes = %d, want 1", len(writer.written))
	}
}

func TestExecute_CreatesNewEntityOnce(t *testing.T) {
	writer := &mockPageWriter{
		CreateEntityPageFunc: func(ctx context.Context, name string) (*ledger.CreatedPage, error) {
			time.Sleep(10 * time.Millisecond)
			return &ledger.CreatedPage{ID: "bunnings-id", URL: "https://www.notion.so/bunningsid"}, nil
		},
	}
	cache := &mockEntityCache{}
	e := NewExecutor(writer, cache, WithWriteDelay(0))

	txs := make([]domain.ConfirmedTransaction, 5)
	for i := range txs {
		tx := confirmed(fmt.Sprint(i))
		name := "Bunnings"
		if i%2 == 1 {
			name = "BUNNINGS"
		}
		tx.Entity = &domain.EntityInfo{EntityName: name, MatchType: domain.MatchAI, Confidence: domain.Confidence(0.7)}
		tx.Status = domain.StatusUncertain
		txs[i] = tx
	}

	got := e.Execute(context.Background(), "batch", txs, nil)

	if got.Imported != 5 {
		t.Fatalf("Imported = %d, want 5 (%+v)", got.Imported, got.Failed)
	}
	if len(writer.entityCalls) != 1 {
		t.Errorf("entity creations = %d, want 1", len(writer.entityCalls))
	}
	if len(cache.upserted) != 1 || cache.upserted[0].ID != "bunnings-id" {
		t.Errorf("cache upserts = %+v", cache.upserted)
	}
	for _, tx := range writer.written {
		if tx.Entity.EntityID != "bunnings-id" {
			t.Errorf("written entity id = %q, want bunnings-id", tx.Entity.EntityID)
		}
	}
	// Caller's slice is not mutated.
	if txs[0].Entity.EntityID != "" {
		t.Error("input transaction was mutated")
	}
}

func TestExecute_EntityCreationFailureFailsItem(t *testing.T) {
	writer := &mockPageWriter{
		CreateEntityPageFunc: func(ctx context.Context, name string) (*ledger.CreatedPage, error) {
			return nil, errors.New("validation_error")
		},
	}
	e := NewExecutor(writer, nil, WithWriteDelay(0))

	tx := confirmed("1")
	tx.Entity = &domain.EntityInfo{EntityName: "Bunnings", MatchType: domain.MatchAI}

	got := e.Execute(context.Background(), "batch", []domain.ConfirmedTransaction{tx}, nil)
	if got.Imported != 0 || len(got.Failed) != 1 {
		t.Errorf("Imported = %d, Failed = %d", got.Imported, len(got.Failed))
	}
	if len(writer.written) != 0 {
		t.Error("transaction page must not be written without its entity")
	}
}

func TestExecute_PanicContained(t *testing.T) {
	writer := &mockPageWriter{
		CreateTransactionPageFunc: func(ctx context.Context, tx domain.ConfirmedTransaction) (*ledger.CreatedPage, error) {
			if tx.Checksum == "bad" {
				panic("nil map")
			}
			return &ledger.CreatedPage{ID: tx.Checksum}, nil
		},
	}
	e := NewExecutor(writer, nil, WithWriteDelay(0), WithWorkers(1))

	got := e.Execute(context.Background(), "batch", []domain.ConfirmedTransaction{confirmed("bad"), confirmed("ok")}, nil)
	if got.Imported != 1 || len(got.Failed) != 1 || got.Failed[0].Error != "nil map" {
		t.Errorf("got %+v", got)
	}
}

func TestExecute_CancellationStopsClaiming(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writes int32
	writer := &mockPageWriter{
		CreateTransactionPageFunc: func(wctx context.Context, tx domain.ConfirmedTransaction) (*ledger.CreatedPage, error) {
			if atomic.AddInt32(&writes, 1) == 1 {
				cancel()
			}
			if wctx.Err() != nil {
				t.Error("in-flight write context should not be cancelled")
			}
			return &ledger.CreatedPage{ID: tx.Checksum}, nil
		},
	}
	e := NewExecutor(writer, nil, WithWorkers(1), WithWriteDelay(time.Second))

	txs := []domain.ConfirmedTransaction{confirmed("1"), confirmed("2"), confirmed("3"), confirmed("4")}
	start := time.Now()
	got := e.Execute(ctx, "batch", txs, nil)

	if time.Since(start) > 500*time.Millisecond {
		t.Error("cancellation should interrupt the inter-write delay")
	}
	if got.Imported != 1 {
		t.Errorf("Imported = %d, want 1 (in-flight item completes)", got.Imported)
	}
	if got.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3 unclaimed", got.Skipped)
	}
	if got.Imported+len(got.Failed)+got.Skipped != len(txs) {
		t.Error("counts must cover every transaction")
	}
}

func TestExecute_Observer(t *testing.T) {
	writer := &mockPageWriter{
		CreateTransactionPageFunc: func(ctx context.Context, tx domain.ConfirmedTransaction) (*ledger.CreatedPage, error) {
			if tx.Checksum == "2" {
				return nil, errors.New("failed")
			}
			return &ledger.CreatedPage{ID: tx.Checksum}, nil
		},
	}
	obs := &recordingObserver{}
	NewExecutor(writer, nil, WithWriteDelay(0)).Execute(context.Background(), "batch", []domain.ConfirmedTransaction{confirmed("1"), confirmed("2")}, obs)

	if obs.items != 2 || obs.done != 2 || len(obs.errs) != 1 {
		t.Errorf("observer = %+v", obs)
	}
	if len(obs.steps) != 1 || obs.steps[0] != StepImporting {
		t.Errorf("steps = %v", obs.steps)
	}
}

func TestExecute_Empty(t *testing.T) {
	got := NewExecutor(&mockPageWriter{}, nil).Execute(context.Background(), "batch", nil, nil)
	if got.Imported != 0 || got.Skipped != 0 || got.Failed == nil || got.Results == nil {
		t.Errorf("got %+v", got)
	}
}
