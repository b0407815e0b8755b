package importer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-import/internal/categorizer"
	"github.com/dvloznov/ledger-import/internal/dedup"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/store"
)

func parsed(description, checksum string) domain.ParsedTransaction {
	return domain.ParsedTransaction{
		Date:        "2024-03-05",
		Description: description,
		Amount:      decimal.RequireFromString("-10.00"),
		Account:     "Everyday",
		RawRow:      "2024-03-05," + description + ",-10.00",
		Checksum:    checksum,
	}
}

func newTestProcessor(t *testing.T, d Deduplicator, e EntitySource, c CorrectionFinder, ai Categorizer) *Processor {
	t.Helper()
	if d == nil {
		d = &mockDeduplicator{}
	}
	if e == nil {
		e = &mockEntitySource{NameToID: map[string]string{}}
	}
	if c == nil {
		c = &mockCorrectionFinder{}
	}
	cfg := ProcessorConfig{Dedup: d, Entities: e, Corrections: c}
	if ai != nil {
		cfg.Categorizer = ai
	}
	p, err := NewProcessor(cfg)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	return p
}

func TestProcess_EndToEndPrefixMatch(t *testing.T) {
	entities := &mockEntitySource{NameToID: map[string]string{"Woolworths": "woolworths-id"}}
	p := newTestProcessor(t, nil, entities, nil, nil)

	got, err := p.Process(context.Background(), "batch-1", []domain.ParsedTransaction{parsed("WOOLWORTHS 1234", "abc123")}, nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(got.Matched) != 1 {
		t.Fatalf("matched = %d, want 1 (%+v)", len(got.Matched), got)
	}
	m := got.Matched[0]
	if m.Status != domain.StatusMatched {
		t.Errorf("Status = %q", m.Status)
	}
	if m.Entity == nil || m.Entity.EntityID != "woolworths-id" || m.Entity.EntityName != "Woolworths" || m.Entity.MatchType != domain.MatchPrefix {
		t.Errorf("Entity = %+v", m.Entity)
	}
	if m.Entity.EntityURL != "https://www.notion.so/woolworthsid" {
		t.Errorf("EntityURL = %q", m.Entity.EntityURL)
	}
	if len(got.Warnings) != 0 {
		t.Errorf("Warnings = %+v, want none", got.Warnings)
	}
}

func TestProcess_DuplicatesSkipped(t *testing.T) {
	d := &mockDeduplicator{
		FindExistingChecksumsFunc: func(ctx context.Context, checksums []string) dedup.Result {
			return dedup.Result{Checksums: map[string]struct{}{"dup": {}}}
		},
	}
	ai := &mockCategorizer{}
	p := newTestProcessor(t, d, nil, nil, ai)

	got, err := p.Process(context.Background(), "batch", []domain.ParsedTransaction{
		parsed("SOMETHING COMPLETELY DIFFERENT", "dup"),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Skipped) != 1 || got.Skipped[0].SkipReason != SkipReasonDuplicate || got.Skipped[0].Status != domain.StatusSkipped {
		t.Fatalf("Skipped = %+v", got.Skipped)
	}
	if ai.calls != 0 {
		t.Errorf("duplicates must not be re-matched, AI calls = %d", ai.calls)
	}
}

func TestProcess_CorrectionBeatsExactMatch(t *testing.T) {
	entities := &mockEntitySource{NameToID: map[string]string{"Woolworths": "woolworths-id"}}
	corrections := &mockCorrectionFinder{
		FindMatchingCorrectionFunc: func(ctx context.Context, description string, threshold float64) (*store.Correction, error) {
			if threshold != CorrectionThreshold {
				t.Errorf("threshold = %v, want %v", threshold, CorrectionThreshold)
			}
			return &store.Correction{Pattern: "WOOLWORTHS", EntityID: "metro-id", EntityName: "Woolworths Metro", Confidence: 0.95}, nil
		},
	}
	p := newTestProcessor(t, nil, entities, corrections, nil)

	got, err := p.Process(context.Background(), "batch", []domain.ParsedTransaction{parsed("Woolworths", "c1")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Matched) != 1 {
		t.Fatalf("Matched = %+v", got)
	}
	e := got.Matched[0].Entity
	if e.EntityName != "Woolworths Metro" || e.EntityID != "metro-id" || e.MatchType != domain.MatchLearned {
		t.Errorf("Entity = %+v, want the correction", e)
	}
	if e.Confidence == nil || *e.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", e.Confidence)
	}
}

func TestProcess_LowConfidenceCorrectionIsUncertain(t *testing.T) {
	corrections := &mockCorrectionFinder{
		FindMatchingCorrectionFunc: func(ctx context.Context, description string, threshold float64) (*store.Correction, error) {
			return &store.Correction{EntityName: "Coles", Confidence: 0.8}, nil
		},
	}
	entities := &mockEntitySource{NameToID: map[string]string{"Coles": "coles-id"}}
	ai := &mockCategorizer{}
	p := newTestProcessor(t, nil, entities, corrections, ai)

	got, err := p.Process(context.Background(), "batch", []domain.ParsedTransaction{parsed("COLES EXPRESS", "c1")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Uncertain) != 1 {
		t.Fatalf("Uncertain = %+v", got)
	}
	e := got.Uncertain[0].Entity
	if e.MatchType != domain.MatchLearned || e.EntityID != "coles-id" {
		t.Errorf("Entity = %+v, want learned with id resolved from tables", e)
	}
	if ai.calls != 0 {
		t.Error("a correction hit must not fall through to AI")
	}
}

func TestProcess_AIOutcomes(t *testing.T) {
	entities := &mockEntitySource{NameToID: map[string]string{"Woolworths": "woolworths-id"}}
	usage := &categorizer.Usage{InputTokens: 100, OutputTokens: 10, CostUSD: 0.002}

	tests := []struct {
		name       string
		outcome    *categorizer.Outcome
		err        error
		wantStatus domain.Status
		wantType   domain.MatchType
		wantID     string
		wantName   string
		wantConf   *float64
		wantError  string
		wantCalls  int
	}{
		{
			name:       "existing entity case-insensitive",
			outcome:    &categorizer.Outcome{Result: &categorizer.Suggestion{EntityName: "woolworths"}, Usage: usage},
			wantStatus: domain.StatusMatched,
			wantType:   domain.MatchAI,
			wantID:     "woolworths-id",
			wantName:   "Woolworths",
			wantCalls:  1,
		},
		{
			name:       "new entity",
			outcome:    &categorizer.Outcome{Result: &categorizer.Suggestion{EntityName: "Bunnings"}, Usage: usage},
			wantStatus: domain.StatusUncertain,
			wantType:   domain.MatchAI,
			wantName:   "Bunnings",
			wantConf:   domain.Confidence(NewEntityConfidence),
			wantCalls:  1,
		},
		{
			name:       "null result",
			outcome:    &categorizer.Outcome{Usage: usage},
			wantStatus: domain.StatusFailed,
			wantError:  ErrMsgNoMatch,
			wantCalls:  1,
		},
		{
			name:       "typed AI error",
			err:        &categorizer.Error{Code: categorizer.CodeInsufficientCredits, Message: "no credits"},
			wantStatus: domain.StatusFailed,
			wantError:  ErrMsgAIUnavailable,
		},
		{
			name:       "invalid AI response",
			err:        &categorizer.Error{Code: categorizer.CodeInvalidResponse, Message: "unmarshal model JSON", Usage: usage},
			wantStatus: domain.StatusFailed,
			wantError:  ErrMsgAIUnavailable,
			wantCalls:  1,
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantStatus: domain.StatusFailed,
			wantError:  "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := &mockCategorizer{CategorizeFunc: func(ctx context.Context, rawRow, batchID string) (*categorizer.Outcome, error) {
				if batchID != "batch" {
					t.Errorf("batchID = %q", batchID)
				}
				return tt.outcome, tt.err
			}}
			p := newTestProcessor(t, nil, entities, nil, ai)

			got, err := p.Process(context.Background(), "batch", []domain.ParsedTransaction{parsed("EFTPOS 99812 SYD", "x")}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got.Counted() != 1 {
				t.Fatalf("Counted = %d, want 1", got.Counted())
			}
			if got.AIUsage.APICalls != tt.wantCalls {
				t.Errorf("APICalls = %d, want %d", got.AIUsage.APICalls, tt.wantCalls)
			}

			var tx domain.ProcessedTransaction
			switch tt.wantStatus {
			case domain.StatusMatched:
				tx = got.Matched[0]
			case domain.StatusUncertain:
				tx = got.Uncertain[0]
			default:
				if len(got.Failed) != 1 {
					t.Fatalf("Failed = %+v", got.Failed)
				}
				tx = got.Failed[0]
				if tx.Error != tt.wantError {
					t.Errorf("Error = %q, want %q", tx.Error, tt.wantError)
				}
				return
			}

			if tx.Entity.MatchType != tt.wantType || tx.Entity.EntityID != tt.wantID || tx.Entity.EntityName != tt.wantName {
				t.Errorf("Entity = %+v", tx.Entity)
			}
			if (tt.wantConf == nil) != (tx.Entity.Confidence == nil) ||
				(tt.wantConf != nil && *tt.wantConf != *tx.Entity.Confidence) {
				t.Errorf("Confidence = %v, want %v", tx.Entity.Confidence, tt.wantConf)
			}
		})
	}
}

func TestProcess_WarningsAndTelemetry(t *testing.T) {
	d := &mockDeduplicator{
		FindExistingChecksumsFunc: func(ctx context.Context, checksums []string) dedup.Result {
			return dedup.Result{
				Checksums: map[string]struct{}{},
				Warning:   &domain.Warning{Type: domain.WarningDeduplicationDisabled, Message: "no Checksum property"},
			}
		},
	}
	ai := &mockCategorizer{CategorizeFunc: func(ctx context.Context, rawRow, batchID string) (*categorizer.Outcome, error) {
		switch rawRow {
		case parsed("LIVE ONE", "").RawRow:
			return &categorizer.Outcome{Result: &categorizer.Suggestion{EntityName: "One"}, Usage: &categorizer.Usage{InputTokens: 100, OutputTokens: 20, CostUSD: 0.01}}, nil
		case parsed("LIVE TWO", "").RawRow:
			return &categorizer.Outcome{Usage: &categorizer.Usage{InputTokens: 50, OutputTokens: 10, CostUSD: 0.03}}, nil
		case parsed("CACHED", "").RawRow:
			return &categorizer.Outcome{Result: &categorizer.Suggestion{EntityName: "Cached"}}, nil
		default:
			return nil, &categorizer.Error{Code: categorizer.CodeAPIError, Message: "down"}
		}
	}}
	p := newTestProcessor(t, d, nil, nil, ai)

	txs := []domain.ParsedTransaction{
		parsed("LIVE ONE", "1"),
		parsed("LIVE TWO", "2"),
		parsed("CACHED", "3"),
		parsed("DOWN A", "4"),
		parsed("DOWN B", "5"),
	}
	obs := &recordingObserver{}
	got, err := p.Process(context.Background(), "batch", txs, obs)
	if err != nil {
		t.Fatal(err)
	}

	if got.Total != 5 || got.Counted() != 5 {
		t.Errorf("Total = %d, Counted = %d, want 5", got.Total, got.Counted())
	}
	if len(got.Warnings) != 2 {
		t.Fatalf("Warnings = %+v, want dedup and AI warnings", got.Warnings)
	}
	if got.Warnings[0].Type != domain.WarningDeduplicationDisabled {
		t.Errorf("Warnings[0] = %+v", got.Warnings[0])
	}
	if got.Warnings[1].Type != domain.WarningAIUnavailable || got.Warnings[1].AffectedCount != 2 {
		t.Errorf("Warnings[1] = %+v", got.Warnings[1])
	}

	u := got.AIUsage
	if u.APICalls != 2 || u.CacheHits != 1 || u.InputTokens != 150 || u.OutputTokens != 30 {
		t.Errorf("AIUsage = %+v", u)
	}
	if math.Abs(u.TotalCostUSD-0.04) > 1e-9 || math.Abs(u.AverageCostPerCall-0.02) > 1e-9 {
		t.Errorf("cost = %v avg = %v", u.TotalCostUSD, u.AverageCostPerCall)
	}

	if obs.items != 5 || obs.done != 5 {
		t.Errorf("observer items = %d done = %d, want 5/5", obs.items, obs.done)
	}
	if len(obs.steps) != 3 || obs.steps[2] != StepMatching {
		t.Errorf("observer steps = %v", obs.steps)
	}
}

func TestProcess_PartitionAndOrder(t *testing.T) {
	d := &mockDeduplicator{
		FindExistingChecksumsFunc: func(ctx context.Context, checksums []string) dedup.Result {
			return dedup.Result{Checksums: map[string]struct{}{"s1": {}, "s2": {}}}
		},
	}
	entities := &mockEntitySource{
		NameToID: map[string]string{"Coles": "coles-id", "Aldi": "aldi-id"},
		Aliases:  map[string]string{"Coles": "CLS"},
	}
	p := newTestProcessor(t, d, entities, nil, nil)

	txs := []domain.ParsedTransaction{
		parsed("ALDI 1", "m1"),
		parsed("UNKNOWN", "f1"),
		parsed("ALDI 2", "s1"),
		parsed("CLS EXPRESS", "m2"),
		parsed("ALDI 3", "s2"),
		parsed("COLES", "m3"),
		parsed("", "f2"),
	}
	got, err := p.Process(context.Background(), "batch", txs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Counted() != len(txs) {
		t.Fatalf("Counted = %d, want %d", got.Counted(), len(txs))
	}
	wantMatched := []string{"m1", "m2", "m3"}
	for i, sum := range wantMatched {
		if got.Matched[i].Checksum != sum {
			t.Errorf("Matched[%d] = %s, want %s (input order)", i, got.Matched[i].Checksum, sum)
		}
	}
	if len(got.Skipped) != 2 || len(got.Failed) != 2 {
		t.Errorf("Skipped = %d, Failed = %d, want 2/2", len(got.Skipped), len(got.Failed))
	}
}

func TestProcess_EntityCacheUnavailable(t *testing.T) {
	entities := &mockEntitySource{Err: errors.New("database is locked")}
	ai := &mockCategorizer{CategorizeFunc: func(ctx context.Context, rawRow, batchID string) (*categorizer.Outcome, error) {
		return &categorizer.Outcome{Result: &categorizer.Suggestion{EntityName: "Woolworths"}}, nil
	}}
	p := newTestProcessor(t, nil, entities, nil, ai)

	got, err := p.Process(context.Background(), "batch", []domain.ParsedTransaction{parsed("WOOLWORTHS 1234", "a")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Type != domain.WarningEntityCacheUnavailable {
		t.Errorf("Warnings = %+v", got.Warnings)
	}
	if len(got.Uncertain) != 1 || got.Uncertain[0].Entity.MatchType != domain.MatchAI {
		t.Errorf("expected AI new-entity suggestion with empty tables, got %+v", got)
	}
}

func TestProcess_PanicAndCorrectionErrorContained(t *testing.T) {
	corrections := &mockCorrectionFinder{
		FindMatchingCorrectionFunc: func(ctx context.Context, description string, threshold float64) (*store.Correction, error) {
			switch description {
			case "PANIC":
				panic("unexpected nil")
			case "BROKEN":
				return nil, errors.New("sql: database is closed")
			}
			return nil, nil
		},
	}
	entities := &mockEntitySource{NameToID: map[string]string{"Coles": "coles-id"}}
	p := newTestProcessor(t, nil, entities, corrections, nil)

	got, err := p.Process(context.Background(), "batch", []domain.ParsedTransaction{
		parsed("PANIC", "1"),
		parsed("BROKEN", "2"),
		parsed("COLES", "3"),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Failed) != 2 || len(got.Matched) != 1 {
		t.Fatalf("Failed = %d, Matched = %d, want 2/1", len(got.Failed), len(got.Matched))
	}
	if got.Failed[0].Error != "unexpected nil" || got.Failed[1].Error != "sql: database is closed" {
		t.Errorf("errors = %q, %q", got.Failed[0].Error, got.Failed[1].Error)
	}
}

func TestProcess_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestProcessor(t, nil, nil, nil, nil)

	got, err := p.Process(ctx, "batch", []domain.ParsedTransaction{parsed("X", "1")}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if got == nil || len(got.Failed) != 1 || got.Counted() != 1 {
		t.Errorf("result = %+v, want the row in Failed", got)
	}
}

// cancelAfterObserver cancels the run once n items have finished.
type cancelAfterObserver struct {
	recordingObserver
	n      int
	cancel context.CancelFunc
}

func (o *cancelAfterObserver) OnItemDone(summary string, errMsg string) {
	o.recordingObserver.OnItemDone(summary, errMsg)
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == o.n {
		o.cancel()
	}
}

func TestProcess_CancelledMidBatchKeepsPartition(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entities := &mockEntitySource{NameToID: map[string]string{"Woolworths": "woolworths-id"}}
	p := newTestProcessor(t, nil, entities, nil, nil)
	obs := &cancelAfterObserver{n: 1, cancel: cancel}

	txs := []domain.ParsedTransaction{
		parsed("WOOLWORTHS 1", "a"),
		parsed("WOOLWORTHS 2", "b"),
		parsed("WOOLWORTHS 3", "c"),
	}
	got, err := p.Process(ctx, "batch", txs, obs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got == nil {
		t.Fatal("result is nil, want partial result")
	}
	if got.Counted() != len(txs) {
		t.Errorf("Counted = %d, want %d", got.Counted(), len(txs))
	}
	if len(got.Matched) != 1 || got.Matched[0].Checksum != "a" {
		t.Errorf("Matched = %+v, want row a", got.Matched)
	}
	if len(got.Failed) != 2 {
		t.Fatalf("Failed = %d, want 2", len(got.Failed))
	}
	for _, f := range got.Failed {
		if f.Status != domain.StatusFailed || f.Error != context.Canceled.Error() {
			t.Errorf("failed row = %+v", f)
		}
	}

	var warned bool
	for _, w := range got.Warnings {
		if w.Type == domain.WarningProcessingCancelled {
			warned = true
			if w.AffectedCount != 2 {
				t.Errorf("AffectedCount = %d, want 2", w.AffectedCount)
			}
		}
	}
	if !warned {
		t.Errorf("Warnings = %+v, want a cancellation warning", got.Warnings)
	}
}

func TestNewProcessor_RequiresDependencies(t *testing.T) {
	if _, err := NewProcessor(ProcessorConfig{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}
