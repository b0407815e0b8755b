// Package importer runs the statement import: deduplication, entity
// resolution and the rate-limited ledger write.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/categorizer"
	"github.com/dvloznov/ledger-import/internal/dedup"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/matcher"
	"github.com/dvloznov/ledger-import/internal/store"
)

const (
	// CorrectionThreshold is the minimum stored confidence for a correction to apply.
	CorrectionThreshold = 0.7
	// CorrectionMatchedConfidence is the confidence at which a correction is trusted outright.
	CorrectionMatchedConfidence = 0.9
	// NewEntityConfidence is assigned to AI suggestions naming an unknown entity.
	NewEntityConfidence = 0.7

	SkipReasonDuplicate = "Duplicate transaction (checksum match)"
	ErrMsgNoMatch       = "No entity match found"
	ErrMsgAIUnavailable = "AI categorization unavailable"
)

// Deduplicator finds checksums already present in the ledger.
type Deduplicator interface {
	FindExistingChecksums(ctx context.Context, checksums []string) dedup.Result
}

// EntitySource loads the entity lookup tables.
type EntitySource interface {
	EntityNameToID(ctx context.Context) (map[string]string, error)
	EntityAliases(ctx context.Context) (map[string]string, error)
}

// CorrectionFinder looks up human-confirmed corrections.
type CorrectionFinder interface {
	FindMatchingCorrection(ctx context.Context, description string, threshold float64) (*store.Correction, error)
}

// Categorizer is the AI fallback tier.
type Categorizer interface {
	Categorize(ctx context.Context, rawRow, batchID string) (*categorizer.Outcome, error)
}

// Processor resolves parsed transactions into matched, uncertain, failed and
// skipped buckets. Transactions are processed one at a time.
type Processor struct {
	dedup       Deduplicator
	entities    EntitySource
	corrections CorrectionFinder
	categorizer Categorizer
	matcher     *matcher.Matcher
	baseURL     string
}

// ProcessorConfig wires a Processor. Categorizer may be nil to disable the AI tier.
type ProcessorConfig struct {
	Dedup       Deduplicator
	Entities    EntitySource
	Corrections CorrectionFinder
	Categorizer Categorizer
	Matcher     *matcher.Matcher
	BaseURL     string
}

func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Dedup == nil || cfg.Entities == nil || cfg.Corrections == nil {
		return nil, errors.New("NewProcessor: dedup, entities and corrections are required")
	}
	if cfg.Matcher == nil {
		cfg.Matcher = matcher.New()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.notion.so"
	}
	return &Processor{
		dedup:       cfg.Dedup,
		entities:    cfg.Entities,
		corrections: cfg.Corrections,
		categorizer: cfg.Categorizer,
		matcher:     cfg.Matcher,
		baseURL:     cfg.BaseURL,
	}, nil
}

// aiTelemetry is the AI accounting for a single transaction.
type aiTelemetry struct {
	called   bool
	cacheHit bool
	failed   bool
	usage    *categorizer.Usage
}

// Process classifies every transaction into exactly one bucket. Partial
// problems surface as warnings and failed items; the only error returned is
// context cancellation, and even then the result is complete: rows not yet
// visited land in Failed with the context error.
func (p *Processor) Process(ctx context.Context, batchID string, txs []domain.ParsedTransaction, obs Observer) (*domain.ProcessResult, error) {
	obs = observerOrNop(obs)
	log := logger.FromContext(ctx).With().
		Str("component", "processor").
		Str("batch_id", batchID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	result := &domain.ProcessResult{
		BatchID:   batchID,
		Total:     len(txs),
		Matched:   []domain.ProcessedTransaction{},
		Uncertain: []domain.ProcessedTransaction{},
		Failed:    []domain.ProcessedTransaction{},
		Skipped:   []domain.ProcessedTransaction{},
		Warnings:  []domain.Warning{},
	}

	log.Info().Int("transaction_count", len(txs)).Msg("Processing import batch")

	obs.OnStep(StepDeduplicating, len(txs))
	sums := make([]string, 0, len(txs))
	for _, tx := range txs {
		if tx.Checksum != "" {
			sums = append(sums, tx.Checksum)
		}
	}
	existing := p.dedup.FindExistingChecksums(ctx, sums)
	if existing.Warning != nil {
		result.Warnings = append(result.Warnings, *existing.Warning)
	}

	obs.OnStep(StepLoadingEntities, 0)
	tables, warning := p.loadTables(ctx, log)
	if warning != nil {
		result.Warnings = append(result.Warnings, *warning)
	}

	obs.OnStep(StepMatching, len(txs))
	var (
		aiFailures int
		cancelErr  error
	)
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			cancelErr = fmt.Errorf("Process: %w", err)
			abandonRemaining(result, txs[i:], err)
			log.Warn().Err(err).Int("unprocessed", len(txs)-i).Msg("Processing cancelled")
			break
		}

		summary := domain.SummariseTransaction(tx)
		obs.OnItem(summary)

		if tx.Checksum != "" && existing.Contains(tx.Checksum) {
			result.Skipped = append(result.Skipped, domain.ProcessedTransaction{
				ParsedTransaction: tx,
				Status:            domain.StatusSkipped,
				SkipReason:        SkipReasonDuplicate,
			})
			obs.OnItemDone(summary, "")
			continue
		}

		processed, tel := p.processOne(ctx, batchID, tx, tables)
		recordAI(&result.AIUsage, tel)
		if tel.failed {
			aiFailures++
		}

		switch processed.Status {
		case domain.StatusMatched:
			result.Matched = append(result.Matched, processed)
		case domain.StatusUncertain:
			result.Uncertain = append(result.Uncertain, processed)
		default:
			result.Failed = append(result.Failed, processed)
		}
		obs.OnItemDone(summary, processed.Error)
	}

	if aiFailures > 0 {
		result.Warnings = append(result.Warnings, domain.Warning{
			Type:          domain.WarningAIUnavailable,
			Message:       fmt.Sprintf("AI categorization was unavailable for %d transaction(s)", aiFailures),
			AffectedCount: aiFailures,
		})
	}
	if result.AIUsage.APICalls > 0 {
		result.AIUsage.AverageCostPerCall = result.AIUsage.TotalCostUSD / float64(result.AIUsage.APICalls)
	}

	log.Info().
		Int("matched", len(result.Matched)).
		Int("uncertain", len(result.Uncertain)).
		Int("failed", len(result.Failed)).
		Int("skipped", len(result.Skipped)).
		Int("warnings", len(result.Warnings)).
		Int("ai_calls", result.AIUsage.APICalls).
		Float64("ai_cost_usd", result.AIUsage.TotalCostUSD).
		Msg("Import batch processed")

	return result, cancelErr
}

// abandonRemaining marks rows never reached before cancellation as failed so
// the result still partitions every input row.
func abandonRemaining(result *domain.ProcessResult, remaining []domain.ParsedTransaction, cause error) {
	for _, tx := range remaining {
		result.Failed = append(result.Failed, domain.ProcessedTransaction{
			ParsedTransaction: tx,
			Status:            domain.StatusFailed,
			Error:             cause.Error(),
		})
	}
	result.Warnings = append(result.Warnings, domain.Warning{
		Type:          domain.WarningProcessingCancelled,
		Message:       fmt.Sprintf("Processing was cancelled before %d transaction(s) were processed", len(remaining)),
		AffectedCount: len(remaining),
	})
}

// loadTables reads the entity cache once per run. A failure leaves the
// tables empty so every row falls through to the AI tier.
func (p *Processor) loadTables(ctx context.Context, log zerolog.Logger) (*matcher.Tables, *domain.Warning) {
	nameToID, err := p.entities.EntityNameToID(ctx)
	if err == nil {
		var nameToAliases map[string]string
		nameToAliases, err = p.entities.EntityAliases(ctx)
		if err == nil {
			log.Debug().Int("entity_count", len(nameToID)).Msg("Loaded entity tables")
			return matcher.NewTables(nameToID, matcher.BuildAliasTable(nameToAliases)), nil
		}
	}

	log.Warn().Err(err).Msg("Entity cache unavailable, name matching disabled for this run")
	return matcher.NewTables(nil, nil), &domain.Warning{
		Type:    domain.WarningEntityCacheUnavailable,
		Message: fmt.Sprintf("Entity cache could not be loaded: %v", err),
	}
}

// processOne runs the resolution tiers for a single transaction. Panics are
// recovered into a failed record.
func (p *Processor) processOne(ctx context.Context, batchID string, tx domain.ParsedTransaction, tables *matcher.Tables) (processed domain.ProcessedTransaction, tel aiTelemetry) {
	processed = domain.ProcessedTransaction{ParsedTransaction: tx}

	defer func() {
		if r := recover(); r != nil {
			log := logger.FromContext(ctx)
			log.Error().
				Str("checksum", tx.Checksum).
				Interface("panic", r).
				Msg("Panic while processing transaction")
			processed.Entity = nil
			processed.Status = domain.StatusFailed
			processed.Error = fmt.Sprintf("%v", r)
		}
	}()

	fail := func(msg string) (domain.ProcessedTransaction, aiTelemetry) {
		processed.Status = domain.StatusFailed
		processed.Error = msg
		return processed, tel
	}

	// 1. Learned corrections.
	correction, err := p.corrections.FindMatchingCorrection(ctx, tx.Description, CorrectionThreshold)
	if err != nil {
		return fail(err.Error())
	}
	if correction != nil {
		id := correction.EntityID
		if id == "" {
			_, id, _ = tables.Lookup(correction.EntityName)
		}
		processed.Entity = p.entityInfo(id, correction.EntityName, domain.MatchLearned, domain.Confidence(correction.Confidence))
		processed.Status = domain.StatusUncertain
		if correction.Confidence >= CorrectionMatchedConfidence {
			processed.Status = domain.StatusMatched
		}
		return processed, tel
	}

	// 2. Deterministic name matching.
	if match := p.matcher.Match(tx.Description, tables); match != nil {
		processed.Entity = p.entityInfo(match.EntityID, match.EntityName, match.MatchType, nil)
		processed.Status = domain.StatusMatched
		return processed, tel
	}

	// 3. AI fallback.
	if p.categorizer == nil {
		return fail(ErrMsgNoMatch)
	}

	outcome, err := p.categorizer.Categorize(ctx, tx.RawRow, batchID)
	if err != nil {
		var catErr *categorizer.Error
		if errors.As(err, &catErr) {
			log := logger.FromContext(ctx)
			log.Warn().
				Err(err).
				Str("checksum", tx.Checksum).
				Str("code", string(catErr.Code)).
				Msg("AI categorization unavailable")
			tel.failed = true
			tel.called = catErr.Usage != nil
			tel.usage = catErr.Usage
			return fail(ErrMsgAIUnavailable)
		}
		return fail(err.Error())
	}

	tel.called = outcome.Usage != nil
	tel.cacheHit = outcome.Usage == nil
	tel.usage = outcome.Usage

	if outcome.Result == nil || strings.TrimSpace(outcome.Result.EntityName) == "" {
		return fail(ErrMsgNoMatch)
	}

	if name, id, ok := tables.Lookup(outcome.Result.EntityName); ok {
		processed.Entity = p.entityInfo(id, name, domain.MatchAI, nil)
		processed.Status = domain.StatusMatched
		return processed, tel
	}

	processed.Entity = p.entityInfo("", strings.TrimSpace(outcome.Result.EntityName), domain.MatchAI, domain.Confidence(NewEntityConfidence))
	processed.Status = domain.StatusUncertain
	return processed, tel
}

func (p *Processor) entityInfo(id, name string, kind domain.MatchType, confidence *float64) *domain.EntityInfo {
	info := &domain.EntityInfo{
		EntityID:   id,
		EntityName: name,
		MatchType:  kind,
		Confidence: confidence,
	}
	if id != "" {
		info.EntityURL = ledger.PageURL(p.baseURL, id)
	}
	return info
}

func recordAI(sum *domain.AIUsageSummary, tel aiTelemetry) {
	if tel.cacheHit {
		sum.CacheHits++
	}
	if tel.called && tel.usage != nil {
		sum.APICalls++
		sum.InputTokens += tel.usage.InputTokens
		sum.OutputTokens += tel.usage.OutputTokens
		sum.TotalCostUSD += tel.usage.CostUSD
	}
}
