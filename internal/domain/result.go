package domain

// WarningType identifies a degraded-mode condition surfaced on a result.
type WarningType string

const (
	WarningDatabaseNotFound       WarningType = "NOTION_DATABASE_NOT_FOUND"
	WarningDeduplicationDisabled  WarningType = "DEDUPLICATION_DISABLED"
	WarningNotionAPIError         WarningType = "NOTION_API_ERROR"
	WarningAIUnavailable          WarningType = "AI_CATEGORIZATION_UNAVAILABLE"
	WarningEntityCacheUnavailable WarningType = "ENTITY_CACHE_UNAVAILABLE"
	WarningProcessingCancelled    WarningType = "PROCESSING_CANCELLED"
)

// Warning is a non-fatal condition that downgraded a capability for a run.
type Warning struct {
	Type          WarningType `json:"type"`
	Message       string      `json:"message"`
	AffectedCount int         `json:"affectedCount,omitempty"`
}

// AIUsageSummary aggregates AI telemetry across one processor run.
type AIUsageSummary struct {
	APICalls           int     `json:"apiCalls"`
	CacheHits          int     `json:"cacheHits"`
	InputTokens        int     `json:"inputTokens"`
	OutputTokens       int     `json:"outputTokens"`
	TotalCostUSD       float64 `json:"totalCostUsd"`
	AverageCostPerCall float64 `json:"averageCostPerCall"`
}

// ProcessResult is the outcome of the import processor. The four buckets
// partition the input batch.
type ProcessResult struct {
	BatchID   string                 `json:"batchId"`
	Total     int                    `json:"total"`
	Matched   []ProcessedTransaction `json:"matched"`
	Uncertain []ProcessedTransaction `json:"uncertain"`
	Failed    []ProcessedTransaction `json:"failed"`
	Skipped   []ProcessedTransaction `json:"skipped"`
	Warnings  []Warning              `json:"warnings"`
	AIUsage   AIUsageSummary         `json:"aiUsage"`
}

// Counted returns the number of transactions across all buckets.
func (r *ProcessResult) Counted() int {
	return len(r.Matched) + len(r.Uncertain) + len(r.Failed) + len(r.Skipped)
}

// ImportResult is the outcome of writing one confirmed transaction.
// Failed writes are never retried automatically.
type ImportResult struct {
	Transaction ConfirmedTransaction `json:"transaction"`
	Success     bool                 `json:"success"`
	PageID      string               `json:"pageId,omitempty"`
	PageURL     string               `json:"pageUrl,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// ExecuteResult is the outcome of the import executor. Results are in
// completion order, not input order.
type ExecuteResult struct {
	BatchID  string         `json:"batchId"`
	Imported int            `json:"imported"`
	Failed   []ImportResult `json:"failed"`
	Skipped  int            `json:"skipped"`
	Results  []ImportResult `json:"results"`
}
