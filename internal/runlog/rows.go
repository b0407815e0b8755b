package runlog

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// ImportRunRow is one row of <dataset>.import_runs.
type ImportRunRow struct {
	BatchID string `bigquery:"batch_id"` // REQUIRED
	Kind    string `bigquery:"kind"`     // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Total     int64 `bigquery:"total"`
	Matched   int64 `bigquery:"matched"`
	Uncertain int64 `bigquery:"uncertain"`
	Failed    int64 `bigquery:"failed"`
	Skipped   int64 `bigquery:"skipped"`
	Imported  int64 `bigquery:"imported"`

	Warnings []string `bigquery:"warnings"` // REPEATED

	AICalls   int64   `bigquery:"ai_calls"`
	AICostUSD float64 `bigquery:"ai_cost_usd"`

	ErrorMessage string `bigquery:"error_message"` // NULLABLE
}
