// Package runlog records one BigQuery row per processor or executor run.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/logger"
)

const (
	// DefaultDataset is used when no dataset is configured.
	DefaultDataset = "finance"

	importRunsTable = "import_runs"

	maxErrorLength = 2000
)

// ErrDisabled is returned when no GCP project is configured.
var ErrDisabled = errors.New("run log disabled: no GCP project configured")

// BigQueryRecorder implements importer.RunRecorder on BigQuery DML.
type BigQueryRecorder struct {
	client  *bigquery.Client
	dataset string
}

// NewBigQueryRecorder creates a recorder for projectID. An empty projectID
// returns ErrDisabled.
func NewBigQueryRecorder(ctx context.Context, projectID, dataset string, opts ...option.ClientOption) (*BigQueryRecorder, error) {
	if projectID == "" {
		return nil, ErrDisabled
	}
	if dataset == "" {
		dataset = DefaultDataset
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRecorder: bigquery client: %w", err)
	}

	return &BigQueryRecorder{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTable creates the import_runs table when it does not exist.
func (r *BigQueryRecorder) EnsureTable(ctx context.Context) error {
	table := r.client.Dataset(r.dataset).Table(importRunsTable)

	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: reading table metadata: %w", err)
	}

	schema, err := bigquery.InferSchema(ImportRunRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}

	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "started_ts",
		},
	}
	if err := table.Create(ctx, meta); err != nil {
		return fmt.Errorf("EnsureTable: creating table: %w", err)
	}

	log := logger.FromContext(ctx)

	log.Info().
		Str("dataset", r.dataset).
		Str("table", importRunsTable).
		Msg("Created run log table")
	return nil
}

// RecordRun implements importer.RunRecorder.
func (r *BigQueryRecorder) RecordRun(ctx context.Context, run importer.Run) error {
	row := rowFromRun(run)

	q := r.client.Query(insertQuery(r.dataset))
	q.Parameters = insertParameters(row)

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("RecordRun: running insert query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("RecordRun: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("RecordRun: job error: %w", err)
	}

	log := logger.FromContext(ctx)

	log.Debug().
		Str("batch_id", run.BatchID).
		Str("kind", run.Kind).
		Msg("Recorded import run")
	return nil
}

func rowFromRun(run importer.Run) ImportRunRow {
	row := ImportRunRow{
		BatchID:      run.BatchID,
		Kind:         run.Kind,
		StartedTS:    run.StartedAt,
		Total:        int64(run.Total),
		Matched:      int64(run.Matched),
		Uncertain:    int64(run.Uncertain),
		Failed:       int64(run.Failed),
		Skipped:      int64(run.Skipped),
		Imported:     int64(run.Imported),
		Warnings:     run.Warnings,
		AICalls:      int64(run.AICalls),
		AICostUSD:    run.AICostUSD,
		ErrorMessage: run.Error,
	}
	if !run.FinishedAt.IsZero() {
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: run.FinishedAt, Valid: true}
	}
	if row.Warnings == nil {
		row.Warnings = []string{}
	}
	if len(row.ErrorMessage) > maxErrorLength {
		row.ErrorMessage = row.ErrorMessage[:maxErrorLength]
	}
	return row
}

func insertQuery(dataset string) string {
	return fmt.Sprintf(`
		INSERT %s.%s (
			batch_id,
			kind,
			started_ts,
			finished_ts,
			total,
			matched,
			uncertain,
			failed,
			skipped,
			imported,
			warnings,
			ai_calls,
			ai_cost_usd,
			error_message
		)
		VALUES (
			@batch_id,
			@kind,
			@started_ts,
			@finished_ts,
			@total,
			@matched,
			@uncertain,
			@failed,
			@skipped,
			@imported,
			@warnings,
			@ai_calls,
			@ai_cost_usd,
			@error_message
		)
	`, dataset, importRunsTable)
}

func insertParameters(row ImportRunRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "batch_id", Value: row.BatchID},
		{Name: "kind", Value: row.Kind},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "finished_ts", Value: row.FinishedTS},
		{Name: "total", Value: row.Total},
		{Name: "matched", Value: row.Matched},
		{Name: "uncertain", Value: row.Uncertain},
		{Name: "failed", Value: row.Failed},
		{Name: "skipped", Value: row.Skipped},
		{Name: "imported", Value: row.Imported},
		{Name: "warnings", Value: row.Warnings},
		{Name: "ai_calls", Value: row.AICalls},
		{Name: "ai_cost_usd", Value: row.AICostUSD},
		{Name: "error_message", Value: row.ErrorMessage},
	}
}

// Ensure BigQueryRecorder implements importer.RunRecorder.
var _ importer.RunRecorder = (*BigQueryRecorder)(nil)
