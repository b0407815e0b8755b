package runlog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/ledger-import/internal/importer"
)

func TestNewBigQueryRecorder_Disabled(t *testing.T) {
	_, err := NewBigQueryRecorder(context.Background(), "", "finance")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestRowFromRun(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		run   importer.Run
		check func(t *testing.T, row ImportRunRow)
	}{
		{
			name: "process run",
			run: importer.Run{
				BatchID:    "b1",
				Kind:       importer.KindProcess,
				StartedAt:  started,
				FinishedAt: started.Add(time.Minute),
				Total:      10,
				Matched:    6,
				Uncertain:  2,
				Failed:     1,
				Skipped:    1,
				Warnings:   []string{"AI_UNAVAILABLE"},
				AICalls:    3,
				AICostUSD:  0.0042,
			},
			check: func(t *testing.T, row ImportRunRow) {
				if row.BatchID != "b1" || row.Kind != "process" || row.Total != 10 || row.Matched != 6 {
					t.Errorf("row = %+v", row)
				}
				if !row.FinishedTS.Valid || !row.FinishedTS.Timestamp.Equal(started.Add(time.Minute)) {
					t.Errorf("FinishedTS = %+v", row.FinishedTS)
				}
				if len(row.Warnings) != 1 || row.AICalls != 3 {
					t.Errorf("Warnings/AICalls = %v/%d", row.Warnings, row.AICalls)
				}
			},
		},
		{
			name: "unfinished run without warnings",
			run:  importer.Run{BatchID: "b2", Kind: importer.KindExecute, StartedAt: started},
			check: func(t *testing.T, row ImportRunRow) {
				if row.FinishedTS.Valid {
					t.Error("FinishedTS should be NULL")
				}
				if row.Warnings == nil {
					t.Error("Warnings should be an empty array, not nil")
				}
			},
		},
		{
			name: "long error truncated",
			run:  importer.Run{BatchID: "b3", Error: strings.Repeat("x", 3000)},
			check: func(t *testing.T, row ImportRunRow) {
				if len(row.ErrorMessage) != maxErrorLength {
					t.Errorf("ErrorMessage length = %d, want %d", len(row.ErrorMessage), maxErrorLength)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, rowFromRun(tt.run))
		})
	}
}

func TestInsertQueryAndParameters(t *testing.T) {
	q := insertQuery("finance")
	if !strings.Contains(q, "INSERT finance.import_runs") {
		t.Errorf("query missing table: %s", q)
	}

	params := insertParameters(rowFromRun(importer.Run{BatchID: "b1", Kind: "execute", Imported: 4}))
	byName := make(map[string]bigquery.QueryParameter, len(params))
	for _, p := range params {
		byName[p.Name] = p
		if !strings.Contains(q, "@"+p.Name) {
			t.Errorf("parameter %s not referenced by query", p.Name)
		}
	}
	if len(byName) != len(params) {
		t.Error("duplicate parameter names")
	}
	if byName["imported"].Value != int64(4) {
		t.Errorf("imported = %v, want 4", byName["imported"].Value)
	}
	if byName["batch_id"].Value != "b1" {
		t.Errorf("batch_id = %v", byName["batch_id"].Value)
	}
}

func TestImportRunRowSchema(t *testing.T) {
	schema, err := bigquery.InferSchema(ImportRunRow{})
	if err != nil {
		t.Fatalf("InferSchema failed: %v", err)
	}
	fields := map[string]*bigquery.FieldSchema{}
	for _, f := range schema {
		fields[f.Name] = f
	}
	if f, ok := fields["warnings"]; !ok || !f.Repeated {
		t.Error("warnings should be a repeated field")
	}
	if f, ok := fields["finished_ts"]; !ok || f.Type != bigquery.TimestampFieldType {
		t.Error("finished_ts should be a timestamp")
	}
}
