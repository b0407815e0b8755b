package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/progress"
)

// Runner runs the two import stages. *importer.Service implements it.
type Runner interface {
	Process(ctx context.Context, batchID string, txs []domain.ParsedTransaction, obs importer.Observer) (*domain.ProcessResult, error)
	Execute(ctx context.Context, batchID string, txs []domain.ConfirmedTransaction, obs importer.Observer) *domain.ExecuteResult
}

// Submit creates the running progress record for job and publishes it, so
// the session can be polled before a worker picks the job up.
func Submit(ctx context.Context, pub Publisher, store progress.Store, job *ImportJob) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}

	now := time.Now().UTC()
	rec := &progress.Record{
		SessionID: job.JobID,
		Kind:      string(job.Type),
		Status:    progress.StatusRunning,
		Total:     job.Len(),
		Recent:    []string{},
		Errors:    []progress.ItemError{},
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := store.Set(ctx, rec); err != nil {
		return fmt.Errorf("Submit: failed to create progress record: %w", err)
	}

	if err := pub.Publish(ctx, job); err != nil {
		_ = store.Update(context.WithoutCancel(ctx), job.JobID, func(r *progress.Record) {
			r.Status = progress.StatusFailed
			r.Errors = append(r.Errors, progress.ItemError{Item: progress.SystemItem, Message: err.Error()})
			r.UpdatedAt = time.Now().UTC()
		})
		return fmt.Errorf("Submit: failed to publish job: %w", err)
	}
	return nil
}

// NewImportHandler returns a JobHandler that runs job through runner and
// mirrors its progress into store. A panic or top-level error marks the
// session failed.
func NewImportHandler(runner Runner, store progress.Store) JobHandler {
	return func(ctx context.Context, job *ImportJob) (err error) {
		pub, err := progress.Start(ctx, store, job.JobID, string(job.Type), 0)
		if err != nil {
			return err
		}

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("import job panicked: %v", r)
				_ = pub.Fail(ctx, err)
			}
		}()

		switch job.Type {
		case JobTypeProcess:
			result, err := runner.Process(ctx, job.BatchID, job.Parsed, pub)
			if err != nil {
				_ = pub.FailProcess(ctx, result, err)
				return err
			}
			return pub.CompleteProcess(ctx, result)

		case JobTypeExecute:
			result := runner.Execute(ctx, job.BatchID, job.Confirmed, pub)
			return pub.CompleteExecute(ctx, result)

		default:
			err := fmt.Errorf("unknown job type %q", job.Type)
			_ = pub.Fail(ctx, err)
			return err
		}
	}
}
