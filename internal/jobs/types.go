package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/ledger-import/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeProcess runs the processor over parsed rows.
	JobTypeProcess JobType = "process"
	// JobTypeExecute writes confirmed transactions to the ledger.
	JobTypeExecute JobType = "execute"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// ImportJob is a fire-and-forget process or execute request.
type ImportJob struct {
	// JobID is the progress session id the job reports to.
	JobID string `json:"job_id"`

	// Type selects the processor or the executor.
	Type JobType `json:"type"`

	// BatchID groups the job with its sibling process/execute run.
	BatchID string `json:"batch_id,omitempty"`

	// Parsed holds the input of a process job.
	Parsed []domain.ParsedTransaction `json:"parsed,omitempty"`

	// Confirmed holds the input of an execute job.
	Confirmed []domain.ConfirmedTransaction `json:"confirmed,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// Len returns the number of transactions carried by the job.
func (j *ImportJob) Len() int {
	if j.Type == JobTypeExecute {
		return len(j.Confirmed)
	}
	return len(j.Parsed)
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish enqueues an import job.
	Publish(ctx context.Context, job *ImportJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. Imports are never retried, so a returned
// error only marks the job failed.
type JobHandler func(ctx context.Context, job *ImportJob) error
