package importer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/logger"
)

// Run kinds.
const (
	KindProcess = "process"
	KindExecute = "execute"
)

// Run is the summary of one processor or executor invocation.
type Run struct {
	BatchID    string
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Matched    int
	Uncertain  int
	Failed     int
	Skipped    int
	Imported   int
	Warnings   []string
	AICalls    int
	AICostUSD  float64
	Error      string
}

// RunRecorder persists run summaries.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Service combines the processor and executor and records each run.
type Service struct {
	processor *Processor
	executor  *Executor
	recorder  RunRecorder
	now       func() time.Time
}

// NewService creates a Service. recorder may be nil.
func NewService(processor *Processor, executor *Executor, recorder RunRecorder) *Service {
	return &Service{
		processor: processor,
		executor:  executor,
		recorder:  recorder,
		now:       time.Now,
	}
}

// NewBatchID returns a fresh batch id.
func NewBatchID() string {
	return uuid.NewString()
}

// Process runs the processor. An empty batchID gets a generated one.
func (s *Service) Process(ctx context.Context, batchID string, txs []domain.ParsedTransaction, obs Observer) (*domain.ProcessResult, error) {
	if batchID == "" {
		batchID = NewBatchID()
	}
	run := Run{BatchID: batchID, Kind: KindProcess, StartedAt: s.now().UTC(), Total: len(txs)}

	result, err := s.processor.Process(ctx, batchID, txs, obs)
	run.FinishedAt = s.now().UTC()
	if err != nil {
		run.Error = err.Error()
	}
	if result != nil {
		run.Matched = len(result.Matched)
		run.Uncertain = len(result.Uncertain)
		run.Failed = len(result.Failed)
		run.Skipped = len(result.Skipped)
		run.AICalls = result.AIUsage.APICalls
		run.AICostUSD = result.AIUsage.TotalCostUSD
		for _, w := range result.Warnings {
			run.Warnings = append(run.Warnings, string(w.Type))
		}
	}
	s.record(ctx, run)

	return result, err
}

// Execute runs the executor. An empty batchID gets a generated one.
func (s *Service) Execute(ctx context.Context, batchID string, txs []domain.ConfirmedTransaction, obs Observer) *domain.ExecuteResult {
	if batchID == "" {
		batchID = NewBatchID()
	}
	run := Run{BatchID: batchID, Kind: KindExecute, StartedAt: s.now().UTC(), Total: len(txs)}

	result := s.executor.Execute(ctx, batchID, txs, obs)
	run.FinishedAt = s.now().UTC()
	run.Imported = result.Imported
	run.Failed = len(result.Failed)
	run.Skipped = result.Skipped
	if err := ctx.Err(); err != nil {
		run.Error = err.Error()
	}
	s.record(ctx, run)

	return result
}

// record stores run; failures are logged only.
func (s *Service) record(ctx context.Context, run Run) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("batch_id", run.BatchID).
			Str("kind", run.Kind).
			Msg("Failed to record import run")
	}
}
