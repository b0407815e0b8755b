package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/logger"
)

// DefaultBufferSize is the number of pending updates a Publisher holds
// before it starts dropping them.
const DefaultBufferSize = 256

// Publisher mirrors importer notifications into a progress record.
// Notifications are queued and applied by a single goroutine; when the
// queue is full the update is dropped so the caller never blocks.
type Publisher struct {
	store     Store
	sessionID string
	updates   chan func(*Record)
	done      chan struct{}
	log       zerolog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// Start creates the running record for sessionID and returns a Publisher
// writing to it. bufferSize <= 0 uses DefaultBufferSize.
func Start(ctx context.Context, store Store, sessionID, kind string, bufferSize int) (*Publisher, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	p := &Publisher{
		store:     store,
		sessionID: sessionID,
		updates:   make(chan func(*Record), bufferSize),
		done:      make(chan struct{}),
		log:       logger.FromContext(ctx).With().Str("component", "progress").Str("session_id", sessionID).Logger(),
		now:       time.Now,
	}

	now := p.now().UTC()
	rec := &Record{
		SessionID: sessionID,
		Kind:      kind,
		Status:    StatusRunning,
		Recent:    []string{},
		Errors:    []ItemError{},
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := store.Set(ctx, rec); err != nil {
		return nil, fmt.Errorf("Start: failed to create progress record: %w", err)
	}

	go p.apply(context.WithoutCancel(ctx))

	return p, nil
}

// SessionID returns the session this publisher writes to.
func (p *Publisher) SessionID() string {
	return p.sessionID
}

// Dropped returns how many updates were discarded because the queue was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// OnStep implements importer.Observer.
func (p *Publisher) OnStep(step string, total int) {
	p.enqueue(func(r *Record) {
		r.Step = step
		r.Total = total
		r.Processed = 0
	})
}

// OnItem implements importer.Observer.
func (p *Publisher) OnItem(summary string) {
	p.enqueue(func(r *Record) {
		r.Recent = append(r.Recent, summary)
		if n := len(r.Recent); n > RecentWindow {
			r.Recent = append([]string(nil), r.Recent[n-RecentWindow:]...)
		}
	})
}

// OnItemDone implements importer.Observer.
func (p *Publisher) OnItemDone(summary string, errMsg string) {
	p.enqueue(func(r *Record) {
		r.Processed++
		if errMsg != "" {
			r.Errors = append(r.Errors, ItemError{Item: summary, Message: errMsg})
		}
	})
}

// CompleteProcess drains pending updates and stores the processor result.
func (p *Publisher) CompleteProcess(ctx context.Context, result *domain.ProcessResult) error {
	return p.finish(ctx, func(r *Record) {
		r.Status = StatusCompleted
		r.ProcessResult = result
		if result != nil {
			r.Processed = result.Total
			r.Total = result.Total
		}
	})
}

// CompleteExecute drains pending updates and stores the executor result.
func (p *Publisher) CompleteExecute(ctx context.Context, result *domain.ExecuteResult) error {
	return p.finish(ctx, func(r *Record) {
		r.Status = StatusCompleted
		r.ExecuteResult = result
	})
}

// Fail drains pending updates and marks the session failed with a single
// System error entry.
func (p *Publisher) Fail(ctx context.Context, cause error) error {
	return p.FailProcess(ctx, nil, cause)
}

// FailProcess is Fail for a processor run that was cut short; the partial
// result, when present, is kept on the record.
func (p *Publisher) FailProcess(ctx context.Context, partial *domain.ProcessResult, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return p.finish(ctx, func(r *Record) {
		r.Status = StatusFailed
		r.Errors = append(r.Errors, ItemError{Item: SystemItem, Message: msg})
		if partial != nil {
			r.ProcessResult = partial
		}
	})
}

func (p *Publisher) enqueue(fn func(*Record)) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	select {
	case p.updates <- fn:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) apply(ctx context.Context) {
	defer close(p.done)

	for fn := range p.updates {
		if err := p.write(ctx, fn); err != nil {
			p.log.Debug().Err(err).Msg("Failed to apply progress update")
		}
	}
}

func (p *Publisher) write(ctx context.Context, fn func(*Record)) error {
	return p.store.Update(ctx, p.sessionID, func(r *Record) {
		fn(r)
		r.UpdatedAt = p.now().UTC()
	})
}

// finish closes the queue, waits for it to drain and applies the final
// update synchronously.
func (p *Publisher) finish(ctx context.Context, fn func(*Record)) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.updates)
	}
	p.mu.Unlock()

	<-p.done

	if n := p.Dropped(); n > 0 {
		p.log.Warn().Int64("dropped", n).Msg("Progress updates dropped")
	}

	if err := p.write(context.WithoutCancel(ctx), fn); err != nil {
		return fmt.Errorf("finish: failed to write final progress: %w", err)
	}
	return nil
}

// Ensure Publisher implements importer.Observer.
var _ importer.Observer = (*Publisher)(nil)
