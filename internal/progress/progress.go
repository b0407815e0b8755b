// Package progress mirrors the state of a running import into a queryable
// progress record keyed by session id.
package progress

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dvloznov/ledger-import/internal/domain"
)

// Status represents the lifecycle state of a progress session.
type Status string

const (
	// StatusRunning indicates the session is still being processed.
	StatusRunning Status = "running"
	// StatusCompleted indicates the session finished and carries a result.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the session stopped on an uncaught error.
	StatusFailed Status = "failed"
)

// RecentWindow is the number of in-flight item summaries kept on a record.
const RecentWindow = 5

// SystemItem is the item name used for session-level failures.
const SystemItem = "System"

// ErrNotFound is returned when no record exists for a session id.
var ErrNotFound = errors.New("progress session not found")

// ItemError is a failure attached to one item of the session.
type ItemError struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

// Record is the progress state of one session.
type Record struct {
	SessionID     string                `json:"sessionId"`
	Kind          string                `json:"kind"`
	Status        Status                `json:"status"`
	Step          string                `json:"step,omitempty"`
	Processed     int                   `json:"processed"`
	Total         int                   `json:"total"`
	Recent        []string              `json:"recent"`
	Errors        []ItemError           `json:"errors"`
	ProcessResult *domain.ProcessResult `json:"processResult,omitempty"`
	ExecuteResult *domain.ExecuteResult `json:"executeResult,omitempty"`
	StartedAt     time.Time             `json:"startedAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

// Clone returns a copy of r that shares no slices with it.
func (r *Record) Clone() *Record {
	c := *r
	c.Recent = slices.Clone(r.Recent)
	c.Errors = slices.Clone(r.Errors)
	return &c
}

// Store persists progress records.
type Store interface {
	// Set creates or replaces the record for rec.SessionID.
	Set(ctx context.Context, rec *Record) error

	// Update applies fn to the stored record under the store's lock.
	Update(ctx context.Context, sessionID string, fn func(*Record)) error

	// Get returns a copy of the record for sessionID.
	Get(ctx context.Context, sessionID string) (*Record, error)
}
