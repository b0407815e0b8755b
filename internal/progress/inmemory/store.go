package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/ledger-import/internal/progress"
)

// Store is an in-memory implementation of progress.Store.
// It is safe for concurrent use. Records are lost on restart.
type Store struct {
	mu      sync.RWMutex
	records map[string]*progress.Record
}

// NewStore creates a new in-memory progress store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*progress.Record),
	}
}

// Set implements the progress.Store interface.
func (s *Store) Set(ctx context.Context, rec *progress.Record) error {
	if rec.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external modifications
	s.records[rec.SessionID] = rec.Clone()

	return nil
}

// Update implements the progress.Store interface.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(*progress.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[sessionID]
	if !exists {
		return fmt.Errorf("%w: %s", progress.ErrNotFound, sessionID)
	}

	fn(rec)

	return nil
}

// Get implements the progress.Store interface.
func (s *Store) Get(ctx context.Context, sessionID string) (*progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", progress.ErrNotFound, sessionID)
	}

	// Return a copy to avoid external modifications
	return rec.Clone(), nil
}

// Ensure Store implements progress.Store interface.
var _ progress.Store = (*Store)(nil)
