// Package aicache holds AI categorization responses keyed by raw statement row.
package aicache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Entry is a cached categorization suggestion.
type Entry struct {
	EntityName  string    `json:"entityName"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CachedAt    time.Time `json:"cachedAt"`
}

// Cache is the response cache used by the categorizer. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Clear(ctx context.Context) error
}

// Key derives the cache key for a raw row.
func Key(rawRow string) string {
	sum := sha256.Sum256([]byte(rawRow))
	return hex.EncodeToString(sum[:])
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
