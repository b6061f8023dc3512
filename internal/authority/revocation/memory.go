package revocation

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store backed by a map. Records live until
// DeleteExpired prunes them.
type Memory struct {
	mu      sync.Mutex
	records map[string]time.Time
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *Memory) Insert(_ context.Context, id string, expiry time.Time) error {
	if id == "" {
		return ErrEmptyID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; ok {
		return ErrDuplicate
	}
	m.records[id] = expiry
	return nil
}

func (m *Memory) Exists(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.records[id]
	return ok, nil
}

func (m *Memory) DeleteExpired(_ context.Context) (int64, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, expiry := range m.records {
		if !expiry.After(now) {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of records held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
