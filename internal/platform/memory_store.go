package platform

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	locks   []*LockState
	rate    float64
	rateSet bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) CurrentLock(_ context.Context) (*LockState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.locks) == 0 {
		return nil, ErrNoLockState
	}
	cp := *m.locks[len(m.locks)-1]
	return &cp, nil
}

func (m *MemoryStore) AppendLock(_ context.Context, l *LockState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.locks = append(m.locks, &cp)
	return nil
}

func (m *MemoryStore) LockHistory(_ context.Context, limit int) ([]*LockState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*LockState, 0, limit)
	for i := len(m.locks) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.locks[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) GetRate(_ context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.rateSet {
		return 0, ErrNoRate
	}
	return m.rate, nil
}

func (m *MemoryStore) SetRate(_ context.Context, rate float64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = rate
	m.rateSet = true
	return nil
}
