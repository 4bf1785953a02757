package identity

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	keys     map[string]*APIKey // by hash
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		keys:     make(map[string]*APIKey),
	}
}

func (m *MemoryStore) CreateAccount(_ context.Context, acct *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[acct.Principal]; ok {
		return ErrAccountExists
	}
	cp := *acct
	m.accounts[acct.Principal] = &cp
	return nil
}

func (m *MemoryStore) GetAccount(_ context.Context, principal string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[principal]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (m *MemoryStore) UpdateAccount(_ context.Context, acct *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[acct.Principal]; !ok {
		return ErrAccountNotFound
	}
	cp := *acct
	m.accounts[acct.Principal] = &cp
	return nil
}

func (m *MemoryStore) ListAccounts(_ context.Context) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Principal < out[j].Principal })
	return out, nil
}

func (m *MemoryStore) CreateKey(_ context.Context, key *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.keys[key.Hash] = &cp
	return nil
}

func (m *MemoryStore) GetKeyByHash(_ context.Context, hash string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[hash]
	if !ok {
		return nil, ErrInvalidAPIKey
	}
	cp := *key
	return &cp, nil
}
