package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests. IDs are
// assigned from a monotonic counter, matching the BIGSERIAL behavior of
// the Postgres store.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*SellOrder
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[int64]*SellOrder)}
}

func (m *MemoryStore) Create(_ context.Context, o *SellOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*SellOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]*SellOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*SellOrder
	for _, o := range m.orders {
		if f.Seller != "" && o.Seller != f.Seller {
			continue
		}
		if f.Buyer != "" && o.Buyer != f.Buyer {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.OpenOnly && (o.Status.Terminal() || o.Frozen) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id int64, expected, next Status, buyer string) (*SellOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if o.Status != expected {
		return nil, ErrInvalidState
	}
	o.Status = next
	if buyer != "" {
		o.Buyer = buyer
	}
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) SetFrozen(_ context.Context, id int64, frozen bool) (*SellOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.Frozen = frozen
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}
