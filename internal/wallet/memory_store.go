package wallet

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/usdt"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu          sync.Mutex
	wallets     map[string]*memWallet
	deposits    map[string]*DepositRequest
	withdrawals map[string]*WithdrawalRequest
}

type memWallet struct {
	balance   *big.Int
	escrow    *big.Int
	frozen    bool
	updatedAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:     make(map[string]*memWallet),
		deposits:    make(map[string]*DepositRequest),
		withdrawals: make(map[string]*WithdrawalRequest),
	}
}

func (m *MemoryStore) wallet(principal string) *memWallet {
	w, ok := m.wallets[principal]
	if !ok {
		w = &memWallet{balance: big.NewInt(0), escrow: big.NewInt(0), updatedAt: time.Now()}
		m.wallets[principal] = w
	}
	return w
}

func (m *MemoryStore) GetWallet(_ context.Context, principal string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[principal]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return &Wallet{
		Principal: principal,
		Balance:   usdt.Format(w.balance),
		Escrow:    usdt.Format(w.escrow),
		Frozen:    w.frozen,
		UpdatedAt: w.updatedAt,
	}, nil
}

func (m *MemoryStore) CreditBalance(_ context.Context, principal, amount string) error {
	n, ok := usdt.Parse(amount)
	if !ok {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.wallet(principal)
	w.balance.Add(w.balance, n)
	w.updatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DebitBalance(_ context.Context, principal, amount string) error {
	n, ok := usdt.Parse(amount)
	if !ok {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.wallet(principal)
	if w.balance.Cmp(n) < 0 {
		return ErrInsufficientBalance
	}
	w.balance.Sub(w.balance, n)
	w.updatedAt = time.Now()
	return nil
}

func (m *MemoryStore) LockEscrow(_ context.Context, principal, amount string) error {
	n, ok := usdt.Parse(amount)
	if !ok {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.wallet(principal)
	if w.balance.Cmp(n) < 0 {
		return ErrInsufficientBalance
	}
	w.balance.Sub(w.balance, n)
	w.escrow.Add(w.escrow, n)
	w.updatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UnlockEscrow(_ context.Context, principal, amount string) error {
	n, ok := usdt.Parse(amount)
	if !ok {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.wallet(principal)
	if w.escrow.Cmp(n) < 0 {
		return ErrInsufficientEscrow
	}
	w.escrow.Sub(w.escrow, n)
	w.balance.Add(w.balance, n)
	w.updatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SettleEscrow(_ context.Context, seller, buyer, amount, net, fee string) error {
	amt, ok1 := usdt.Parse(amount)
	netN, ok2 := usdt.Parse(net)
	feeN, ok3 := usdt.Parse(fee)
	if !ok1 || !ok2 || !ok3 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sw := m.wallet(seller)
	if sw.escrow.Cmp(amt) < 0 {
		return ErrInsufficientEscrow
	}
	now := time.Now()
	sw.escrow.Sub(sw.escrow, amt)
	sw.updatedAt = now

	bw := m.wallet(buyer)
	bw.balance.Add(bw.balance, netN)
	bw.updatedAt = now

	pw := m.wallet(PlatformPrincipal)
	pw.balance.Add(pw.balance, feeN)
	pw.updatedAt = now
	return nil
}

func (m *MemoryStore) SetFrozen(_ context.Context, principal string, frozen bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.wallet(principal)
	w.frozen = frozen
	w.updatedAt = time.Now()
	return nil
}

func (m *MemoryStore) CreateDeposit(_ context.Context, d *DepositRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.deposits[d.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDeposit(_ context.Context, id string) (*DepositRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deposits[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) UpdateDeposit(_ context.Context, d *DepositRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deposits[d.ID]; !ok {
		return ErrRequestNotFound
	}
	cp := *d
	m.deposits[d.ID] = &cp
	return nil
}

func (m *MemoryStore) ListDeposits(_ context.Context, principal string, status RequestStatus) ([]*DepositRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DepositRequest
	for _, d := range m.deposits {
		if principal != "" && d.Principal != principal {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CreateWithdrawal(_ context.Context, w *WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.withdrawals[w.ID] = &cp
	return nil
}

func (m *MemoryStore) GetWithdrawal(_ context.Context, id string) (*WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) UpdateWithdrawal(_ context.Context, w *WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.withdrawals[w.ID]; !ok {
		return ErrRequestNotFound
	}
	cp := *w
	m.withdrawals[w.ID] = &cp
	return nil
}

func (m *MemoryStore) ListWithdrawals(_ context.Context, principal string, status RequestStatus) ([]*WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*WithdrawalRequest
	for _, w := range m.withdrawals {
		if principal != "" && w.Principal != principal {
			continue
		}
		if status != "" && w.Status != status {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
