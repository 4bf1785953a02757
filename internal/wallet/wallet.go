// Package wallet implements the USDT ledger: user balances, escrow holds,
// the platform profit wallet, and the two-phase deposit/withdrawal flows.
//
// Invariants:
//   - Balances never go negative; every debit checks funds first
//   - Escrow moves are conserving: lock, release, and refund shift value
//     between buckets without creating or destroying it
//   - Admin approval is the only path that mutates balances for deposits
//     and withdrawals; user-facing requests only queue intent
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/audit"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/idgen"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/metrics"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/usdt"
)

// PlatformPrincipal is the reserved wallet that accumulates spread fees.
const PlatformPrincipal = "platform"

// Errors
var (
	ErrWalletNotFound      = errors.New("wallet: not found")
	ErrWalletFrozen        = errors.New("wallet: frozen")
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
	ErrInsufficientEscrow  = errors.New("wallet: insufficient escrow")
	ErrWithdrawalLocked    = errors.New("wallet: withdrawals are locked platform-wide")
	ErrRequestNotFound     = errors.New("wallet: request not found")
	ErrAlreadyDecided      = errors.New("wallet: request already decided")
	ErrInvalidAmount       = errors.New("wallet: invalid amount")
)

// Wallet is one principal's ledger position.
type Wallet struct {
	Principal string    `json:"principal"`
	Balance   string    `json:"balance"` // available USDT
	Escrow    string    `json:"escrow"`  // USDT locked against open orders
	Frozen    bool      `json:"frozen"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RequestStatus is the lifecycle of a deposit or withdrawal request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// DepositRequest is a user's claim of an off-platform USDT transfer,
// awaiting admin confirmation.
type DepositRequest struct {
	ID        string        `json:"id"`
	Principal string        `json:"principal"`
	Amount    string        `json:"amount"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	DecidedAt *time.Time    `json:"decidedAt,omitempty"`
	DecidedBy string        `json:"decidedBy,omitempty"`
}

// WithdrawalRequest is a user's request to move USDT off-platform,
// awaiting admin approval. Bank fields identify the fiat payout target.
type WithdrawalRequest struct {
	ID          string        `json:"id"`
	Principal   string        `json:"principal"`
	Amount      string        `json:"amount"`
	UpiID       string        `json:"upiId,omitempty"`
	BankAccount string        `json:"bankAccount,omitempty"`
	IFSC        string        `json:"ifsc,omitempty"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	DecidedAt   *time.Time    `json:"decidedAt,omitempty"`
	DecidedBy   string        `json:"decidedBy,omitempty"`
}

// Store persists wallets and pending requests. Balance mutations are
// atomic and enforce non-negativity.
type Store interface {
	GetWallet(ctx context.Context, principal string) (*Wallet, error)
	CreditBalance(ctx context.Context, principal, amount string) error
	DebitBalance(ctx context.Context, principal, amount string) error
	LockEscrow(ctx context.Context, principal, amount string) error
	UnlockEscrow(ctx context.Context, principal, amount string) error
	// SettleEscrow removes amount from seller's escrow, credits net to the
	// buyer and fee to the platform wallet, all atomically.
	SettleEscrow(ctx context.Context, seller, buyer, amount, net, fee string) error
	SetFrozen(ctx context.Context, principal string, frozen bool) error

	CreateDeposit(ctx context.Context, d *DepositRequest) error
	GetDeposit(ctx context.Context, id string) (*DepositRequest, error)
	UpdateDeposit(ctx context.Context, d *DepositRequest) error
	ListDeposits(ctx context.Context, principal string, status RequestStatus) ([]*DepositRequest, error)

	CreateWithdrawal(ctx context.Context, w *WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id string) (*WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *WithdrawalRequest) error
	ListWithdrawals(ctx context.Context, principal string, status RequestStatus) ([]*WithdrawalRequest, error)
}

// LockChecker reports the platform-wide withdrawal lock state.
type LockChecker interface {
	WithdrawalsLocked(ctx context.Context) (bool, error)
}

// Service implements ledger operations.
type Service struct {
	store     Store
	locks     LockChecker
	auditor   *audit.Service
	spreadBPS int
}

// NewService creates a wallet service. spreadBPS is the platform fee on
// settlements in basis points.
func NewService(store Store, locks LockChecker, auditor *audit.Service, spreadBPS int) *Service {
	return &Service{store: store, locks: locks, auditor: auditor, spreadBPS: spreadBPS}
}

// Get returns a principal's wallet. Unknown principals get a zero wallet
// rather than an error so the UI can render before first deposit.
func (s *Service) Get(ctx context.Context, principal string) (*Wallet, error) {
	w, err := s.store.GetWallet(ctx, principal)
	if errors.Is(err, ErrWalletNotFound) {
		return &Wallet{Principal: principal, Balance: "0.000000", Escrow: "0.000000"}, nil
	}
	return w, err
}

// RequestDeposit queues a deposit claim. No balance changes until an admin
// confirms.
func (s *Service) RequestDeposit(ctx context.Context, principal, amount string) (*DepositRequest, error) {
	amount, err := canonical(amount)
	if err != nil {
		return nil, err
	}
	d := &DepositRequest{
		ID:        idgen.WithPrefix("dep_"),
		Principal: principal,
		Amount:    amount,
		Status:    RequestPending,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateDeposit(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ConfirmDeposit decides a pending deposit. Approval credits the balance;
// this is the only crediting path for deposits. Idempotence: deciding an
// already-decided request fails with ErrAlreadyDecided, so a retried
// approval cannot double-credit.
func (s *Service) ConfirmDeposit(ctx context.Context, admin, requestID string, approve bool) (*DepositRequest, error) {
	d, err := s.store.GetDeposit(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if d.Status != RequestPending {
		return nil, ErrAlreadyDecided
	}

	if approve {
		if err := s.store.CreditBalance(ctx, d.Principal, d.Amount); err != nil {
			return nil, err
		}
		d.Status = RequestApproved
	} else {
		d.Status = RequestRejected
	}
	now := time.Now()
	d.DecidedAt = &now
	d.DecidedBy = admin
	if err := s.store.UpdateDeposit(ctx, d); err != nil {
		return nil, err
	}

	if approve {
		s.record(ctx, d.Principal, audit.ActionDeposit, d.Amount, "", "confirmed by "+admin)
	}
	return d, nil
}

// RequestWithdrawal queues a withdrawal. Rejected up front when the
// platform lock is engaged, the wallet is frozen, or available balance is
// insufficient. Funds move only at approval.
func (s *Service) RequestWithdrawal(ctx context.Context, principal, amount, upiID, bankAccount, ifsc string) (*WithdrawalRequest, error) {
	amount, err := canonical(amount)
	if err != nil {
		return nil, err
	}

	locked, err := s.locks.WithdrawalsLocked(ctx)
	if err != nil {
		return nil, err
	}
	if locked {
		metrics.WithdrawalsBlockedTotal.Inc()
		return nil, ErrWithdrawalLocked
	}

	w, err := s.Get(ctx, principal)
	if err != nil {
		return nil, err
	}
	if w.Frozen {
		return nil, ErrWalletFrozen
	}
	if usdt.Cmp(w.Balance, amount) < 0 {
		return nil, ErrInsufficientBalance
	}

	req := &WithdrawalRequest{
		ID:          idgen.WithPrefix("wd_"),
		Principal:   principal,
		Amount:      amount,
		UpiID:       upiID,
		BankAccount: bankAccount,
		IFSC:        ifsc,
		Status:      RequestPending,
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateWithdrawal(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ApproveWithdrawal decides a pending withdrawal. Approval debits the
// balance, the only debiting path for withdrawals. The balance is
// re-checked at approval time since it may have changed since the request.
func (s *Service) ApproveWithdrawal(ctx context.Context, admin, requestID string, approve bool) (*WithdrawalRequest, error) {
	req, err := s.store.GetWithdrawal(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestPending {
		return nil, ErrAlreadyDecided
	}

	if approve {
		w, err := s.Get(ctx, req.Principal)
		if err != nil {
			return nil, err
		}
		if w.Frozen {
			return nil, ErrWalletFrozen
		}
		if err := s.store.DebitBalance(ctx, req.Principal, req.Amount); err != nil {
			return nil, err
		}
		req.Status = RequestApproved
	} else {
		req.Status = RequestRejected
	}
	now := time.Now()
	req.DecidedAt = &now
	req.DecidedBy = admin
	if err := s.store.UpdateWithdrawal(ctx, req); err != nil {
		return nil, err
	}

	if approve {
		s.record(ctx, req.Principal, audit.ActionWithdrawal, req.Amount, "", "approved by "+admin)
	}
	return req, nil
}

// ListDeposits returns deposit requests, optionally filtered.
func (s *Service) ListDeposits(ctx context.Context, principal string, status RequestStatus) ([]*DepositRequest, error) {
	return s.store.ListDeposits(ctx, principal, status)
}

// ListWithdrawals returns withdrawal requests, optionally filtered.
func (s *Service) ListWithdrawals(ctx context.Context, principal string, status RequestStatus) ([]*WithdrawalRequest, error) {
	return s.store.ListWithdrawals(ctx, principal, status)
}

// EscrowLock moves amount from a seller's available balance into escrow.
func (s *Service) EscrowLock(ctx context.Context, principal, amount string) error {
	amount, err := canonical(amount)
	if err != nil {
		return err
	}
	w, err := s.Get(ctx, principal)
	if err != nil {
		return err
	}
	if w.Frozen {
		return ErrWalletFrozen
	}
	return s.store.LockEscrow(ctx, principal, amount)
}

// ReleaseEscrow settles an order: the seller's escrowed amount is split
// into a net credit to the buyer and a spread fee to the platform wallet.
// Returns the net and fee actually applied.
func (s *Service) ReleaseEscrow(ctx context.Context, seller, buyer, amount string) (net, fee string, err error) {
	amount, err = canonical(amount)
	if err != nil {
		return "", "", err
	}
	net, fee, ok := usdt.ApplySpread(amount, s.spreadBPS)
	if !ok {
		return "", "", ErrInvalidAmount
	}
	if err := s.store.SettleEscrow(ctx, seller, buyer, amount, net, fee); err != nil {
		return "", "", err
	}
	metrics.SpreadCollectedTotal.Add(usdt.ToFloat(fee))
	logging.L(ctx).Info("escrow settled",
		"seller", seller, "buyer", buyer,
		"amount", amount, "net", net, "fee", fee)
	return net, fee, nil
}

// RefundEscrow returns escrowed funds to the seller's available balance.
func (s *Service) RefundEscrow(ctx context.Context, principal, amount string) error {
	amount, err := canonical(amount)
	if err != nil {
		return err
	}
	return s.store.UnlockEscrow(ctx, principal, amount)
}

// Freeze marks a wallet frozen. Frozen wallets cannot place orders, lock
// escrow, or request withdrawals; existing escrow stays in place.
func (s *Service) Freeze(ctx context.Context, principal string) error {
	return s.store.SetFrozen(ctx, principal, true)
}

// Unfreeze clears the frozen flag.
func (s *Service) Unfreeze(ctx context.Context, principal string) error {
	return s.store.SetFrozen(ctx, principal, false)
}

// ProfitBalance returns the platform wallet's accumulated spread.
func (s *Service) ProfitBalance(ctx context.Context) (string, error) {
	w, err := s.Get(ctx, PlatformPrincipal)
	if err != nil {
		return "", err
	}
	return w.Balance, nil
}

func (s *Service) record(ctx context.Context, principal string, action audit.ActionType, amount, orderID, details string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, principal, action, amount, orderID, details); err != nil {
		logging.L(ctx).Error("audit record failed", "action", action, "error", err)
	}
}

func canonical(amount string) (string, error) {
	n, ok := usdt.Parse(amount)
	if !ok || n.Sign() <= 0 {
		return "", ErrInvalidAmount
	}
	return usdt.Format(n), nil
}
