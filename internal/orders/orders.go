// Package orders implements the P2P sell-order lifecycle.
//
// State machine:
//
//	locked --> inr_paid --> verified --> released
//	   \          |            |
//	    \         v            v
//	     +----> refunded <-----+
//
// Forward transitions are compare-and-swap on the current status, so a
// replayed or racing request settles at most once. A frozen order admits
// no transition except the admin resolution paths, release and refund,
// which clear the freeze on completion.
package orders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/audit"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/metrics"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/syncutil"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/usdt"
)

// Errors
var (
	ErrOrderNotFound = errors.New("orders: not found")
	ErrInvalidState  = errors.New("orders: invalid state transition")
	ErrOrderFrozen   = errors.New("orders: order is frozen")
	ErrSelfTrade     = errors.New("orders: cannot buy own order")
	ErrNotBuyer      = errors.New("orders: caller is not the recorded buyer")
	ErrNoBuyer       = errors.New("orders: no buyer recorded")
	ErrInvalidAmount = errors.New("orders: invalid amount")
)

// Status is an order's lifecycle state.
type Status string

const (
	StatusLocked   Status = "locked"   // seller's USDT escrowed, awaiting buyer
	StatusInrPaid  Status = "inr_paid" // buyer claims the INR transfer is done
	StatusVerified Status = "verified" // admin confirmed the INR arrived
	StatusReleased Status = "released" // USDT settled to buyer, terminal
	StatusRefunded Status = "refunded" // USDT returned to seller, terminal
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded
}

// SellOrder is one USDT-for-INR offer and its settlement state.
type SellOrder struct {
	ID          int64     `json:"id"`
	Seller      string    `json:"seller"`
	Buyer       string    `json:"buyer,omitempty"` // set when the buyer claims payment
	Amount      string    `json:"amount"`          // USDT, canonical decimal string
	Rate        float64   `json:"rate"`            // INR per USDT, fixed at creation
	UpiID       string    `json:"upiId,omitempty"` // seller's INR payment target
	BankAccount string    `json:"bankAccount,omitempty"`
	IFSC        string    `json:"ifsc,omitempty"`
	Status      Status    `json:"status"`
	Frozen      bool      `json:"frozen"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Filter narrows an order listing.
type Filter struct {
	Seller string
	Buyer  string
	Status Status
	// OpenOnly limits to non-terminal, non-frozen orders (the public book).
	OpenOnly bool
}

// Store persists orders. UpdateStatus is compare-and-swap: it moves the
// order from expected to next atomically and fails with ErrInvalidState
// when the current status differs.
type Store interface {
	Create(ctx context.Context, o *SellOrder) error
	Get(ctx context.Context, id int64) (*SellOrder, error)
	List(ctx context.Context, f Filter) ([]*SellOrder, error)
	UpdateStatus(ctx context.Context, id int64, expected, next Status, buyer string) (*SellOrder, error)
	SetFrozen(ctx context.Context, id int64, frozen bool) (*SellOrder, error)
}

// Ledger is the escrow surface the order lifecycle drives.
type Ledger interface {
	EscrowLock(ctx context.Context, principal, amount string) error
	ReleaseEscrow(ctx context.Context, seller, buyer, amount string) (net, fee string, err error)
	RefundEscrow(ctx context.Context, principal, amount string) error
}

// RateProvider supplies the current INR-per-USDT platform rate.
type RateProvider interface {
	Rate(ctx context.Context) (float64, error)
}

// Service implements the order lifecycle.
type Service struct {
	store   Store
	ledger  Ledger
	rates   RateProvider
	auditor *audit.Service
	locks   syncutil.ShardedMutex
}

// NewService creates an order service.
func NewService(store Store, ledger Ledger, rates RateProvider, auditor *audit.Service) *Service {
	return &Service{store: store, ledger: ledger, rates: rates, auditor: auditor}
}

// Create escrows the seller's USDT and opens an order at the current
// platform rate. The rate is captured here and never changes for the
// order's lifetime.
func (s *Service) Create(ctx context.Context, seller, amount, upiID, bankAccount, ifsc string) (*SellOrder, error) {
	if !usdt.IsPositive(amount) {
		return nil, ErrInvalidAmount
	}
	rate, err := s.rates.Rate(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.EscrowLock(ctx, seller, amount); err != nil {
		return nil, err
	}

	now := time.Now()
	o := &SellOrder{
		Seller:      seller,
		Amount:      amount,
		Rate:        rate,
		UpiID:       upiID,
		BankAccount: bankAccount,
		IFSC:        ifsc,
		Status:      StatusLocked,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		// Escrow must not stay locked for an order that never existed
		if rbErr := s.ledger.RefundEscrow(ctx, seller, amount); rbErr != nil {
			logging.L(ctx).Error("escrow rollback failed", "seller", seller, "amount", amount, "error", rbErr)
		}
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(string(StatusLocked)).Inc()
	s.record(ctx, seller, audit.ActionOrderPlacement, amount, o.ID, "")
	return o, nil
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id int64) (*SellOrder, error) {
	return s.store.Get(ctx, id)
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]*SellOrder, error) {
	return s.store.List(ctx, f)
}

// ConfirmInrPayment records the buyer's claim that the INR transfer was
// made. Moves locked -> inr_paid and pins the buyer on the order.
func (s *Service) ConfirmInrPayment(ctx context.Context, buyer string, id int64) (*SellOrder, error) {
	unlock := s.locks.Lock(orderKey(id))
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Frozen {
		return nil, ErrOrderFrozen
	}
	if o.Seller == buyer {
		return nil, ErrSelfTrade
	}

	o, err = s.store.UpdateStatus(ctx, id, StatusLocked, StatusInrPaid, buyer)
	if err != nil {
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(string(StatusInrPaid)).Inc()
	return o, nil
}

// Verify is the admin confirmation that the INR actually arrived. Moves
// inr_paid -> verified.
func (s *Service) Verify(ctx context.Context, id int64) (*SellOrder, error) {
	unlock := s.locks.Lock(orderKey(id))
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Frozen {
		return nil, ErrOrderFrozen
	}

	o, err = s.store.UpdateStatus(ctx, id, StatusInrPaid, StatusVerified, "")
	if err != nil {
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(string(StatusVerified)).Inc()
	return o, nil
}

// Release settles an order: the escrowed USDT moves to the buyer net of
// spread, the fee to the platform wallet. The natural path releases a
// verified order; on a frozen order release stays available from any
// active state so an admin can resolve a dispute in the buyer's favor,
// and the freeze clears on completion. buyerOverride lets an admin direct
// a manual release when the recorded buyer is wrong; empty means use the
// order's buyer. The CAS to released happens before the ledger
// settlement, so a concurrent duplicate release pays at most once.
func (s *Service) Release(ctx context.Context, id int64, buyerOverride string) (*SellOrder, error) {
	unlock := s.locks.Lock(orderKey(id))
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, ErrInvalidState
	}
	buyer := o.Buyer
	if buyerOverride != "" {
		buyer = buyerOverride
	}
	if buyer == "" {
		return nil, ErrNoBuyer
	}

	prior := StatusVerified
	if o.Frozen {
		// Admin resolution: a frozen order releases from whatever state
		// it was frozen in, mirroring Refund.
		prior = o.Status
	}

	o, err = s.store.UpdateStatus(ctx, id, prior, StatusReleased, buyer)
	if err != nil {
		return nil, err
	}

	net, fee, err := s.ledger.ReleaseEscrow(ctx, o.Seller, buyer, o.Amount)
	if err != nil {
		// Settlement failed after the CAS: put the order back so the
		// escrow and the status agree.
		if _, rbErr := s.store.UpdateStatus(ctx, id, StatusReleased, prior, buyer); rbErr != nil {
			logging.L(ctx).Error("release rollback failed", "order", id, "error", rbErr)
		}
		return nil, err
	}

	if o.Frozen {
		if o, err = s.store.SetFrozen(ctx, id, false); err != nil {
			return nil, err
		}
		metrics.OrdersFrozen.Dec()
	}
	metrics.OrdersTotal.WithLabelValues(string(StatusReleased)).Inc()
	s.record(ctx, o.Seller, audit.ActionOrderCompletion, o.Amount, id, "released to "+buyer)
	logging.L(ctx).Info("order released",
		"order", id, "seller", o.Seller, "buyer", buyer,
		"amount", o.Amount, "net", net, "fee", fee)
	return o, nil
}

// Refund returns the escrowed USDT to the seller and terminates the
// order. Admin-only resolution path; permitted even on frozen orders,
// and clears the freeze on completion.
func (s *Service) Refund(ctx context.Context, id int64) (*SellOrder, error) {
	unlock := s.locks.Lock(orderKey(id))
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, ErrInvalidState
	}

	prior := o.Status
	o, err = s.store.UpdateStatus(ctx, id, prior, StatusRefunded, "")
	if err != nil {
		return nil, err
	}

	if err := s.ledger.RefundEscrow(ctx, o.Seller, o.Amount); err != nil {
		// The order must not sit terminal while the seller's escrow is
		// still locked; put it back so the refund can be retried.
		if _, rbErr := s.store.UpdateStatus(ctx, id, StatusRefunded, prior, ""); rbErr != nil {
			logging.L(ctx).Error("refund rollback failed", "order", id, "error", rbErr)
		}
		return nil, err
	}

	if o.Frozen {
		if o, err = s.store.SetFrozen(ctx, id, false); err != nil {
			return nil, err
		}
		metrics.OrdersFrozen.Dec()
	}
	metrics.OrdersTotal.WithLabelValues(string(StatusRefunded)).Inc()
	return o, nil
}

// Freeze blocks all transitions on an order except the admin resolution
// paths, release and refund. Used by the dispute flow.
func (s *Service) Freeze(ctx context.Context, id int64) (*SellOrder, error) {
	unlock := s.locks.Lock(orderKey(id))
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, ErrInvalidState
	}
	if o.Frozen {
		return o, nil
	}
	o, err = s.store.SetFrozen(ctx, id, true)
	if err != nil {
		return nil, err
	}
	metrics.OrdersFrozen.Inc()
	return o, nil
}

// Unfreeze lifts a freeze so the normal lifecycle can resume.
func (s *Service) Unfreeze(ctx context.Context, id int64) (*SellOrder, error) {
	unlock := s.locks.Lock(orderKey(id))
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Frozen {
		return o, nil
	}
	o, err = s.store.SetFrozen(ctx, id, false)
	if err != nil {
		return nil, err
	}
	metrics.OrdersFrozen.Dec()
	return o, nil
}

func (s *Service) record(ctx context.Context, principal string, action audit.ActionType, amount string, orderID int64, details string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, principal, action, amount, strconv.FormatInt(orderID, 10), details); err != nil {
		logging.L(ctx).Error("audit record failed", "action", action, "error", err)
	}
}

func orderKey(id int64) string {
	return "order:" + strconv.FormatInt(id, 10)
}
