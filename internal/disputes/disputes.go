// Package disputes handles trade disputes: raising them, freezing the
// disputed order and wallets, and recording admin resolution.
//
// A dispute freezes its order immediately. The frozen order can then only
// be refunded, or unfrozen once the dispute is resolved; fund movement
// itself stays in the order lifecycle.
package disputes

import (
	"context"
	"errors"
	"time"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/audit"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/idgen"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/metrics"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/orders"
)

// Errors
var (
	ErrDisputeNotFound = errors.New("disputes: not found")
	ErrNotParty        = errors.New("disputes: caller is not a party to the order")
	ErrAlreadyDisputed = errors.New("disputes: order already has an open dispute")
	ErrAlreadyResolved = errors.New("disputes: dispute already resolved")
	ErrOrderTerminal   = errors.New("disputes: order already settled")
	ErrInvalidType     = errors.New("disputes: invalid dispute type")
)

// DisputeType identifies which side raised the dispute.
type DisputeType string

const (
	BuyerDispute  DisputeType = "buyerDispute"  // buyer paid INR but no USDT arrived
	SellerDispute DisputeType = "sellerDispute" // seller claims the INR never came
)

// Valid reports whether the dispute type is a known value.
func (d DisputeType) Valid() bool {
	return d == BuyerDispute || d == SellerDispute
}

// DisputeStatus is a dispute's lifecycle state.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

// Dispute is one raised trade dispute.
type Dispute struct {
	ID         string        `json:"id"`
	OrderID    int64         `json:"orderId"`
	Type       DisputeType   `json:"type"`
	RaisedBy   string        `json:"raisedBy"`
	Reason     string        `json:"reason"`
	Status     DisputeStatus `json:"status"`
	Resolution string        `json:"resolution,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	ResolvedAt *time.Time    `json:"resolvedAt,omitempty"`
	ResolvedBy string        `json:"resolvedBy,omitempty"`
}

// Store persists disputes.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
	List(ctx context.Context, orderID int64, status DisputeStatus) ([]*Dispute, error)
}

// OrderControl is the slice of the order lifecycle the dispute flow needs.
type OrderControl interface {
	Get(ctx context.Context, id int64) (*orders.SellOrder, error)
	Freeze(ctx context.Context, id int64) (*orders.SellOrder, error)
	Unfreeze(ctx context.Context, id int64) (*orders.SellOrder, error)
}

// WalletControl freezes and unfreezes wallets during investigations.
type WalletControl interface {
	Freeze(ctx context.Context, principal string) error
	Unfreeze(ctx context.Context, principal string) error
}

// Service implements the dispute flow.
type Service struct {
	store   Store
	orders  OrderControl
	wallets WalletControl
	auditor *audit.Service
}

// NewService creates a dispute service.
func NewService(store Store, orderCtl OrderControl, walletCtl WalletControl, auditor *audit.Service) *Service {
	return &Service{store: store, orders: orderCtl, wallets: walletCtl, auditor: auditor}
}

// Raise opens a dispute on an order and freezes it. The caller must be
// the order's buyer for a buyerDispute or its seller for a sellerDispute.
func (s *Service) Raise(ctx context.Context, caller string, orderID int64, dtype DisputeType, reason string) (*Dispute, error) {
	if !dtype.Valid() {
		return nil, ErrInvalidType
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, ErrOrderTerminal
	}

	switch dtype {
	case BuyerDispute:
		if o.Buyer == "" || o.Buyer != caller {
			return nil, ErrNotParty
		}
	case SellerDispute:
		if o.Seller != caller {
			return nil, ErrNotParty
		}
	}

	open, err := s.store.List(ctx, orderID, DisputeOpen)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, ErrAlreadyDisputed
	}

	d := &Dispute{
		ID:        idgen.WithPrefix("dsp_"),
		OrderID:   orderID,
		Type:      dtype,
		RaisedBy:  caller,
		Reason:    reason,
		Status:    DisputeOpen,
		CreatedAt: time.Now(),
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}

	if _, err := s.orders.Freeze(ctx, orderID); err != nil {
		logging.L(ctx).Error("freeze on dispute failed", "order", orderID, "error", err)
		return nil, err
	}

	metrics.DisputesRaisedTotal.WithLabelValues(string(dtype)).Inc()
	if s.auditor != nil {
		if err := s.auditor.Record(ctx, caller, audit.ActionDisputeRaised, o.Amount, d.ID, reason); err != nil {
			logging.L(ctx).Error("audit record failed", "dispute", d.ID, "error", err)
		}
	}
	logging.L(ctx).Info("dispute raised", "dispute", d.ID, "order", orderID, "type", dtype, "by", caller)
	return d, nil
}

// Get returns one dispute.
func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.store.Get(ctx, id)
}

// ListOpen returns all open disputes for the admin console.
func (s *Service) ListOpen(ctx context.Context) ([]*Dispute, error) {
	return s.store.List(ctx, 0, DisputeOpen)
}

// ListForOrder returns every dispute raised against an order.
func (s *Service) ListForOrder(ctx context.Context, orderID int64) ([]*Dispute, error) {
	return s.store.List(ctx, orderID, "")
}

// Resolve closes a dispute with the admin's resolution note and, when
// unfreeze is set, lifts the order freeze so the lifecycle can resume.
// The admin settles funds separately through refund or release.
func (s *Service) Resolve(ctx context.Context, admin, id, resolution string, unfreeze bool) (*Dispute, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != DisputeOpen {
		return nil, ErrAlreadyResolved
	}

	now := time.Now()
	d.Status = DisputeResolved
	d.Resolution = resolution
	d.ResolvedAt = &now
	d.ResolvedBy = admin
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}

	if unfreeze {
		if _, err := s.orders.Unfreeze(ctx, d.OrderID); err != nil && !errors.Is(err, orders.ErrOrderNotFound) {
			logging.L(ctx).Error("unfreeze on resolve failed", "order", d.OrderID, "error", err)
		}
	}
	logging.L(ctx).Info("dispute resolved", "dispute", id, "by", admin, "unfreeze", unfreeze)
	return d, nil
}

// FreezeWallet blocks a principal's wallet during an investigation.
func (s *Service) FreezeWallet(ctx context.Context, principal string) error {
	return s.wallets.Freeze(ctx, principal)
}

// UnfreezeWallet lifts a wallet freeze.
func (s *Service) UnfreezeWallet(ctx context.Context, principal string) error {
	return s.wallets.Unfreeze(ctx, principal)
}
