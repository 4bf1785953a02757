// Package platform holds operator-level controls: the global withdrawal
// lock, the INR conversion rate, and profit reporting.
package platform

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/orders"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/usdt"
)

// Errors
var (
	ErrNoLockState = errors.New("platform: no lock state recorded")
	ErrNoRate      = errors.New("platform: no rate recorded")
	ErrInvalidRate = errors.New("platform: rate must be positive")
)

// LockState is one version of the platform-wide withdrawal lock. Every
// toggle appends a new version; the highest version is authoritative.
type LockState struct {
	Version   int64     `json:"version"`
	Locked    bool      `json:"locked"`
	ChangedBy string    `json:"changedBy"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}

// ProfitReport is the admin profit dashboard payload.
type ProfitReport struct {
	ProfitUSDT     string    `json:"profitUsdt"`
	ProfitINR      string    `json:"profitInr"`
	RateINR        float64   `json:"rateInr"`
	SpreadBPS      int       `json:"spreadBps"`
	ReleasedOrders int       `json:"releasedOrders"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// Store persists lock history and the platform rate.
type Store interface {
	CurrentLock(ctx context.Context) (*LockState, error)
	AppendLock(ctx context.Context, l *LockState) error
	LockHistory(ctx context.Context, limit int) ([]*LockState, error)
	GetRate(ctx context.Context) (float64, error)
	SetRate(ctx context.Context, rate float64, changedBy string) error
}

// ProfitSource exposes the platform profit wallet balance.
type ProfitSource interface {
	ProfitBalance(ctx context.Context) (string, error)
}

// OrderSource lists orders for reporting.
type OrderSource interface {
	List(ctx context.Context, f orders.Filter) ([]*orders.SellOrder, error)
}

// Service implements platform controls.
type Service struct {
	store       Store
	profits     ProfitSource
	orderSource OrderSource
	defaultRate float64
	spreadBPS   int
}

// NewService creates a platform service. defaultRate applies until an
// admin sets one explicitly.
func NewService(store Store, profits ProfitSource, orderSource OrderSource, defaultRate float64, spreadBPS int) *Service {
	return &Service{
		store:       store,
		profits:     profits,
		orderSource: orderSource,
		defaultRate: defaultRate,
		spreadBPS:   spreadBPS,
	}
}

// WithdrawalsLocked reports the current lock state. No recorded state
// means unlocked.
func (s *Service) WithdrawalsLocked(ctx context.Context) (bool, error) {
	l, err := s.store.CurrentLock(ctx)
	if errors.Is(err, ErrNoLockState) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return l.Locked, nil
}

// SetWithdrawalLock toggles the platform-wide withdrawal lock, appending
// a new version to the history. Setting the already-current state is a
// no-op and returns the existing version.
func (s *Service) SetWithdrawalLock(ctx context.Context, admin string, locked bool, reason string) (*LockState, error) {
	cur, err := s.store.CurrentLock(ctx)
	if err != nil && !errors.Is(err, ErrNoLockState) {
		return nil, err
	}
	version := int64(0)
	if cur != nil {
		if cur.Locked == locked {
			return cur, nil
		}
		version = cur.Version
	}

	next := &LockState{
		Version:   version + 1,
		Locked:    locked,
		ChangedBy: admin,
		Reason:    reason,
		ChangedAt: time.Now(),
	}
	if err := s.store.AppendLock(ctx, next); err != nil {
		return nil, err
	}
	logging.L(ctx).Info("withdrawal lock changed",
		"locked", locked, "version", next.Version, "by", admin, "reason", reason)
	return next, nil
}

// LockHistory returns the toggle history, newest first.
func (s *Service) LockHistory(ctx context.Context, limit int) ([]*LockState, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	return s.store.LockHistory(ctx, limit)
}

// Rate returns the current INR-per-USDT rate. Falls back to the
// configured default until an admin sets one.
func (s *Service) Rate(ctx context.Context) (float64, error) {
	rate, err := s.store.GetRate(ctx)
	if errors.Is(err, ErrNoRate) {
		return s.defaultRate, nil
	}
	if err != nil {
		return 0, err
	}
	return rate, nil
}

// SetRate updates the platform rate. Existing orders keep the rate they
// were created at; only new orders see the change.
func (s *Service) SetRate(ctx context.Context, admin string, rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	if err := s.store.SetRate(ctx, rate, admin); err != nil {
		return err
	}
	logging.L(ctx).Info("platform rate changed", "rate", rate, "by", admin)
	return nil
}

// ProfitDashboard summarizes accumulated spread in USDT and INR.
func (s *Service) ProfitDashboard(ctx context.Context) (*ProfitReport, error) {
	profitUSDT, err := s.profits.ProfitBalance(ctx)
	if err != nil {
		return nil, err
	}
	rate, err := s.Rate(ctx)
	if err != nil {
		return nil, err
	}

	released, err := s.orderSource.List(ctx, orders.Filter{Status: orders.StatusReleased})
	if err != nil {
		return nil, err
	}

	profitINR := decimal.RequireFromString(profitUSDT).
		Mul(decimal.NewFromFloat(rate)).
		Round(2)

	return &ProfitReport{
		ProfitUSDT:     profitUSDT,
		ProfitINR:      profitINR.StringFixed(2),
		RateINR:        rate,
		SpreadBPS:      s.spreadBPS,
		ReleasedOrders: len(released),
		GeneratedAt:    time.Now(),
	}, nil
}

// ExportOrdersCSV streams all released orders with their spread breakdown.
func (s *Service) ExportOrdersCSV(ctx context.Context, w io.Writer) error {
	released, err := s.orderSource.List(ctx, orders.Filter{Status: orders.StatusReleased})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"order_id", "seller", "buyer", "amount_usdt", "rate_inr",
		"inr_value", "net_usdt", "fee_usdt", "released_at",
	}); err != nil {
		return err
	}

	for _, o := range released {
		net, fee, ok := usdt.ApplySpread(o.Amount, s.spreadBPS)
		if !ok {
			continue
		}
		inr := decimal.RequireFromString(o.Amount).
			Mul(decimal.NewFromFloat(o.Rate)).
			Round(2)
		row := []string{
			strconv.FormatInt(o.ID, 10),
			o.Seller,
			o.Buyer,
			o.Amount,
			strconv.FormatFloat(o.Rate, 'f', 2, 64),
			inr.StringFixed(2),
			net,
			fee,
			o.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
