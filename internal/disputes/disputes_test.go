package disputes

import (
	"context"
	"errors"
	"testing"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/audit"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/orders"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/wallet"
)

type stubRates struct{}

func (stubRates) Rate(context.Context) (float64, error) { return 105, nil }

type noLock struct{}

func (noLock) WithdrawalsLocked(context.Context) (bool, error) { return false, nil }

type fixture struct {
	disputes *Service
	orders   *orders.Service
	wallets  *wallet.Service
	auditor  *audit.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auditor := audit.NewService(audit.NewMemoryStore())
	wallets := wallet.NewService(wallet.NewMemoryStore(), noLock{}, auditor, 150)
	orderSvc := orders.NewService(orders.NewMemoryStore(), wallets, stubRates{}, auditor)
	return &fixture{
		disputes: NewService(NewMemoryStore(), orderSvc, walletCtl{wallets}, auditor),
		orders:   orderSvc,
		wallets:  wallets,
		auditor:  auditor,
	}
}

// walletCtl adapts wallet.Service to the freeze surface.
type walletCtl struct{ w *wallet.Service }

func (a walletCtl) Freeze(ctx context.Context, p string) error   { return a.w.Freeze(ctx, p) }
func (a walletCtl) Unfreeze(ctx context.Context, p string) error { return a.w.Unfreeze(ctx, p) }

// openOrder funds the seller and walks an order to inr_paid.
func (f *fixture) openOrder(t *testing.T) *orders.SellOrder {
	t.Helper()
	ctx := context.Background()
	d, err := f.wallets.RequestDeposit(ctx, "seller", "100")
	if err != nil {
		t.Fatalf("RequestDeposit: %v", err)
	}
	if _, err := f.wallets.ConfirmDeposit(ctx, "admin", d.ID, true); err != nil {
		t.Fatalf("ConfirmDeposit: %v", err)
	}
	o, err := f.orders.Create(ctx, "seller", "60.000000", "seller@upi", "", "")
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}
	o, err = f.orders.ConfirmInrPayment(ctx, "buyer", o.ID)
	if err != nil {
		t.Fatalf("ConfirmInrPayment: %v", err)
	}
	return o
}

func TestRaiseFreezesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.openOrder(t)

	d, err := f.disputes.Raise(ctx, "buyer", o.ID, BuyerDispute, "no USDT received")
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if d.Status != DisputeOpen {
		t.Errorf("expected open, got %q", d.Status)
	}

	frozen, _ := f.orders.Get(ctx, o.ID)
	if !frozen.Frozen {
		t.Error("order not frozen after dispute")
	}

	// The frozen order rejects lifecycle progress
	if _, err := f.orders.Verify(ctx, o.ID); !errors.Is(err, orders.ErrOrderFrozen) {
		t.Errorf("verify on disputed order: %v", err)
	}

	// Dispute is on the audit trail
	events, _ := f.auditor.List(ctx, audit.Filter{Action: audit.ActionDisputeRaised})
	if len(events) != 1 {
		t.Errorf("expected 1 dispute audit event, got %d", len(events))
	}
}

func TestOnlyPartiesCanDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.openOrder(t)

	if _, err := f.disputes.Raise(ctx, "stranger", o.ID, BuyerDispute, ""); !errors.Is(err, ErrNotParty) {
		t.Errorf("stranger buyerDispute: %v", err)
	}
	if _, err := f.disputes.Raise(ctx, "buyer", o.ID, SellerDispute, ""); !errors.Is(err, ErrNotParty) {
		t.Errorf("buyer raising sellerDispute: %v", err)
	}
	if _, err := f.disputes.Raise(ctx, "seller", o.ID, SellerDispute, "INR never arrived"); err != nil {
		t.Errorf("seller sellerDispute: %v", err)
	}
}

func TestOneOpenDisputePerOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.openOrder(t)

	if _, err := f.disputes.Raise(ctx, "buyer", o.ID, BuyerDispute, ""); err != nil {
		t.Fatalf("first Raise: %v", err)
	}
	if _, err := f.disputes.Raise(ctx, "seller", o.ID, SellerDispute, ""); !errors.Is(err, ErrAlreadyDisputed) {
		t.Errorf("expected ErrAlreadyDisputed, got %v", err)
	}
}

func TestCannotDisputeSettledOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.openOrder(t)

	if _, err := f.orders.Verify(ctx, o.ID); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := f.orders.Release(ctx, o.ID, ""); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := f.disputes.Raise(ctx, "buyer", o.ID, BuyerDispute, ""); !errors.Is(err, ErrOrderTerminal) {
		t.Errorf("expected ErrOrderTerminal, got %v", err)
	}
}

func TestResolveUnfreezes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.openOrder(t)

	d, _ := f.disputes.Raise(ctx, "buyer", o.ID, BuyerDispute, "")

	resolved, err := f.disputes.Resolve(ctx, "admin", d.ID, "payment traced, resuming", true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != DisputeResolved || resolved.ResolvedBy != "admin" {
		t.Errorf("resolution not recorded: %+v", resolved)
	}

	// The order thaws and the lifecycle resumes
	thawed, _ := f.orders.Get(ctx, o.ID)
	if thawed.Frozen {
		t.Error("order still frozen after resolve")
	}
	if _, err := f.orders.Verify(ctx, o.ID); err != nil {
		t.Errorf("verify after resolve: %v", err)
	}

	// No double resolution
	if _, err := f.disputes.Resolve(ctx, "admin", d.ID, "again", false); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestResolveThenRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.openOrder(t)

	d, _ := f.disputes.Raise(ctx, "seller", o.ID, SellerDispute, "no INR")

	// Admin sides with the seller: resolve without unfreezing, refund the
	// frozen order directly
	if _, err := f.disputes.Resolve(ctx, "admin", d.ID, "no payment found", false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := f.orders.Refund(ctx, o.ID); err != nil {
		t.Fatalf("Refund: %v", err)
	}

	w, _ := f.wallets.Get(ctx, "seller")
	if w.Balance != "100.000000" {
		t.Errorf("seller not made whole: %s", w.Balance)
	}
}

func TestWalletFreezeControls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.disputes.FreezeWallet(ctx, "suspect"); err != nil {
		t.Fatalf("FreezeWallet: %v", err)
	}
	w, _ := f.wallets.Get(ctx, "suspect")
	if !w.Frozen {
		t.Error("wallet not frozen")
	}

	if err := f.disputes.UnfreezeWallet(ctx, "suspect"); err != nil {
		t.Fatalf("UnfreezeWallet: %v", err)
	}
	w, _ = f.wallets.Get(ctx, "suspect")
	if w.Frozen {
		t.Error("wallet still frozen")
	}
}
