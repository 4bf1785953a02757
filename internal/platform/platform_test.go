package platform

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/audit"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/orders"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/wallet"
)

type fixture struct {
	platform *Service
	orders   *orders.Service
	wallets  *wallet.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auditor := audit.NewService(audit.NewMemoryStore())
	f := &fixture{}
	f.wallets = wallet.NewService(wallet.NewMemoryStore(), lazyLock{&f.platform}, auditor, 150)
	f.platform = NewService(NewMemoryStore(), f.wallets, lazyOrders{&f.orders}, 105, 150)
	f.orders = orders.NewService(orders.NewMemoryStore(), f.wallets, f.platform, auditor)
	return f
}

// lazyLock and lazyOrders break the construction cycle between the
// wallet, platform, and order services.
type lazyLock struct{ p **Service }

func (l lazyLock) WithdrawalsLocked(ctx context.Context) (bool, error) {
	return (*l.p).WithdrawalsLocked(ctx)
}

type lazyOrders struct{ o **orders.Service }

func (l lazyOrders) List(ctx context.Context, f orders.Filter) ([]*orders.SellOrder, error) {
	return (*l.o).List(ctx, f)
}

func (f *fixture) settleOrder(t *testing.T, amount string) {
	t.Helper()
	ctx := context.Background()
	d, err := f.wallets.RequestDeposit(ctx, "seller", "1000")
	if err != nil {
		t.Fatalf("RequestDeposit: %v", err)
	}
	if _, err := f.wallets.ConfirmDeposit(ctx, "admin", d.ID, true); err != nil {
		t.Fatalf("ConfirmDeposit: %v", err)
	}
	o, err := f.orders.Create(ctx, "seller", amount, "seller@upi", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.orders.ConfirmInrPayment(ctx, "buyer", o.ID); err != nil {
		t.Fatalf("ConfirmInrPayment: %v", err)
	}
	if _, err := f.orders.Verify(ctx, o.ID); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := f.orders.Release(ctx, o.ID, ""); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestWithdrawalLockVersioning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Default: unlocked
	locked, err := f.platform.WithdrawalsLocked(ctx)
	if err != nil || locked {
		t.Fatalf("expected unlocked default, got %v err=%v", locked, err)
	}

	l1, err := f.platform.SetWithdrawalLock(ctx, "admin", true, "audit in progress")
	if err != nil {
		t.Fatalf("SetWithdrawalLock: %v", err)
	}
	if l1.Version != 1 || !l1.Locked {
		t.Errorf("first toggle: %+v", l1)
	}

	// Re-locking is a no-op, not a new version
	same, err := f.platform.SetWithdrawalLock(ctx, "admin", true, "again")
	if err != nil {
		t.Fatalf("redundant toggle: %v", err)
	}
	if same.Version != 1 {
		t.Errorf("redundant toggle bumped version: %d", same.Version)
	}

	l2, _ := f.platform.SetWithdrawalLock(ctx, "admin", false, "audit done")
	if l2.Version != 2 || l2.Locked {
		t.Errorf("second toggle: %+v", l2)
	}

	history, err := f.platform.LockHistory(ctx, 10)
	if err != nil {
		t.Fatalf("LockHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Version != 2 || history[1].Version != 1 {
		t.Errorf("history not newest-first: %d, %d", history[0].Version, history[1].Version)
	}
}

func TestLockBlocksWithdrawals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, _ := f.wallets.RequestDeposit(ctx, "alice", "100")
	_, _ = f.wallets.ConfirmDeposit(ctx, "admin", d.ID, true)

	if _, err := f.platform.SetWithdrawalLock(ctx, "admin", true, ""); err != nil {
		t.Fatalf("SetWithdrawalLock: %v", err)
	}
	if _, err := f.wallets.RequestWithdrawal(ctx, "alice", "10", "", "", ""); err != wallet.ErrWithdrawalLocked {
		t.Errorf("expected ErrWithdrawalLocked, got %v", err)
	}

	if _, err := f.platform.SetWithdrawalLock(ctx, "admin", false, ""); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := f.wallets.RequestWithdrawal(ctx, "alice", "10", "", "", ""); err != nil {
		t.Errorf("withdrawal after unlock: %v", err)
	}
}

func TestRateDefaultAndOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rate, err := f.platform.Rate(ctx)
	if err != nil || rate != 105 {
		t.Fatalf("default rate: %v err=%v", rate, err)
	}

	if err := f.platform.SetRate(ctx, "admin", 0); err != ErrInvalidRate {
		t.Errorf("zero rate accepted: %v", err)
	}
	if err := f.platform.SetRate(ctx, "admin", 110.5); err != nil {
		t.Fatalf("SetRate: %v", err)
	}
	rate, _ = f.platform.Rate(ctx)
	if rate != 110.5 {
		t.Errorf("rate not updated: %v", rate)
	}
}

func TestProfitDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.settleOrder(t, "60.000000")

	report, err := f.platform.ProfitDashboard(ctx)
	if err != nil {
		t.Fatalf("ProfitDashboard: %v", err)
	}
	// 150 bps of 60 = 0.9 USDT; at 105 INR/USDT that's 94.50 INR
	if report.ProfitUSDT != "0.900000" {
		t.Errorf("profit USDT: %s", report.ProfitUSDT)
	}
	if report.ProfitINR != "94.50" {
		t.Errorf("profit INR: %s", report.ProfitINR)
	}
	if report.RateINR != 105 || report.SpreadBPS != 150 {
		t.Errorf("rate/spread: %v / %d", report.RateINR, report.SpreadBPS)
	}
	if report.ReleasedOrders != 1 {
		t.Errorf("released count: %d", report.ReleasedOrders)
	}
}

func TestExportOrdersCSV(t *testing.T) {
	f := newFixture(t)
	f.settleOrder(t, "60.000000")

	var buf bytes.Buffer
	if err := f.platform.ExportOrdersCSV(context.Background(), &buf); err != nil {
		t.Fatalf("ExportOrdersCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "order_id,seller,buyer") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	row := lines[1]
	for _, want := range []string{"seller", "buyer", "60.000000", "6300.00", "59.100000", "0.900000"} {
		if !strings.Contains(row, want) {
			t.Errorf("row missing %q: %s", want, row)
		}
	}
}
