package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/audit"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/usdt"
)

type stubLock struct{ locked bool }

func (s *stubLock) WithdrawalsLocked(context.Context) (bool, error) {
	return s.locked, nil
}

func newTestService(locked bool) (*Service, *audit.Service) {
	auditor := audit.NewService(audit.NewMemoryStore())
	svc := NewService(NewMemoryStore(), &stubLock{locked: locked}, auditor, 150)
	return svc, auditor
}

// fund credits a wallet through the full deposit flow.
func fund(t *testing.T, svc *Service, principal, amount string) {
	t.Helper()
	d, err := svc.RequestDeposit(context.Background(), principal, amount)
	if err != nil {
		t.Fatalf("RequestDeposit: %v", err)
	}
	if _, err := svc.ConfirmDeposit(context.Background(), "admin", d.ID, true); err != nil {
		t.Fatalf("ConfirmDeposit: %v", err)
	}
}

func TestDepositTwoPhase(t *testing.T) {
	svc, auditor := newTestService(false)
	ctx := context.Background()

	d, err := svc.RequestDeposit(ctx, "alice", "100")
	if err != nil {
		t.Fatalf("RequestDeposit: %v", err)
	}
	if d.Status != RequestPending {
		t.Errorf("expected pending, got %q", d.Status)
	}

	// Nothing credited until admin confirms
	w, _ := svc.Get(ctx, "alice")
	if usdt.ToFloat(w.Balance) != 0 {
		t.Errorf("balance credited before confirmation: %s", w.Balance)
	}

	if _, err := svc.ConfirmDeposit(ctx, "admin", d.ID, true); err != nil {
		t.Fatalf("ConfirmDeposit: %v", err)
	}
	w, _ = svc.Get(ctx, "alice")
	if usdt.ToFloat(w.Balance) != 100 {
		t.Errorf("expected balance 100, got %s", w.Balance)
	}

	// Retried approval cannot double-credit
	if _, err := svc.ConfirmDeposit(ctx, "admin", d.ID, true); !errors.Is(err, ErrAlreadyDecided) {
		t.Errorf("expected ErrAlreadyDecided, got %v", err)
	}
	w, _ = svc.Get(ctx, "alice")
	if usdt.ToFloat(w.Balance) != 100 {
		t.Errorf("double credit: %s", w.Balance)
	}

	// Confirmation left an audit trail
	events, _ := auditor.List(ctx, audit.Filter{Principal: "alice", Action: audit.ActionDeposit})
	if len(events) != 1 {
		t.Errorf("expected 1 deposit audit event, got %d", len(events))
	}
}

func TestDepositRejection(t *testing.T) {
	svc, _ := newTestService(false)
	ctx := context.Background()

	d, _ := svc.RequestDeposit(ctx, "bob", "50")
	if _, err := svc.ConfirmDeposit(ctx, "admin", d.ID, false); err != nil {
		t.Fatalf("reject: %v", err)
	}
	w, _ := svc.Get(ctx, "bob")
	if usdt.ToFloat(w.Balance) != 0 {
		t.Errorf("rejected deposit credited: %s", w.Balance)
	}
}

func TestWithdrawalBlockedByPlatformLock(t *testing.T) {
	svc, _ := newTestService(true)
	fund(t, svc, "alice", "100")

	_, err := svc.RequestWithdrawal(context.Background(), "alice", "10", "", "", "")
	if !errors.Is(err, ErrWithdrawalLocked) {
		t.Errorf("expected ErrWithdrawalLocked, got %v", err)
	}
}

func TestWithdrawalFlow(t *testing.T) {
	svc, _ := newTestService(false)
	ctx := context.Background()
	fund(t, svc, "alice", "100")

	// Over-balance request rejected up front
	if _, err := svc.RequestWithdrawal(ctx, "alice", "150", "", "", ""); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	req, err := svc.RequestWithdrawal(ctx, "alice", "40", "alice@upi", "", "")
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}

	// Request does not move funds
	w, _ := svc.Get(ctx, "alice")
	if usdt.ToFloat(w.Balance) != 100 {
		t.Errorf("balance moved before approval: %s", w.Balance)
	}

	if _, err := svc.ApproveWithdrawal(ctx, "admin", req.ID, true); err != nil {
		t.Fatalf("ApproveWithdrawal: %v", err)
	}
	w, _ = svc.Get(ctx, "alice")
	if usdt.ToFloat(w.Balance) != 60 {
		t.Errorf("expected 60 after withdrawal, got %s", w.Balance)
	}

	// Second approval attempt is rejected
	if _, err := svc.ApproveWithdrawal(ctx, "admin", req.ID, true); !errors.Is(err, ErrAlreadyDecided) {
		t.Errorf("expected ErrAlreadyDecided, got %v", err)
	}
}

func TestWithdrawalFromFrozenWallet(t *testing.T) {
	svc, _ := newTestService(false)
	ctx := context.Background()
	fund(t, svc, "alice", "100")

	if err := svc.Freeze(ctx, "alice"); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if _, err := svc.RequestWithdrawal(ctx, "alice", "10", "", "", ""); !errors.Is(err, ErrWalletFrozen) {
		t.Errorf("expected ErrWalletFrozen, got %v", err)
	}

	if err := svc.Unfreeze(ctx, "alice"); err != nil {
		t.Fatalf("Unfreeze: %v", err)
	}
	if _, err := svc.RequestWithdrawal(ctx, "alice", "10", "", "", ""); err != nil {
		t.Errorf("withdrawal after unfreeze: %v", err)
	}
}

func TestEscrowLifecycle(t *testing.T) {
	svc, _ := newTestService(false)
	ctx := context.Background()
	fund(t, svc, "seller", "100")

	if err := svc.EscrowLock(ctx, "seller", "60"); err != nil {
		t.Fatalf("EscrowLock: %v", err)
	}
	w, _ := svc.Get(ctx, "seller")
	if usdt.ToFloat(w.Balance) != 40 || usdt.ToFloat(w.Escrow) != 60 {
		t.Fatalf("after lock: balance=%s escrow=%s", w.Balance, w.Escrow)
	}

	// Cannot lock more than available
	if err := svc.EscrowLock(ctx, "seller", "50"); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	// Settlement: 150 bps spread on 60 = 0.9 fee, 59.1 to buyer
	net, fee, err := svc.ReleaseEscrow(ctx, "seller", "buyer", "60")
	if err != nil {
		t.Fatalf("ReleaseEscrow: %v", err)
	}
	if net != "59.100000" || fee != "0.900000" {
		t.Errorf("expected net 59.1 fee 0.9, got %s / %s", net, fee)
	}

	seller, _ := svc.Get(ctx, "seller")
	buyer, _ := svc.Get(ctx, "buyer")
	profit, _ := svc.ProfitBalance(ctx)
	if usdt.ToFloat(seller.Escrow) != 0 {
		t.Errorf("seller escrow not cleared: %s", seller.Escrow)
	}
	if usdt.ToFloat(buyer.Balance) != 59.1 {
		t.Errorf("buyer balance: %s", buyer.Balance)
	}
	if usdt.ToFloat(profit) != 0.9 {
		t.Errorf("profit wallet: %s", profit)
	}

	// Conservation: 40 + 59.1 + 0.9 == 100
	total := usdt.ToFloat(seller.Balance) + usdt.ToFloat(buyer.Balance) + usdt.ToFloat(profit)
	if total != 100 {
		t.Errorf("value not conserved: %v", total)
	}
}

func TestReleaseWithoutEscrowFails(t *testing.T) {
	svc, _ := newTestService(false)
	_, _, err := svc.ReleaseEscrow(context.Background(), "seller", "buyer", "10")
	if !errors.Is(err, ErrInsufficientEscrow) {
		t.Errorf("expected ErrInsufficientEscrow, got %v", err)
	}
}

func TestRefundEscrow(t *testing.T) {
	svc, _ := newTestService(false)
	ctx := context.Background()
	fund(t, svc, "seller", "100")

	if err := svc.EscrowLock(ctx, "seller", "30"); err != nil {
		t.Fatalf("EscrowLock: %v", err)
	}
	if err := svc.RefundEscrow(ctx, "seller", "30"); err != nil {
		t.Fatalf("RefundEscrow: %v", err)
	}

	w, _ := svc.Get(ctx, "seller")
	if usdt.ToFloat(w.Balance) != 100 || usdt.ToFloat(w.Escrow) != 0 {
		t.Errorf("after refund: balance=%s escrow=%s", w.Balance, w.Escrow)
	}

	// Refunding again fails: the escrow is gone
	if err := svc.RefundEscrow(ctx, "seller", "30"); !errors.Is(err, ErrInsufficientEscrow) {
		t.Errorf("expected ErrInsufficientEscrow, got %v", err)
	}
}

func TestInvalidAmounts(t *testing.T) {
	svc, _ := newTestService(false)
	ctx := context.Background()

	for _, bad := range []string{"", "-5", "0", "abc", "1.1234567"} {
		if _, err := svc.RequestDeposit(ctx, "alice", bad); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %q: expected ErrInvalidAmount, got %v", bad, err)
		}
	}
}

func TestGetUnknownWalletIsZero(t *testing.T) {
	svc, _ := newTestService(false)
	w, err := svc.Get(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if usdt.ToFloat(w.Balance) != 0 || usdt.ToFloat(w.Escrow) != 0 || w.Frozen {
		t.Errorf("unexpected zero wallet: %+v", w)
	}
}
