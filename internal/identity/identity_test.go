package identity

import (
	"context"
	"strings"
	"testing"
)

func newTestService() *Service {
	return NewService(NewMemoryStore())
}

func TestSaveProfileIssuesKeyOnce(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	key, acct, err := svc.SaveProfile(ctx, "Alice", "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if !strings.HasPrefix(key, "pk_") {
		t.Errorf("expected pk_ key, got %q", key)
	}
	if acct.Principal != "alice" {
		t.Errorf("expected normalized principal, got %q", acct.Principal)
	}
	if acct.Role != RoleUser {
		t.Errorf("expected assigned role user, got %q", acct.Role)
	}

	// Second save updates, no new key
	key2, acct2, err := svc.SaveProfile(ctx, "alice", "alice2", "a2@example.com")
	if err != nil {
		t.Fatalf("second SaveProfile: %v", err)
	}
	if key2 != "" {
		t.Errorf("expected no key on update, got %q", key2)
	}
	if acct2.Username != "alice2" {
		t.Errorf("username not updated: %q", acct2.Username)
	}
}

func TestValidateKey(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	key, _, err := svc.SaveProfile(ctx, "bob", "bob", "")
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	acct, err := svc.ValidateKey(ctx, key)
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}
	if acct.Principal != "bob" {
		t.Errorf("wrong principal: %q", acct.Principal)
	}

	// Bearer prefix accepted
	if _, err := svc.ValidateKey(ctx, "Bearer "+key); err != nil {
		t.Errorf("ValidateKey with Bearer prefix: %v", err)
	}

	if _, err := svc.ValidateKey(ctx, "pk_bogus"); err == nil {
		t.Error("expected error for bogus key")
	}
	if _, err := svc.ValidateKey(ctx, ""); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestRoleHierarchy(t *testing.T) {
	if !RoleAdmin.AtLeast(RoleUser) {
		t.Error("admin should satisfy user")
	}
	if !RoleAdmin.AtLeast(RoleAdmin) {
		t.Error("admin should satisfy admin")
	}
	if RoleUser.AtLeast(RoleAdmin) {
		t.Error("user should not satisfy admin")
	}
	if RoleGuest.AtLeast(RoleUser) {
		t.Error("guest should not satisfy user")
	}
}

func TestRoleOfDerivation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// Unknown principal is a guest
	role, err := svc.RoleOf(ctx, "nobody")
	if err != nil || role != RoleGuest {
		t.Fatalf("expected guest for unknown principal, got %q err=%v", role, err)
	}

	// Registered but unapproved principal is still a guest
	if _, _, err := svc.SaveProfile(ctx, "carol", "carol", ""); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	role, _ = svc.RoleOf(ctx, "carol")
	if role != RoleGuest {
		t.Errorf("expected guest pre-approval, got %q", role)
	}

	// Approval unlocks the assigned role
	if _, err := svc.EnsureAdmin(ctx, "admin"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if err := svc.SetApproval(ctx, "admin", "carol", ApprovalApproved); err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	role, _ = svc.RoleOf(ctx, "carol")
	if role != RoleUser {
		t.Errorf("expected user post-approval, got %q", role)
	}

	// Rejection revokes access
	if err := svc.SetApproval(ctx, "admin", "carol", ApprovalRejected); err != nil {
		t.Fatalf("SetApproval reject: %v", err)
	}
	role, _ = svc.RoleOf(ctx, "carol")
	if role != RoleGuest {
		t.Errorf("expected guest post-rejection, got %q", role)
	}
}

func TestRequestApprovalIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, _, err := svc.SaveProfile(ctx, "dave", "dave", ""); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := svc.RequestApproval(ctx, "dave"); err != nil {
			t.Fatalf("RequestApproval #%d: %v", i, err)
		}
	}
	acct, _ := svc.GetProfile(ctx, "dave")
	if acct.Approval != ApprovalPending {
		t.Errorf("expected pending, got %q", acct.Approval)
	}

	// Approval survives further requests
	if _, err := svc.EnsureAdmin(ctx, "admin"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if err := svc.SetApproval(ctx, "admin", "dave", ApprovalApproved); err != nil {
		t.Fatalf("SetApproval: %v", err)
	}
	if err := svc.RequestApproval(ctx, "dave"); err != nil {
		t.Fatalf("RequestApproval after approve: %v", err)
	}
	acct, _ = svc.GetProfile(ctx, "dave")
	if acct.Approval != ApprovalApproved {
		t.Errorf("approval downgraded by re-request: %q", acct.Approval)
	}
}

func TestAdminGateOnMutations(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, _, err := svc.SaveProfile(ctx, "eve", "eve", ""); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if _, _, err := svc.SaveProfile(ctx, "mallory", "mallory", ""); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	if err := svc.SetApproval(ctx, "mallory", "eve", ApprovalApproved); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.AssignRole(ctx, "mallory", "eve", RoleAdmin); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.ListApprovals(ctx, "mallory"); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestEnsureAdminBootstrapKey(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	key, err := svc.EnsureAdmin(ctx, "admin")
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if !strings.HasPrefix(key, "pk_") {
		t.Fatalf("expected bootstrap key, got %q", key)
	}
	acct, err := svc.ValidateKey(ctx, key)
	if err != nil {
		t.Fatalf("ValidateKey: %v", err)
	}
	if acct.Role != RoleAdmin {
		t.Errorf("expected admin role, got %q", acct.Role)
	}

	// Second boot: account exists, no new key
	key2, err := svc.EnsureAdmin(ctx, "admin")
	if err != nil || key2 != "" {
		t.Errorf("expected no key on re-run, got %q err=%v", key2, err)
	}
}

func TestEnsureAdminPromotesExisting(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, _, err := svc.SaveProfile(ctx, "root", "root", ""); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	key, err := svc.EnsureAdmin(ctx, "root")
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if key != "" {
		t.Errorf("promotion should not issue a key, got %q", key)
	}
	role, _ := svc.RoleOf(ctx, "root")
	if role != RoleAdmin {
		t.Errorf("expected admin, got %q", role)
	}
}
