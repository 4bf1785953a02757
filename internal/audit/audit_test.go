package audit

import (
	"context"
	"testing"
)

func TestRecordAndList(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	if err := svc.Record(ctx, "alice", ActionDeposit, "100.000000", "", ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := svc.Record(ctx, "alice", ActionOrderPlacement, "50.000000", "1", ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := svc.Record(ctx, "bob", ActionDisputeRaised, "", "1", "buyer dispute"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	events, err := svc.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	// Insertion order: the trail reads chronologically
	for i, want := range []string{"alice", "alice", "bob"} {
		if events[i].Principal != want {
			t.Errorf("event %d: expected %q, got %q", i, want, events[i].Principal)
		}
	}
	for _, e := range events {
		if e.ID == "" || e.CreatedAt.IsZero() || e.Timestamp <= 0 {
			t.Errorf("event missing ID or timestamp: %+v", e)
		}
	}
}

func TestLimitKeepsMostRecent(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	_ = svc.Record(ctx, "alice", ActionDeposit, "1.000000", "", "first")
	_ = svc.Record(ctx, "alice", ActionDeposit, "2.000000", "", "second")
	_ = svc.Record(ctx, "alice", ActionDeposit, "3.000000", "", "third")

	events, err := svc.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// The cap drops the oldest entries; the survivors stay chronological
	if events[0].Details != "second" || events[1].Details != "third" {
		t.Errorf("expected [second third], got [%s %s]", events[0].Details, events[1].Details)
	}
}

func TestCallerSuppliedTimestamp(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	const ts = int64(1700000000000000000)
	if err := svc.RecordAt(ctx, "alice", ActionDeposit, "1.000000", "", "", ts); err != nil {
		t.Fatalf("RecordAt: %v", err)
	}
	// Zero falls back to the server clock
	if err := svc.RecordAt(ctx, "alice", ActionWithdrawal, "1.000000", "", "", 0); err != nil {
		t.Fatalf("RecordAt: %v", err)
	}

	events, err := svc.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Timestamp != ts {
		t.Errorf("caller timestamp not kept: %d", events[0].Timestamp)
	}
	if events[1].Timestamp <= 0 {
		t.Errorf("fallback timestamp missing: %d", events[1].Timestamp)
	}
}

func TestListFilters(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	_ = svc.Record(ctx, "alice", ActionDeposit, "1.000000", "", "")
	_ = svc.Record(ctx, "alice", ActionWithdrawal, "1.000000", "", "")
	_ = svc.Record(ctx, "bob", ActionDeposit, "2.000000", "", "")

	byPrincipal, _ := svc.List(ctx, Filter{Principal: "alice"})
	if len(byPrincipal) != 2 {
		t.Errorf("principal filter: expected 2, got %d", len(byPrincipal))
	}

	byAction, _ := svc.List(ctx, Filter{Action: ActionDeposit})
	if len(byAction) != 2 {
		t.Errorf("action filter: expected 2, got %d", len(byAction))
	}

	both, _ := svc.List(ctx, Filter{Principal: "alice", Action: ActionDeposit})
	if len(both) != 1 {
		t.Errorf("combined filter: expected 1, got %d", len(both))
	}

	limited, _ := svc.List(ctx, Filter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit: expected 1, got %d", len(limited))
	}
}

func TestRejectsUnknownAction(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	if err := svc.Record(ctx, "alice", ActionType("transmogrify"), "", "", ""); err != ErrInvalidAction {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
	if _, err := svc.List(ctx, Filter{Action: ActionType("nope")}); err != ErrInvalidAction {
		t.Errorf("expected ErrInvalidAction on list, got %v", err)
	}
}
