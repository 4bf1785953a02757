// Package audit maintains the append-only action trail.
//
// Every balance-affecting or lifecycle-affecting operation records an
// event here. Events are never updated or deleted.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/idgen"
)

var (
	ErrInvalidAction = errors.New("audit: invalid action type")
	ErrUnauthorized  = errors.New("audit: not authorized")
)

// ActionType classifies an audit event.
type ActionType string

const (
	ActionDeposit         ActionType = "deposit"
	ActionOrderPlacement  ActionType = "orderPlacement"
	ActionWithdrawal      ActionType = "withdrawal"
	ActionOrderCompletion ActionType = "orderCompletion"
	ActionDisputeRaised   ActionType = "disputeRaised"
)

// Valid reports whether the action type is a known value.
func (a ActionType) Valid() bool {
	switch a {
	case ActionDeposit, ActionOrderPlacement, ActionWithdrawal,
		ActionOrderCompletion, ActionDisputeRaised:
		return true
	}
	return false
}

// Event is one immutable audit record.
type Event struct {
	ID        string     `json:"id"`
	Principal string     `json:"principal"`
	Action    ActionType `json:"action"`
	Amount    string     `json:"amount,omitempty"`  // USDT decimal string, if applicable
	OrderID   string     `json:"orderId,omitempty"` // related order, if applicable
	Details   string     `json:"details,omitempty"`
	Timestamp int64      `json:"timestamp"` // nanoseconds; caller-supplied on self-reports
	CreatedAt time.Time  `json:"createdAt"`
}

// Filter narrows a trail listing.
type Filter struct {
	Principal string
	Action    ActionType
	Limit     int
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, e *Event) error
	List(ctx context.Context, f Filter) ([]*Event, error)
}

// Service records and queries the audit trail.
type Service struct {
	store Store
}

// NewService creates a new audit service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Record appends one event stamped with the server clock. ID and
// timestamp are assigned here so callers only provide the facts.
func (s *Service) Record(ctx context.Context, principal string, action ActionType, amount, orderID, details string) error {
	return s.RecordAt(ctx, principal, action, amount, orderID, details, time.Now().UnixNano())
}

// RecordAt appends one event with a caller-supplied nanosecond timestamp,
// as on the self-reporting endpoint. Zero or negative falls back to the
// server clock.
func (s *Service) RecordAt(ctx context.Context, principal string, action ActionType, amount, orderID, details string, ts int64) error {
	if !action.Valid() {
		return ErrInvalidAction
	}
	if ts <= 0 {
		ts = time.Now().UnixNano()
	}
	return s.store.Append(ctx, &Event{
		ID:        idgen.WithPrefix("evt_"),
		Principal: principal,
		Action:    action,
		Amount:    amount,
		OrderID:   orderID,
		Details:   details,
		Timestamp: ts,
		CreatedAt: time.Now(),
	})
}

// List returns events in insertion order, oldest first. The limit keeps
// the most recent matches, so a capped listing is the tail of the trail.
func (s *Service) List(ctx context.Context, f Filter) ([]*Event, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Action != "" && !f.Action.Valid() {
		return nil, ErrInvalidAction
	}
	return s.store.List(ctx, f)
}
