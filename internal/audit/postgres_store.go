package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore is a Store backed by PostgreSQL. The audit_events table is
// insert-only; there are no UPDATE or DELETE paths.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, e *Event) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, principal, action, amount, order_id, details, ts, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)`,
		e.ID, e.Principal, string(e.Action), e.Amount, e.OrderID, e.Details, e.Timestamp, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, f Filter) ([]*Event, error) {
	// The inner query picks the most recent matches; the outer one puts
	// them back in insertion order.
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, principal, action, amount, order_id, details, ts, created_at FROM (
			SELECT id, principal, action, COALESCE(amount::text, '') AS amount,
			       COALESCE(order_id, '') AS order_id, details, ts, created_at
			FROM audit_events
			WHERE ($1 = '' OR principal = $1)
			  AND ($2 = '' OR action = $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC, id ASC`,
		f.Principal, string(f.Action), f.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var (
			e      Event
			action string
		)
		if err := rows.Scan(&e.ID, &e.Principal, &action, &e.Amount, &e.OrderID, &e.Details, &e.Timestamp, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = ActionType(action)
		out = append(out, &e)
	}
	return out, rows.Err()
}
