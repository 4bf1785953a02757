package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore is a Store backed by PostgreSQL. Lock versions live in an
// append-only table; the rate is a single-row setting with its last
// editor recorded.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed platform store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CurrentLock(ctx context.Context) (*LockState, error) {
	var l LockState
	err := p.db.QueryRowContext(ctx, `
		SELECT version, locked, changed_by, COALESCE(reason, ''), changed_at
		FROM withdrawal_lock_history
		ORDER BY version DESC LIMIT 1`).
		Scan(&l.Version, &l.Locked, &l.ChangedBy, &l.Reason, &l.ChangedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoLockState
	}
	if err != nil {
		return nil, fmt.Errorf("current lock: %w", err)
	}
	return &l, nil
}

func (p *PostgresStore) AppendLock(ctx context.Context, l *LockState) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO withdrawal_lock_history (version, locked, changed_by, reason, changed_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		l.Version, l.Locked, l.ChangedBy, l.Reason, l.ChangedAt)
	if err != nil {
		return fmt.Errorf("append lock: %w", err)
	}
	return nil
}

func (p *PostgresStore) LockHistory(ctx context.Context, limit int) ([]*LockState, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT version, locked, changed_by, COALESCE(reason, ''), changed_at
		FROM withdrawal_lock_history
		ORDER BY version DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("lock history: %w", err)
	}
	defer rows.Close()

	var out []*LockState
	for rows.Next() {
		var l LockState
		if err := rows.Scan(&l.Version, &l.Locked, &l.ChangedBy, &l.Reason, &l.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetRate(ctx context.Context) (float64, error) {
	var rate float64
	err := p.db.QueryRowContext(ctx,
		`SELECT rate FROM platform_rate WHERE id = 1`).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoRate
	}
	if err != nil {
		return 0, fmt.Errorf("get rate: %w", err)
	}
	return rate, nil
}

func (p *PostgresStore) SetRate(ctx context.Context, rate float64, changedBy string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO platform_rate (id, rate, changed_by, changed_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET rate = EXCLUDED.rate, changed_by = EXCLUDED.changed_by, changed_at = NOW()`,
		rate, changedBy)
	if err != nil {
		return fmt.Errorf("set rate: %w", err)
	}
	return nil
}
