package disputes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed dispute store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO disputes (id, order_id, type, raised_by, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.OrderID, string(d.Type), d.RaisedBy, d.Reason, string(d.Status), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, order_id, type, raised_by, reason, status, COALESCE(resolution, ''), created_at, resolved_at, resolved_by
		FROM disputes WHERE id = $1`, id)
	d, err := scanDispute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return d, err
}

func (p *PostgresStore) Update(ctx context.Context, d *Dispute) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, resolution = NULLIF($3, ''), resolved_at = $4, resolved_by = NULLIF($5, '')
		WHERE id = $1`,
		d.ID, string(d.Status), d.Resolution, d.ResolvedAt, d.ResolvedBy)
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, orderID int64, status DisputeStatus) ([]*Dispute, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, order_id, type, raised_by, reason, status, COALESCE(resolution, ''), created_at, resolved_at, resolved_by
		FROM disputes
		WHERE ($1 = 0 OR order_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at`, orderID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	var out []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispute(row rowScanner) (*Dispute, error) {
	var (
		d          Dispute
		dtype      string
		status     string
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
	)
	err := row.Scan(&d.ID, &d.OrderID, &dtype, &d.RaisedBy, &d.Reason, &status,
		&d.Resolution, &d.CreatedAt, &resolvedAt, &resolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan dispute: %w", err)
	}
	d.Type = DisputeType(dtype)
	d.Status = DisputeStatus(status)
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	d.ResolvedBy = resolvedBy.String
	return &d, nil
}
