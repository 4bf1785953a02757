package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PostgresStore is a Store backed by PostgreSQL. The CAS in UpdateStatus
// is a single conditional UPDATE, so concurrent transitions on one order
// serialize at the row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed order store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `id, seller, COALESCE(buyer, ''), amount::text, rate,
	COALESCE(upi_id, ''), COALESCE(bank_account, ''), COALESCE(ifsc, ''),
	status, frozen, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, o *SellOrder) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO sell_orders (seller, buyer, amount, rate, upi_id, bank_account, ifsc, status, frozen, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3::numeric, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11)
		RETURNING id`,
		o.Seller, o.Buyer, o.Amount, o.Rate, o.UpiID, o.BankAccount, o.IFSC,
		string(o.Status), o.Frozen, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id int64) (*SellOrder, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM sell_orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (p *PostgresStore) List(ctx context.Context, f Filter) ([]*SellOrder, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Seller != "" {
		add("seller = $%d", f.Seller)
	}
	if f.Buyer != "" {
		add("buyer = $%d", f.Buyer)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.OpenOnly {
		conds = append(conds, "status NOT IN ('released', 'refunded')", "frozen = FALSE")
	}

	q := `SELECT ` + orderColumns + ` FROM sell_orders`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY id"

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*SellOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id int64, expected, next Status, buyer string) (*SellOrder, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE sell_orders
		SET status = $3, buyer = COALESCE(NULLIF($4, ''), buyer), updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns,
		id, string(expected), string(next), buyer)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Row missing or CAS miss; disambiguate for the caller
		if _, getErr := p.Get(ctx, id); errors.Is(getErr, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, ErrInvalidState
	}
	return o, err
}

func (p *PostgresStore) SetFrozen(ctx context.Context, id int64, frozen bool) (*SellOrder, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE sell_orders SET frozen = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+orderColumns, id, frozen)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*SellOrder, error) {
	var (
		o      SellOrder
		status string
	)
	err := row.Scan(&o.ID, &o.Seller, &o.Buyer, &o.Amount, &o.Rate,
		&o.UpiID, &o.BankAccount, &o.IFSC,
		&status, &o.Frozen, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Status = Status(status)
	return &o, nil
}
