package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore is a Store backed by PostgreSQL. Balance moves run in
// serializable transactions; non-negativity is additionally enforced by
// CHECK constraints on the wallets table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed wallet store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetWallet(ctx context.Context, principal string) (*Wallet, error) {
	var w Wallet
	err := p.db.QueryRowContext(ctx, `
		SELECT principal, balance::text, escrow::text, frozen, updated_at
		FROM wallets WHERE principal = $1`, principal).
		Scan(&w.Principal, &w.Balance, &w.Escrow, &w.Frozen, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}

// ensureWallet upserts a zero row so later UPDATEs have a target.
func ensureWallet(ctx context.Context, tx *sql.Tx, principal string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (principal, balance, escrow, frozen, updated_at)
		VALUES ($1, 0, 0, FALSE, NOW())
		ON CONFLICT (principal) DO NOTHING`, principal)
	return err
}

func (p *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) CreditBalance(ctx context.Context, principal, amount string) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureWallet(ctx, tx, principal); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE wallets SET balance = balance + $2::numeric, updated_at = NOW()
			WHERE principal = $1`, principal, amount)
		return err
	})
}

func (p *PostgresStore) DebitBalance(ctx context.Context, principal, amount string) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE wallets SET balance = balance - $2::numeric, updated_at = NOW()
			WHERE principal = $1 AND balance >= $2::numeric`, principal, amount)
		if err != nil {
			return mapBalanceErr(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrInsufficientBalance
		}
		return nil
	})
}

func (p *PostgresStore) LockEscrow(ctx context.Context, principal, amount string) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE wallets
			SET balance = balance - $2::numeric, escrow = escrow + $2::numeric, updated_at = NOW()
			WHERE principal = $1 AND balance >= $2::numeric`, principal, amount)
		if err != nil {
			return mapBalanceErr(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrInsufficientBalance
		}
		return nil
	})
}

func (p *PostgresStore) UnlockEscrow(ctx context.Context, principal, amount string) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE wallets
			SET escrow = escrow - $2::numeric, balance = balance + $2::numeric, updated_at = NOW()
			WHERE principal = $1 AND escrow >= $2::numeric`, principal, amount)
		if err != nil {
			return mapBalanceErr(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrInsufficientEscrow
		}
		return nil
	})
}

func (p *PostgresStore) SettleEscrow(ctx context.Context, seller, buyer, amount, net, fee string) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE wallets SET escrow = escrow - $2::numeric, updated_at = NOW()
			WHERE principal = $1 AND escrow >= $2::numeric`, seller, amount)
		if err != nil {
			return mapBalanceErr(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrInsufficientEscrow
		}

		if err := ensureWallet(ctx, tx, buyer); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE wallets SET balance = balance + $2::numeric, updated_at = NOW()
			WHERE principal = $1`, buyer, net); err != nil {
			return err
		}

		if err := ensureWallet(ctx, tx, PlatformPrincipal); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE wallets SET balance = balance + $2::numeric, updated_at = NOW()
			WHERE principal = $1`, PlatformPrincipal, fee)
		return err
	})
}

func (p *PostgresStore) SetFrozen(ctx context.Context, principal string, frozen bool) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureWallet(ctx, tx, principal); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE wallets SET frozen = $2, updated_at = NOW()
			WHERE principal = $1`, principal, frozen)
		return err
	})
}

func (p *PostgresStore) CreateDeposit(ctx context.Context, d *DepositRequest) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO deposit_requests (id, principal, amount, status, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5)`,
		d.ID, d.Principal, d.Amount, string(d.Status), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create deposit: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetDeposit(ctx context.Context, id string) (*DepositRequest, error) {
	var (
		d         DepositRequest
		status    string
		decidedAt sql.NullTime
		decidedBy sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, principal, amount::text, status, created_at, decided_at, decided_by
		FROM deposit_requests WHERE id = $1`, id).
		Scan(&d.ID, &d.Principal, &d.Amount, &status, &d.CreatedAt, &decidedAt, &decidedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deposit: %w", err)
	}
	d.Status = RequestStatus(status)
	if decidedAt.Valid {
		d.DecidedAt = &decidedAt.Time
	}
	d.DecidedBy = decidedBy.String
	return &d, nil
}

func (p *PostgresStore) UpdateDeposit(ctx context.Context, d *DepositRequest) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE deposit_requests SET status = $2, decided_at = $3, decided_by = NULLIF($4, '')
		WHERE id = $1`, d.ID, string(d.Status), d.DecidedAt, d.DecidedBy)
	if err != nil {
		return fmt.Errorf("update deposit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (p *PostgresStore) ListDeposits(ctx context.Context, principal string, status RequestStatus) ([]*DepositRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, principal, amount::text, status, created_at, decided_at, decided_by
		FROM deposit_requests
		WHERE ($1 = '' OR principal = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, principal, string(status))
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	defer rows.Close()

	var out []*DepositRequest
	for rows.Next() {
		var (
			d         DepositRequest
			st        string
			decidedAt sql.NullTime
			decidedBy sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Principal, &d.Amount, &st, &d.CreatedAt, &decidedAt, &decidedBy); err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		d.Status = RequestStatus(st)
		if decidedAt.Valid {
			d.DecidedAt = &decidedAt.Time
		}
		d.DecidedBy = decidedBy.String
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateWithdrawal(ctx context.Context, w *WithdrawalRequest) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO withdrawal_requests (id, principal, amount, upi_id, bank_account, ifsc, status, created_at)
		VALUES ($1, $2, $3::numeric, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)`,
		w.ID, w.Principal, w.Amount, w.UpiID, w.BankAccount, w.IFSC, string(w.Status), w.CreatedAt)
	if err != nil {
		return fmt.Errorf("create withdrawal: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetWithdrawal(ctx context.Context, id string) (*WithdrawalRequest, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, principal, amount::text, COALESCE(upi_id, ''), COALESCE(bank_account, ''), COALESCE(ifsc, ''),
		       status, created_at, decided_at, decided_by
		FROM withdrawal_requests WHERE id = $1`, id)
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	return w, err
}

func (p *PostgresStore) UpdateWithdrawal(ctx context.Context, w *WithdrawalRequest) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE withdrawal_requests SET status = $2, decided_at = $3, decided_by = NULLIF($4, '')
		WHERE id = $1`, w.ID, string(w.Status), w.DecidedAt, w.DecidedBy)
	if err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (p *PostgresStore) ListWithdrawals(ctx context.Context, principal string, status RequestStatus) ([]*WithdrawalRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, principal, amount::text, COALESCE(upi_id, ''), COALESCE(bank_account, ''), COALESCE(ifsc, ''),
		       status, created_at, decided_at, decided_by
		FROM withdrawal_requests
		WHERE ($1 = '' OR principal = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, principal, string(status))
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []*WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWithdrawal(row rowScanner) (*WithdrawalRequest, error) {
	var (
		w         WithdrawalRequest
		status    string
		decidedAt sql.NullTime
		decidedBy sql.NullString
	)
	err := row.Scan(&w.ID, &w.Principal, &w.Amount, &w.UpiID, &w.BankAccount, &w.IFSC,
		&status, &w.CreatedAt, &decidedAt, &decidedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan withdrawal: %w", err)
	}
	w.Status = RequestStatus(status)
	if decidedAt.Valid {
		w.DecidedAt = &decidedAt.Time
	}
	w.DecidedBy = decidedBy.String
	return &w, nil
}

// mapBalanceErr converts CHECK constraint violations into ledger errors.
func mapBalanceErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23514" {
		return ErrInsufficientBalance
	}
	return err
}
