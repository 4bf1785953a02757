package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateAccount(ctx context.Context, acct *Account) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (principal, username, email, role, approval, kyc_verified, kyc_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		acct.Principal, acct.Username, acct.Email, string(acct.Role), string(acct.Approval),
		acct.KycVerified, acct.KycLevel, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAccountExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetAccount(ctx context.Context, principal string) (*Account, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT principal, username, email, role, approval, kyc_verified, kyc_level, created_at, updated_at
		FROM accounts WHERE principal = $1`, principal)
	return scanAccount(row)
}

func (p *PostgresStore) UpdateAccount(ctx context.Context, acct *Account) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE accounts
		SET username = $2, email = $3, role = $4, approval = $5, kyc_verified = $6, kyc_level = $7, updated_at = $8
		WHERE principal = $1`,
		acct.Principal, acct.Username, acct.Email, string(acct.Role), string(acct.Approval),
		acct.KycVerified, acct.KycLevel, acct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (p *PostgresStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT principal, username, email, role, approval, kyc_verified, kyc_level, created_at, updated_at
		FROM accounts ORDER BY principal`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateKey(ctx context.Context, key *APIKey) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, hash, principal, created_at, revoked)
		VALUES ($1, $2, $3, $4, $5)`,
		key.ID, key.Hash, key.Principal, key.CreatedAt, key.Revoked,
	)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	var key APIKey
	err := p.db.QueryRowContext(ctx, `
		SELECT id, hash, principal, created_at, revoked
		FROM api_keys WHERE hash = $1`, hash).
		Scan(&key.ID, &key.Hash, &key.Principal, &key.CreatedAt, &key.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		acct     Account
		role     string
		approval string
	)
	err := row.Scan(&acct.Principal, &acct.Username, &acct.Email, &role, &approval,
		&acct.KycVerified, &acct.KycLevel, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	acct.Role = Role(role)
	acct.Approval = ApprovalStatus(approval)
	return &acct, nil
}
