package store

import (
	"context"
	"time"

	"blertbank/internal/models"
)

const (
	UserAccountPerOwnerIndex      = "uix_accounts_user_per_owner"
	LiabilityAccountPerOwnerIndex = "uix_accounts_liability_per_owner"
	SystemAccountNameKey          = "system_accounts_pkey"
)

const accountSelect = `
	SELECT a.id, a.owner_user_id, a.kind, b.balance, a.created_at, b.updated_at
	FROM accounts a
	JOIN account_balances b ON b.account_id = a.id
`

type AccountStore struct {
	db DB
}

type BalanceMismatch struct {
	AccountID     int64              `db:"account_id" json:"accountId"`
	Kind          models.AccountKind `db:"kind" json:"kind"`
	StoredBalance int64              `db:"stored_balance" json:"storedBalance"`
	EntrySum      int64              `db:"entry_sum" json:"entrySum"`
	Difference    int64              `db:"difference" json:"difference"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) getter(q Getter) Getter {
	if q == nil {
		return s.db
	}
	return q
}

// Create inserts an account together with its zero balance row.
func (s *AccountStore) Create(ctx context.Context, tx Tx, ownerUserID *int64, kind models.AccountKind) (models.Account, error) {
	var inserted struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := tx.GetContext(ctx, &inserted, `
		INSERT INTO accounts (owner_user_id, kind)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, ownerUserID, kind)
	if err != nil {
		return models.Account{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO account_balances (account_id, balance, updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT DO NOTHING
	`, inserted.ID, inserted.CreatedAt); err != nil {
		return models.Account{}, err
	}
	return models.Account{
		ID:          inserted.ID,
		OwnerUserID: ownerUserID,
		Kind:        kind,
		Balance:     0,
		CreatedAt:   inserted.CreatedAt,
		UpdatedAt:   inserted.CreatedAt,
	}, nil
}

func (s *AccountStore) RegisterSystemAccount(ctx context.Context, tx Execer, name string, accountID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO system_accounts (name, account_id)
		VALUES ($1, $2)
	`, name, accountID)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, q Getter, accountID int64) (models.Account, error) {
	var row models.Account
	err := s.getter(q).GetContext(ctx, &row, accountSelect+`WHERE a.id = $1`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetByOwner(ctx context.Context, q Getter, ownerUserID int64, kind models.AccountKind) (models.Account, error) {
	var row models.Account
	err := s.getter(q).GetContext(ctx, &row, accountSelect+`WHERE a.owner_user_id = $1 AND a.kind = $2`, ownerUserID, kind)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetSystemAccount(ctx context.Context, q Getter, name string) (models.Account, error) {
	var row models.Account
	err := s.getter(q).GetContext(ctx, &row, `
		SELECT a.id, a.owner_user_id, a.kind, b.balance, a.created_at, b.updated_at
		FROM system_accounts sa
		JOIN accounts a ON a.id = sa.account_id
		JOIN account_balances b ON b.account_id = a.id
		WHERE sa.name = $1
	`, name)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

// GetForUpdate reads an account and row-locks its balance until the
// surrounding transaction ends.
func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID int64) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, accountSelect+`WHERE a.id = $1
		FOR UPDATE OF b
	`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID int64, balance int64, updatedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE account_balances
		SET balance = $1, updated_at = $2
		WHERE account_id = $3
	`, balance, updatedAt, accountID)
	return err
}

// ListBalanceMismatches returns accounts whose cached balance differs from
// the sum of their ledger entries.
func (s *AccountStore) ListBalanceMismatches(ctx context.Context) ([]BalanceMismatch, error) {
	var rows []BalanceMismatch
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id AS account_id,
		       a.kind,
		       b.balance AS stored_balance,
		       COALESCE(SUM(e.amount), 0) AS entry_sum,
		       (b.balance - COALESCE(SUM(e.amount), 0)) AS difference
		FROM accounts a
		JOIN account_balances b ON b.account_id = a.id
		LEFT JOIN transaction_entries e ON e.account_id = a.id
		GROUP BY a.id, a.kind, b.balance
		HAVING b.balance <> COALESCE(SUM(e.amount), 0)
		ORDER BY a.id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
