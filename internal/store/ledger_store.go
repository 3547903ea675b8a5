package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"blertbank/internal/models"
)

type LedgerStore struct {
	db DB
}

type EntryInput struct {
	AccountID int64
	Amount    int64
}

type SnapshotInput struct {
	AccountID    int64
	Delta        int64
	BalanceAfter int64
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) InsertEntries(ctx context.Context, tx Execer, transactionID int64, createdAt time.Time, entries []EntryInput) error {
	query := `
		INSERT INTO transaction_entries (txn_id, account_id, amount, created_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, transactionID, entry.AccountID, entry.Amount, createdAt); err != nil {
			return err
		}
	}
	return nil
}

// InsertSnapshots writes one snapshot per account and returns how many rows
// were actually stored.
func (s *LedgerStore) InsertSnapshots(ctx context.Context, tx Execer, transactionID int64, createdAt time.Time, snapshots []SnapshotInput) (int64, error) {
	query := `
		INSERT INTO transaction_account_snapshots (txn_id, account_id, delta, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (txn_id, account_id) DO NOTHING
	`
	var stored int64
	for _, snapshot := range snapshots {
		res, err := tx.ExecContext(ctx, query, transactionID, snapshot.AccountID, snapshot.Delta, snapshot.BalanceAfter, createdAt)
		if err != nil {
			return stored, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return stored, err
		}
		stored += rows
	}
	return stored, nil
}

func (s *LedgerStore) ListSnapshots(ctx context.Context, q Selecter, transactionID int64) ([]models.TransactionAccountSnapshot, error) {
	if q == nil {
		q = s.db
	}
	var rows []models.TransactionAccountSnapshot
	err := q.SelectContext(ctx, &rows, `
		SELECT id, txn_id, account_id, delta, balance_after, created_at
		FROM transaction_account_snapshots
		WHERE txn_id = $1
		ORDER BY account_id
	`, transactionID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// BalanceAt returns the balance recorded by the latest snapshot of the
// account at or before at. found is false when no snapshot qualifies.
// Snapshots are ordered by txn_id, which is assigned while the account row is
// locked; created_at is the transaction start time and can run out of order.
func (s *LedgerStore) BalanceAt(ctx context.Context, accountID int64, at time.Time) (balance int64, found bool, err error) {
	err = s.db.GetContext(ctx, &balance, `
		SELECT balance_after
		FROM transaction_account_snapshots
		WHERE account_id = $1 AND created_at <= $2
		ORDER BY txn_id DESC
		LIMIT 1
	`, accountID, at)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}
