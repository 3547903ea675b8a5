package store

import (
	"context"
	"time"

	"blertbank/internal/models"

	"github.com/jmoiron/sqlx/types"
)

const (
	IdempotencyKeyIndex = "uix_transactions_idempotency"
	ReversedOnceIndex   = "uix_transactions_reversed_once"
	ReversesTxnFKey     = "transactions_reverses_txn_id_fkey"
)

const transactionSelect = `
	SELECT id, created_at, created_by, created_by_svc, reason, source_table, source_id,
	       idempotency_key, reverses_txn_id, metadata
	FROM transactions
`

type TransactionStore struct {
	db DB
}

type TransactionInput struct {
	CreatedBy      int64
	CreatedBySvc   string
	Reason         string
	SourceTable    *string
	SourceID       *int64
	IdempotencyKey *string
	ReversesTxnID  *int64
	Metadata       types.JSONText
}

type CreatedTransaction struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) getter(q Getter) Getter {
	if q == nil {
		return s.db
	}
	return q
}

func (s *TransactionStore) selecter(q Selecter) Selecter {
	if q == nil {
		return s.db
	}
	return q
}

func (s *TransactionStore) Create(ctx context.Context, tx Getter, input TransactionInput) (CreatedTransaction, error) {
	metadata := input.Metadata
	if len(metadata) == 0 {
		metadata = types.JSONText("{}")
	}
	var created CreatedTransaction
	err := tx.GetContext(ctx, &created, `
		INSERT INTO transactions (created_by, created_by_svc, reason, source_table, source_id, idempotency_key, reverses_txn_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, input.CreatedBy, input.CreatedBySvc, input.Reason, input.SourceTable, input.SourceID,
		input.IdempotencyKey, input.ReversesTxnID, metadata)
	return created, err
}

func (s *TransactionStore) GetByID(ctx context.Context, q Getter, transactionID int64) (models.Transaction, error) {
	var row models.Transaction
	if err := s.getter(q).GetContext(ctx, &row, transactionSelect+`WHERE id = $1`, transactionID); err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

func (s *TransactionStore) GetByIdempotencyKey(ctx context.Context, q Getter, key string) (models.Transaction, error) {
	var row models.Transaction
	if err := s.getter(q).GetContext(ctx, &row, transactionSelect+`WHERE idempotency_key = $1`, key); err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

func (s *TransactionStore) ListEntries(ctx context.Context, q Selecter, transactionID int64) ([]models.TransactionEntry, error) {
	var rows []models.TransactionEntry
	err := s.selecter(q).SelectContext(ctx, &rows, `
		SELECT id, txn_id, account_id, amount, created_at
		FROM transaction_entries
		WHERE txn_id = $1
		ORDER BY id
	`, transactionID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
