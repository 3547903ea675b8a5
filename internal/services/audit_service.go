package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"blertbank/internal/models"
	"blertbank/internal/store"
)

// AuditService answers questions about the ledger's history.
type AuditService struct {
	accounts     AccountStore
	transactions TransactionStore
	ledger       LedgerStore
}

type TransactionDetail struct {
	models.Transaction
	Entries   []models.TransactionEntry           `json:"entries"`
	Snapshots []models.TransactionAccountSnapshot `json:"snapshots"`
}

func NewAuditService(accounts AccountStore, transactions TransactionStore, ledger LedgerStore) *AuditService {
	return &AuditService{accounts: accounts, transactions: transactions, ledger: ledger}
}

// BalanceAt returns the account's balance as of at, taken from the latest
// snapshot recorded at or before that time. Accounts with no snapshot by
// then had a zero balance.
func (s *AuditService) BalanceAt(ctx context.Context, accountID int64, at time.Time) (int64, error) {
	if _, err := s.accounts.GetByID(ctx, nil, accountID); err != nil {
		return 0, notFound(err, ErrAccountNotFound)
	}
	balance, _, err := s.ledger.BalanceAt(ctx, accountID, at)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *AuditService) GetTransaction(ctx context.Context, transactionID int64) (TransactionDetail, error) {
	txn, err := s.transactions.GetByID(ctx, nil, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return TransactionDetail{}, ErrTransactionNotFound
	}
	if err != nil {
		return TransactionDetail{}, err
	}
	entries, err := s.transactions.ListEntries(ctx, nil, transactionID)
	if err != nil {
		return TransactionDetail{}, err
	}
	snapshots, err := s.ledger.ListSnapshots(ctx, nil, transactionID)
	if err != nil {
		return TransactionDetail{}, err
	}
	return TransactionDetail{Transaction: txn, Entries: entries, Snapshots: snapshots}, nil
}

// Reconcile lists accounts whose cached balance has drifted from the sum of
// their entries. An empty result means the ledger is consistent.
func (s *AuditService) Reconcile(ctx context.Context) ([]store.BalanceMismatch, error) {
	mismatches, err := s.accounts.ListBalanceMismatches(ctx)
	if err != nil {
		return nil, err
	}
	if mismatches == nil {
		mismatches = []store.BalanceMismatch{}
	}
	return mismatches, nil
}
