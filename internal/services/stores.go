package services

import (
	"context"
	"time"

	"blertbank/internal/models"
	"blertbank/internal/store"
)

type AccountStore interface {
	Create(ctx context.Context, tx store.Tx, ownerUserID *int64, kind models.AccountKind) (models.Account, error)
	RegisterSystemAccount(ctx context.Context, tx store.Execer, name string, accountID int64) error
	GetByID(ctx context.Context, q store.Getter, accountID int64) (models.Account, error)
	GetByOwner(ctx context.Context, q store.Getter, ownerUserID int64, kind models.AccountKind) (models.Account, error)
	GetSystemAccount(ctx context.Context, q store.Getter, name string) (models.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID int64) (models.Account, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID int64, balance int64, updatedAt time.Time) error
	ListBalanceMismatches(ctx context.Context) ([]store.BalanceMismatch, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Getter, input store.TransactionInput) (store.CreatedTransaction, error)
	GetByID(ctx context.Context, q store.Getter, transactionID int64) (models.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, q store.Getter, key string) (models.Transaction, error)
	ListEntries(ctx context.Context, q store.Selecter, transactionID int64) ([]models.TransactionEntry, error)
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, transactionID int64, createdAt time.Time, entries []store.EntryInput) error
	InsertSnapshots(ctx context.Context, tx store.Execer, transactionID int64, createdAt time.Time, snapshots []store.SnapshotInput) (int64, error)
	ListSnapshots(ctx context.Context, q store.Selecter, transactionID int64) ([]models.TransactionAccountSnapshot, error)
	BalanceAt(ctx context.Context, accountID int64, at time.Time) (int64, bool, error)
}

// ResultCache keeps posted results by idempotency key.
type ResultCache interface {
	Load(ctx context.Context, key string, dest any) (bool, error)
	Store(ctx context.Context, key string, value any) error
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
