package handlers

import (
	"context"
	"time"

	"blertbank/internal/models"
	"blertbank/internal/services"
	"blertbank/internal/store"
)

type AccountService interface {
	GetOrCreateUserAccount(ctx context.Context, userID int64) (models.Account, bool, error)
	FindAccountByID(ctx context.Context, accountID int64) (models.Account, error)
	FindUserAccountByUserID(ctx context.Context, userID int64) (models.Account, error)
	ResolveParticipants(ctx context.Context, participants []services.Participant) ([]services.Entry, map[int64]services.Participant, error)
}

type TransactionService interface {
	PostTransaction(ctx context.Context, callerService string, req services.TransactionRequest) (services.TransactionResult, error)
	ReverseTransaction(ctx context.Context, callerService string, req services.ReverseRequest) (services.TransactionResult, error)
}

type AuditService interface {
	BalanceAt(ctx context.Context, accountID int64, at time.Time) (int64, error)
	GetTransaction(ctx context.Context, transactionID int64) (services.TransactionDetail, error)
	Reconcile(ctx context.Context) ([]store.BalanceMismatch, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}
