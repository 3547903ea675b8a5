package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"blertbank/internal/db"
	"blertbank/internal/models"
	"blertbank/internal/store"

	"github.com/jmoiron/sqlx"
)

type AccountService struct {
	txRunner db.TxRunner
	accounts AccountStore
}

func NewAccountService(txRunner db.TxRunner, accounts AccountStore) *AccountService {
	return &AccountService{txRunner: txRunner, accounts: accounts}
}

func (s *AccountService) FindAccountByID(ctx context.Context, accountID int64) (models.Account, error) {
	account, err := s.accounts.GetByID(ctx, nil, accountID)
	return account, notFound(err, ErrAccountNotFound)
}

func (s *AccountService) FindUserAccountByUserID(ctx context.Context, userID int64) (models.Account, error) {
	account, err := s.accounts.GetByOwner(ctx, nil, userID, models.AccountKindUser)
	return account, notFound(err, ErrAccountNotFound)
}

func (s *AccountService) FindSystemAccountByName(ctx context.Context, name string) (models.Account, error) {
	account, err := s.accounts.GetSystemAccount(ctx, nil, name)
	return account, notFound(err, ErrAccountNotFound)
}

// GetOrCreateUserAccount returns the user's account, creating it with a zero
// balance if it does not exist yet. created is false when the account
// already existed, including when a concurrent caller created it first.
func (s *AccountService) GetOrCreateUserAccount(ctx context.Context, userID int64) (models.Account, bool, error) {
	return s.getOrCreateOwned(ctx, userID, models.AccountKindUser, store.UserAccountPerOwnerIndex)
}

func (s *AccountService) GetOrCreateLiabilityAccount(ctx context.Context, userID int64) (models.Account, bool, error) {
	return s.getOrCreateOwned(ctx, userID, models.AccountKindLiability, store.LiabilityAccountPerOwnerIndex)
}

func (s *AccountService) getOrCreateOwned(ctx context.Context, userID int64, kind models.AccountKind, index string) (models.Account, bool, error) {
	var account models.Account
	var created bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.accounts.GetByOwner(ctx, tx, userID, kind)
		if err == nil {
			account = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		account, err = s.accounts.Create(ctx, tx, &userID, kind)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if db.IsUniqueViolation(err, index) {
		account, err = s.accounts.GetByOwner(ctx, nil, userID, kind)
		if err != nil {
			return models.Account{}, false, fmt.Errorf("re-read %s account for user %d: %w", kind, userID, err)
		}
		return account, false, nil
	}
	if err != nil {
		return models.Account{}, false, err
	}
	return account, created, nil
}

// EnsureSystemAccount provisions the named system account if it is missing.
func (s *AccountService) EnsureSystemAccount(ctx context.Context, name string, kind models.AccountKind) (models.Account, bool, error) {
	if !kind.Valid() || kind.OwnerScoped() {
		return models.Account{}, false, fmt.Errorf("%w: %q cannot be a system account", ErrInvalidAccountKind, kind)
	}
	var account models.Account
	var created bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.accounts.GetSystemAccount(ctx, tx, name)
		if err == nil {
			account = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		account, err = s.accounts.Create(ctx, tx, nil, kind)
		if err != nil {
			return err
		}
		if err := s.accounts.RegisterSystemAccount(ctx, tx, name, account.ID); err != nil {
			return err
		}
		created = true
		return nil
	})
	if db.IsUniqueViolation(err, store.SystemAccountNameKey) {
		account, err = s.accounts.GetSystemAccount(ctx, nil, name)
		created = false
	}
	if err != nil {
		return models.Account{}, false, err
	}
	if account.Kind != kind {
		return models.Account{}, false, fmt.Errorf("%w: system account %q is %s, not %s", ErrInvalidAccountKind, name, account.Kind, kind)
	}
	return account, created, nil
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
