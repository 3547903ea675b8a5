package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const DefaultMaxAttempts = 5

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

var ErrRetryLimitExceeded = errors.New("transaction retry limit exceeded")

type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

type SQLXTxRunner struct {
	db          *sqlx.DB
	maxAttempts int
}

func NewTxRunner(db *sqlx.DB, maxAttempts int) SQLXTxRunner {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return SQLXTxRunner{db: db, maxAttempts: maxAttempts}
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return withTx(ctx, r.db, r.maxAttempts, fn)
}

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func Connect(databaseURL string, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return db, nil
}

// WithTx runs fn in a serializable transaction, retrying serialization
// failures and deadlocks up to DefaultMaxAttempts times.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	return withTx(ctx, db, DefaultMaxAttempts, fn)
}

func withTx(ctx context.Context, db *sqlx.DB, maxAttempts int, fn func(*sqlx.Tx) error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(maxAttempts-1)), ctx)
	err := backoff.Retry(func() error {
		err := runTx(ctx, db, fn)
		if err == nil || isRetryablePGError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil && isRetryablePGError(err) {
		return fmt.Errorf("%w: %w", ErrRetryLimitExceeded, err)
	}
	return err
}

func runTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

func isRetryablePGError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}

// IsUniqueViolation reports whether err is a unique violation, optionally
// restricted to the named constraint or index.
func IsUniqueViolation(err error, constraint string) bool {
	return isConstraintError(err, codeUniqueViolation, constraint)
}

func IsForeignKeyViolation(err error, constraint string) bool {
	return isConstraintError(err, codeForeignKeyViolation, constraint)
}

func isConstraintError(err error, code pq.ErrorCode, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
