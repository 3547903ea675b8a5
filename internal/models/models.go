package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

type AccountKind string

const (
	AccountKindUser      AccountKind = "user"
	AccountKindTreasury  AccountKind = "treasury"
	AccountKindSink      AccountKind = "sink"
	AccountKindLiability AccountKind = "liability"
	AccountKindEscrow    AccountKind = "escrow"
)

// Valid reports whether k is one of the known account kinds.
func (k AccountKind) Valid() bool {
	switch k {
	case AccountKindUser, AccountKindTreasury, AccountKindSink, AccountKindLiability, AccountKindEscrow:
		return true
	}
	return false
}

// AllowsNegative reports whether accounts of this kind may carry a negative balance.
func (k AccountKind) AllowsNegative() bool {
	return k == AccountKindTreasury || k == AccountKindLiability
}

// OwnerScoped reports whether accounts of this kind are unique per owner.
func (k AccountKind) OwnerScoped() bool {
	return k == AccountKindUser || k == AccountKindLiability
}

type Account struct {
	ID          int64       `db:"id" json:"id"`
	OwnerUserID *int64      `db:"owner_user_id" json:"ownerUserId,omitempty"`
	Kind        AccountKind `db:"kind" json:"kind"`
	Balance     int64       `db:"balance" json:"balance"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

type Transaction struct {
	ID             int64          `db:"id" json:"id"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	CreatedBy      int64          `db:"created_by" json:"createdBy"`
	CreatedBySvc   string         `db:"created_by_svc" json:"createdBySvc"`
	Reason         string         `db:"reason" json:"reason"`
	SourceTable    *string        `db:"source_table" json:"sourceTable,omitempty"`
	SourceID       *int64         `db:"source_id" json:"sourceId,omitempty"`
	IdempotencyKey *string        `db:"idempotency_key" json:"idempotencyKey,omitempty"`
	ReversesTxnID  *int64         `db:"reverses_txn_id" json:"reversesTxnId,omitempty"`
	Metadata       types.JSONText `db:"metadata" json:"metadata"`
}

type TransactionEntry struct {
	ID        int64     `db:"id" json:"id"`
	TxnID     int64     `db:"txn_id" json:"txnId"`
	AccountID int64     `db:"account_id" json:"accountId"`
	Amount    int64     `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TransactionAccountSnapshot is the balance of one account right after one transaction.
type TransactionAccountSnapshot struct {
	ID           int64     `db:"id" json:"id"`
	TxnID        int64     `db:"txn_id" json:"txnId"`
	AccountID    int64     `db:"account_id" json:"accountId"`
	Delta        int64     `db:"delta" json:"delta"`
	BalanceAfter int64     `db:"balance_after" json:"balanceAfter"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
