package services

import (
	"errors"
	"fmt"
)

const (
	CodeUnbalancedTransaction = "UNBALANCED_TRANSACTION"
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
)

// TransactionError is a posting rejected because of the caller's input.
// Two errors match under errors.Is when their codes are equal.
type TransactionError struct {
	Code    string
	Message string
}

func (e *TransactionError) Error() string {
	return e.Message
}

func (e *TransactionError) Is(target error) bool {
	t, ok := target.(*TransactionError)
	return ok && t.Code == e.Code
}

var (
	ErrUnbalancedTransaction = &TransactionError{Code: CodeUnbalancedTransaction, Message: "transaction entries do not sum to zero"}
	ErrInvalidAmount         = &TransactionError{Code: CodeInvalidAmount, Message: "zero-amount entries are not allowed"}
	ErrInsufficientFunds     = &TransactionError{Code: CodeInsufficientFunds, Message: "account has insufficient funds"}
	ErrNoEntries             = &TransactionError{Code: CodeInvalidAmount, Message: "transaction has no entries"}
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyReversed     = errors.New("transaction already reversed")
	ErrInvalidAccountKind  = errors.New("invalid account kind")
	ErrInternal            = errors.New("internal error posting transaction")
)

func insufficientFunds(accountID int64) error {
	return &TransactionError{
		Code:    CodeInsufficientFunds,
		Message: fmt.Sprintf("account %d has insufficient funds", accountID),
	}
}

func balanceOutOfRange(accountID int64) error {
	return &TransactionError{
		Code:    CodeInvalidAmount,
		Message: fmt.Sprintf("account %d balance out of range", accountID),
	}
}

// integrityError marks a storage invariant found broken while posting.
// It never leaves the package; callers see ErrInternal.
type integrityError struct {
	transactionID int64
	expected      int
	found         int64
}

func (e *integrityError) Error() string {
	return fmt.Sprintf("transaction %d: expected %d balance snapshots, found %d", e.transactionID, e.expected, e.found)
}
