package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type ReverseRequest struct {
	TransactionID  int64
	CreatedBy      int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]any
}

// ReverseTransaction posts the negation of an existing transaction. A
// transaction can be reversed at most once; later attempts fail with
// ErrAlreadyReversed.
func (s *TransactionService) ReverseTransaction(ctx context.Context, callerService string, req ReverseRequest) (TransactionResult, error) {
	original, err := s.transactions.GetByID(ctx, nil, req.TransactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return TransactionResult{}, ErrTransactionNotFound
	}
	if err != nil {
		return TransactionResult{}, err
	}
	originalEntries, err := s.transactions.ListEntries(ctx, nil, original.ID)
	if err != nil {
		return TransactionResult{}, err
	}

	entries := make([]Entry, 0, len(originalEntries))
	for _, entry := range originalEntries {
		entries = append(entries, Entry{AccountID: entry.AccountID, Amount: -entry.Amount})
	}
	reason := req.Reason
	if reason == "" {
		reason = fmt.Sprintf("reversal of transaction %d", original.ID)
	}
	return s.PostTransaction(ctx, callerService, TransactionRequest{
		CreatedBy:      req.CreatedBy,
		Reason:         reason,
		IdempotencyKey: req.IdempotencyKey,
		Source:         &Source{Table: "transactions", ID: original.ID},
		Metadata:       req.Metadata,
		ReversesTxnID:  &original.ID,
		Entries:        entries,
	})
}
