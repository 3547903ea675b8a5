package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"blertbank/internal/db"
	"blertbank/internal/models"
	"blertbank/internal/store"

	"github.com/getsentry/sentry-go"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/rs/zerolog"
)

const TransactionPostedRoutingKey = "blertcoin.transaction.posted"

type TransactionService struct {
	txRunner     db.TxRunner
	accounts     AccountStore
	transactions TransactionStore
	ledger       LedgerStore
	cache        ResultCache
	publishers   []EventPublisher
	logger       zerolog.Logger
}

func NewTransactionService(txRunner db.TxRunner, accounts AccountStore, transactions TransactionStore, ledger LedgerStore, logger zerolog.Logger) *TransactionService {
	return &TransactionService{
		txRunner:     txRunner,
		accounts:     accounts,
		transactions: transactions,
		ledger:       ledger,
		logger:       logger,
	}
}

// WithCache enables the idempotency result cache.
func (s *TransactionService) WithCache(cache ResultCache) *TransactionService {
	s.cache = cache
	return s
}

// WithPublisher adds a sink for posted-transaction events. Every sink sees
// every event.
func (s *TransactionService) WithPublisher(publisher EventPublisher) *TransactionService {
	s.publishers = append(s.publishers, publisher)
	return s
}

type Entry struct {
	AccountID int64 `json:"accountId"`
	Amount    int64 `json:"amount"`
}

type Source struct {
	Table string `json:"table"`
	ID    int64  `json:"id"`
}

type TransactionRequest struct {
	CreatedBy      int64
	Reason         string
	IdempotencyKey string
	Source         *Source
	Metadata       map[string]any
	ReversesTxnID  *int64
	Entries        []Entry
}

type ResultEntry struct {
	AccountID    int64 `json:"accountId"`
	Delta        int64 `json:"delta"`
	BalanceAfter int64 `json:"balanceAfter"`
}

type TransactionResult struct {
	TransactionID int64         `json:"transactionId"`
	CreatedAt     time.Time     `json:"createdAt"`
	Entries       []ResultEntry `json:"entries"`
	Idempotent    bool          `json:"idempotent"`
}

type TransactionPostedEvent struct {
	TransactionID int64         `json:"transactionId"`
	CreatedAt     time.Time     `json:"createdAt"`
	Service       string        `json:"service"`
	CreatedBy     int64         `json:"createdBy"`
	Reason        string        `json:"reason"`
	ReversesTxnID *int64        `json:"reversesTxnId,omitempty"`
	Entries       []ResultEntry `json:"entries"`
}

// PostTransaction atomically applies the request's entries. A request whose
// idempotency key has already been posted returns the stored result with
// Idempotent set and changes nothing.
func (s *TransactionService) PostTransaction(ctx context.Context, callerService string, req TransactionRequest) (TransactionResult, error) {
	if req.IdempotencyKey != "" {
		if result, ok := s.cachedResult(ctx, req.IdempotencyKey); ok {
			return result, nil
		}
		result, found, err := s.replay(ctx, callerService, req)
		if err != nil || found {
			return result, err
		}
	}
	if err := validateEntries(req.Entries); err != nil {
		return TransactionResult{}, err
	}
	metadata, err := encodeMetadata(req.Metadata)
	if err != nil {
		return TransactionResult{}, err
	}

	var result TransactionResult
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		result, err = s.apply(ctx, tx, callerService, req, metadata)
		return err
	})
	if err != nil {
		return s.postFailure(ctx, callerService, req, err)
	}

	s.rememberResult(ctx, req.IdempotencyKey, result)
	s.publishPosted(ctx, callerService, req, result)
	return result, nil
}

func (s *TransactionService) postFailure(ctx context.Context, callerService string, req TransactionRequest, err error) (TransactionResult, error) {
	var integrity *integrityError
	switch {
	case errors.As(err, &integrity):
		return TransactionResult{}, s.reportIntegrity(ctx, callerService, req, err)
	case req.IdempotencyKey != "" && db.IsUniqueViolation(err, store.IdempotencyKeyIndex):
		result, found, replayErr := s.replay(ctx, callerService, req)
		if replayErr != nil {
			return TransactionResult{}, replayErr
		}
		if !found {
			return TransactionResult{}, fmt.Errorf("replay idempotency key %q: %w", req.IdempotencyKey, err)
		}
		return result, nil
	case db.IsUniqueViolation(err, store.ReversedOnceIndex):
		return TransactionResult{}, ErrAlreadyReversed
	case db.IsForeignKeyViolation(err, store.ReversesTxnFKey):
		return TransactionResult{}, ErrTransactionNotFound
	}
	return TransactionResult{}, err
}

func (s *TransactionService) apply(ctx context.Context, tx *sqlx.Tx, callerService string, req TransactionRequest, metadata types.JSONText) (TransactionResult, error) {
	accountIDs := distinctAccountIDs(req.Entries)
	accounts := make(map[int64]models.Account, len(accountIDs))
	for _, accountID := range accountIDs {
		account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if errors.Is(err, sql.ErrNoRows) {
			return TransactionResult{}, fmt.Errorf("account %d: %w", accountID, ErrAccountNotFound)
		}
		if err != nil {
			return TransactionResult{}, err
		}
		accounts[accountID] = account
	}

	// Entries apply in request order, so an account that dips below zero
	// partway through is rejected even when later entries would cover it.
	running := make(map[int64]int64, len(accounts))
	for accountID, account := range accounts {
		running[accountID] = account.Balance
	}
	for _, entry := range req.Entries {
		account := accounts[entry.AccountID]
		next, ok := addAmount(running[entry.AccountID], entry.Amount)
		if !ok {
			return TransactionResult{}, balanceOutOfRange(entry.AccountID)
		}
		if next < 0 && !account.Kind.AllowsNegative() {
			return TransactionResult{}, insufficientFunds(entry.AccountID)
		}
		running[entry.AccountID] = next
	}

	deltas, err := netDeltas(req.Entries)
	if err != nil {
		return TransactionResult{}, err
	}
	resultEntries := make([]ResultEntry, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		resultEntries = append(resultEntries, ResultEntry{
			AccountID:    accountID,
			Delta:        deltas[accountID],
			BalanceAfter: running[accountID],
		})
	}

	input := store.TransactionInput{
		CreatedBy:     req.CreatedBy,
		CreatedBySvc:  callerService,
		Reason:        req.Reason,
		ReversesTxnID: req.ReversesTxnID,
		Metadata:      metadata,
	}
	if req.IdempotencyKey != "" {
		input.IdempotencyKey = &req.IdempotencyKey
	}
	if req.Source != nil {
		input.SourceTable = &req.Source.Table
		input.SourceID = &req.Source.ID
	}
	created, err := s.transactions.Create(ctx, tx, input)
	if err != nil {
		return TransactionResult{}, err
	}

	for _, entry := range resultEntries {
		if err := s.accounts.UpdateBalance(ctx, tx, entry.AccountID, entry.BalanceAfter, created.CreatedAt); err != nil {
			return TransactionResult{}, err
		}
	}

	entries := make([]store.EntryInput, 0, len(req.Entries))
	for _, entry := range req.Entries {
		entries = append(entries, store.EntryInput{AccountID: entry.AccountID, Amount: entry.Amount})
	}
	if err := s.ledger.InsertEntries(ctx, tx, created.ID, created.CreatedAt, entries); err != nil {
		return TransactionResult{}, err
	}

	snapshots := make([]store.SnapshotInput, 0, len(resultEntries))
	for _, entry := range resultEntries {
		snapshots = append(snapshots, store.SnapshotInput{
			AccountID:    entry.AccountID,
			Delta:        entry.Delta,
			BalanceAfter: entry.BalanceAfter,
		})
	}
	stored, err := s.ledger.InsertSnapshots(ctx, tx, created.ID, created.CreatedAt, snapshots)
	if err != nil {
		return TransactionResult{}, err
	}
	if stored != int64(len(snapshots)) {
		return TransactionResult{}, &integrityError{transactionID: created.ID, expected: len(snapshots), found: stored}
	}

	return TransactionResult{
		TransactionID: created.ID,
		CreatedAt:     created.CreatedAt,
		Entries:       resultEntries,
	}, nil
}

// replay loads the transaction previously posted under req's idempotency key.
func (s *TransactionService) replay(ctx context.Context, callerService string, req TransactionRequest) (TransactionResult, bool, error) {
	existing, err := s.transactions.GetByIdempotencyKey(ctx, nil, req.IdempotencyKey)
	if errors.Is(err, sql.ErrNoRows) {
		return TransactionResult{}, false, nil
	}
	if err != nil {
		return TransactionResult{}, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	entries, err := s.transactions.ListEntries(ctx, nil, existing.ID)
	if err != nil {
		return TransactionResult{}, false, err
	}
	snapshots, err := s.ledger.ListSnapshots(ctx, nil, existing.ID)
	if err != nil {
		return TransactionResult{}, false, err
	}
	expected := len(distinctEntryAccounts(entries))
	if len(snapshots) == 0 || len(snapshots) != expected {
		cause := &integrityError{transactionID: existing.ID, expected: expected, found: int64(len(snapshots))}
		return TransactionResult{}, false, s.reportIntegrity(ctx, callerService, req, cause)
	}

	result := TransactionResult{
		TransactionID: existing.ID,
		CreatedAt:     existing.CreatedAt,
		Entries:       make([]ResultEntry, 0, len(snapshots)),
		Idempotent:    true,
	}
	for _, snapshot := range snapshots {
		result.Entries = append(result.Entries, ResultEntry{
			AccountID:    snapshot.AccountID,
			Delta:        snapshot.Delta,
			BalanceAfter: snapshot.BalanceAfter,
		})
	}
	s.rememberResult(ctx, req.IdempotencyKey, result)
	return result, true, nil
}

func (s *TransactionService) reportIntegrity(ctx context.Context, callerService string, req TransactionRequest, cause error) error {
	event := s.logger.Error().
		Err(cause).
		Str("event", "blertcoin_missing_snapshot").
		Str("serviceName", callerService).
		Int64("createdBy", req.CreatedBy).
		Str("reason", req.Reason).
		Str("idempotencyKey", req.IdempotencyKey).
		Interface("entries", req.Entries)
	if req.Source != nil {
		event = event.Str("sourceTable", req.Source.Table).Int64("sourceId", req.Source.ID)
	}
	event.Msg("blertcoin_missing_snapshot")

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(cause)
	} else {
		sentry.CaptureException(cause)
	}
	return ErrInternal
}

func (s *TransactionService) cachedResult(ctx context.Context, key string) (TransactionResult, bool) {
	if s.cache == nil {
		return TransactionResult{}, false
	}
	var result TransactionResult
	found, err := s.cache.Load(ctx, key, &result)
	if err != nil {
		s.logger.Warn().Err(err).Str("idempotencyKey", key).Msg("idempotency cache read failed")
		return TransactionResult{}, false
	}
	if !found {
		return TransactionResult{}, false
	}
	result.Idempotent = true
	return result, true
}

func (s *TransactionService) rememberResult(ctx context.Context, key string, result TransactionResult) {
	if s.cache == nil || key == "" {
		return
	}
	if err := s.cache.Store(ctx, key, result); err != nil {
		s.logger.Warn().Err(err).Str("idempotencyKey", key).Msg("idempotency cache write failed")
	}
}

func (s *TransactionService) publishPosted(ctx context.Context, callerService string, req TransactionRequest, result TransactionResult) {
	if len(s.publishers) == 0 {
		return
	}
	event := TransactionPostedEvent{
		TransactionID: result.TransactionID,
		CreatedAt:     result.CreatedAt,
		Service:       callerService,
		CreatedBy:     req.CreatedBy,
		Reason:        req.Reason,
		ReversesTxnID: req.ReversesTxnID,
		Entries:       result.Entries,
	}
	for _, publisher := range s.publishers {
		if err := publisher.Publish(ctx, TransactionPostedRoutingKey, event); err != nil {
			s.logger.Error().Err(err).Int64("transactionId", result.TransactionID).Msg("publish transaction event failed")
		}
	}
}

func validateEntries(entries []Entry) error {
	if len(entries) == 0 {
		return ErrNoEntries
	}
	for _, entry := range entries {
		if entry.Amount == 0 {
			return ErrInvalidAmount
		}
	}
	if !sumAmounts(entries).IsZero() {
		return ErrUnbalancedTransaction
	}
	return nil
}

func encodeMetadata(metadata map[string]any) (types.JSONText, error) {
	if len(metadata) == 0 {
		return types.JSONText("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return types.JSONText(data), nil
}

// distinctAccountIDs returns the accounts touched by entries in ascending
// order, which is the order their rows are locked in.
func distinctAccountIDs(entries []Entry) []int64 {
	seen := make(map[int64]struct{}, len(entries))
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.AccountID]; ok {
			continue
		}
		seen[entry.AccountID] = struct{}{}
		ids = append(ids, entry.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func distinctEntryAccounts(entries []models.TransactionEntry) map[int64]struct{} {
	accounts := make(map[int64]struct{}, len(entries))
	for _, entry := range entries {
		accounts[entry.AccountID] = struct{}{}
	}
	return accounts
}

// netDeltas is the per-account change recorded on each balance snapshot.
func netDeltas(entries []Entry) (map[int64]int64, error) {
	deltas := make(map[int64]int64, len(entries))
	for _, entry := range entries {
		delta, ok := addAmount(deltas[entry.AccountID], entry.Amount)
		if !ok {
			return nil, balanceOutOfRange(entry.AccountID)
		}
		deltas[entry.AccountID] = delta
	}
	return deltas, nil
}
