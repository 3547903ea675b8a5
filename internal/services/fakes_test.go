package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"blertbank/internal/models"
	"blertbank/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memLedger is an in-memory ledger. Its runner serialises units of work and
// rolls back every write made by one that fails.
type memLedger struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextAccountID int64
	nextTxnID     int64
	clock         time.Time

	accounts  map[int64]models.Account
	system    map[string]int64
	txns      map[int64]models.Transaction
	entries   map[int64][]models.TransactionEntry
	snapshots map[int64][]models.TransactionAccountSnapshot

	lockOrder     []int64
	dropSnapshots bool
	hideKeys      int
}

func newMemLedger() *memLedger {
	return &memLedger{
		clock:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		accounts:  map[int64]models.Account{},
		system:    map[string]int64{},
		txns:      map[int64]models.Transaction{},
		entries:   map[int64][]models.TransactionEntry{},
		snapshots: map[int64][]models.TransactionAccountSnapshot{},
	}
}

type memState struct {
	nextAccountID int64
	nextTxnID     int64
	clock         time.Time
	accounts      map[int64]models.Account
	system        map[string]int64
	txns          map[int64]models.Transaction
	entries       map[int64][]models.TransactionEntry
	snapshots     map[int64][]models.TransactionAccountSnapshot
}

func (l *memLedger) save() memState {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := memState{
		nextAccountID: l.nextAccountID,
		nextTxnID:     l.nextTxnID,
		clock:         l.clock,
		accounts:      make(map[int64]models.Account, len(l.accounts)),
		system:        make(map[string]int64, len(l.system)),
		txns:          make(map[int64]models.Transaction, len(l.txns)),
		entries:       make(map[int64][]models.TransactionEntry, len(l.entries)),
		snapshots:     make(map[int64][]models.TransactionAccountSnapshot, len(l.snapshots)),
	}
	for k, v := range l.accounts {
		state.accounts[k] = v
	}
	for k, v := range l.system {
		state.system[k] = v
	}
	for k, v := range l.txns {
		state.txns[k] = v
	}
	for k, v := range l.entries {
		state.entries[k] = v
	}
	for k, v := range l.snapshots {
		state.snapshots[k] = v
	}
	return state
}

func (l *memLedger) restore(state memState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextAccountID = state.nextAccountID
	l.nextTxnID = state.nextTxnID
	l.clock = state.clock
	l.accounts = state.accounts
	l.system = state.system
	l.txns = state.txns
	l.entries = state.entries
	l.snapshots = state.snapshots
}

func (l *memLedger) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	state := l.save()
	if err := fn(nil); err != nil {
		l.restore(state)
		return err
	}
	return nil
}

// seed adds an account with an opening balance outside of any posting.
func (l *memLedger) seed(kind models.AccountKind, owner *int64, balance int64) models.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextAccountID++
	account := models.Account{
		ID:          l.nextAccountID,
		OwnerUserID: owner,
		Kind:        kind,
		Balance:     balance,
		CreatedAt:   l.clock,
		UpdatedAt:   l.clock,
	}
	l.accounts[account.ID] = account
	if balance != 0 {
		l.entries[0] = append(l.entries[0], models.TransactionEntry{AccountID: account.ID, Amount: balance})
	}
	return account
}

func (l *memLedger) balance(accountID int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[accountID].Balance
}

func (l *memLedger) transactionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txns)
}

func uniqueViolation(constraint string) error {
	return &pq.Error{Code: "23505", Constraint: constraint}
}

func foreignKeyViolation(constraint string) error {
	return &pq.Error{Code: "23503", Constraint: constraint}
}

type memAccounts struct{ l *memLedger }

func (m memAccounts) Create(ctx context.Context, tx store.Tx, ownerUserID *int64, kind models.AccountKind) (models.Account, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	if ownerUserID != nil {
		for _, account := range m.l.accounts {
			if account.Kind == kind && account.OwnerUserID != nil && *account.OwnerUserID == *ownerUserID {
				if kind == models.AccountKindLiability {
					return models.Account{}, uniqueViolation(store.LiabilityAccountPerOwnerIndex)
				}
				return models.Account{}, uniqueViolation(store.UserAccountPerOwnerIndex)
			}
		}
	}
	m.l.nextAccountID++
	account := models.Account{ID: m.l.nextAccountID, OwnerUserID: ownerUserID, Kind: kind, CreatedAt: m.l.clock, UpdatedAt: m.l.clock}
	m.l.accounts[account.ID] = account
	return account, nil
}

func (m memAccounts) RegisterSystemAccount(ctx context.Context, tx store.Execer, name string, accountID int64) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	if _, ok := m.l.system[name]; ok {
		return uniqueViolation(store.SystemAccountNameKey)
	}
	m.l.system[name] = accountID
	return nil
}

func (m memAccounts) GetByID(ctx context.Context, q store.Getter, accountID int64) (models.Account, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	account, ok := m.l.accounts[accountID]
	if !ok {
		return models.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (m memAccounts) GetByOwner(ctx context.Context, q store.Getter, ownerUserID int64, kind models.AccountKind) (models.Account, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	for _, account := range m.l.accounts {
		if account.Kind == kind && account.OwnerUserID != nil && *account.OwnerUserID == ownerUserID {
			return account, nil
		}
	}
	return models.Account{}, sql.ErrNoRows
}

func (m memAccounts) GetSystemAccount(ctx context.Context, q store.Getter, name string) (models.Account, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	id, ok := m.l.system[name]
	if !ok {
		return models.Account{}, sql.ErrNoRows
	}
	return m.l.accounts[id], nil
}

func (m memAccounts) GetForUpdate(ctx context.Context, tx store.Getter, accountID int64) (models.Account, error) {
	m.l.mu.Lock()
	m.l.lockOrder = append(m.l.lockOrder, accountID)
	m.l.mu.Unlock()
	return m.GetByID(ctx, tx, accountID)
}

func (m memAccounts) UpdateBalance(ctx context.Context, tx store.Execer, accountID int64, balance int64, updatedAt time.Time) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	account := m.l.accounts[accountID]
	account.Balance = balance
	account.UpdatedAt = updatedAt
	m.l.accounts[accountID] = account
	return nil
}

func (m memAccounts) ListBalanceMismatches(ctx context.Context) ([]store.BalanceMismatch, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	sums := map[int64]int64{}
	for _, entries := range m.l.entries {
		for _, entry := range entries {
			sums[entry.AccountID] += entry.Amount
		}
	}
	var mismatches []store.BalanceMismatch
	for id, account := range m.l.accounts {
		if account.Balance != sums[id] {
			mismatches = append(mismatches, store.BalanceMismatch{
				AccountID:     id,
				Kind:          account.Kind,
				StoredBalance: account.Balance,
				EntrySum:      sums[id],
				Difference:    account.Balance - sums[id],
			})
		}
	}
	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].AccountID < mismatches[j].AccountID })
	return mismatches, nil
}

type memTransactions struct{ l *memLedger }

func (m memTransactions) Create(ctx context.Context, tx store.Getter, input store.TransactionInput) (store.CreatedTransaction, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	for _, txn := range m.l.txns {
		if input.IdempotencyKey != nil && txn.IdempotencyKey != nil && *txn.IdempotencyKey == *input.IdempotencyKey {
			return store.CreatedTransaction{}, uniqueViolation(store.IdempotencyKeyIndex)
		}
		if input.ReversesTxnID != nil && txn.ReversesTxnID != nil && *txn.ReversesTxnID == *input.ReversesTxnID {
			return store.CreatedTransaction{}, uniqueViolation(store.ReversedOnceIndex)
		}
	}
	if input.ReversesTxnID != nil {
		if _, ok := m.l.txns[*input.ReversesTxnID]; !ok {
			return store.CreatedTransaction{}, foreignKeyViolation(store.ReversesTxnFKey)
		}
	}
	m.l.nextTxnID++
	m.l.clock = m.l.clock.Add(time.Second)
	txn := models.Transaction{
		ID:             m.l.nextTxnID,
		CreatedAt:      m.l.clock,
		CreatedBy:      input.CreatedBy,
		CreatedBySvc:   input.CreatedBySvc,
		Reason:         input.Reason,
		SourceTable:    input.SourceTable,
		SourceID:       input.SourceID,
		IdempotencyKey: input.IdempotencyKey,
		ReversesTxnID:  input.ReversesTxnID,
		Metadata:       input.Metadata,
	}
	m.l.txns[txn.ID] = txn
	return store.CreatedTransaction{ID: txn.ID, CreatedAt: txn.CreatedAt}, nil
}

func (m memTransactions) GetByID(ctx context.Context, q store.Getter, transactionID int64) (models.Transaction, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	txn, ok := m.l.txns[transactionID]
	if !ok {
		return models.Transaction{}, sql.ErrNoRows
	}
	return txn, nil
}

func (m memTransactions) GetByIdempotencyKey(ctx context.Context, q store.Getter, key string) (models.Transaction, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	if m.l.hideKeys > 0 {
		m.l.hideKeys--
		return models.Transaction{}, sql.ErrNoRows
	}
	for _, txn := range m.l.txns {
		if txn.IdempotencyKey != nil && *txn.IdempotencyKey == key {
			return txn, nil
		}
	}
	return models.Transaction{}, sql.ErrNoRows
}

func (m memTransactions) ListEntries(ctx context.Context, q store.Selecter, transactionID int64) ([]models.TransactionEntry, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	return append([]models.TransactionEntry(nil), m.l.entries[transactionID]...), nil
}

type memEntries struct{ l *memLedger }

func (m memEntries) InsertEntries(ctx context.Context, tx store.Execer, transactionID int64, createdAt time.Time, entries []store.EntryInput) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	rows := make([]models.TransactionEntry, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, models.TransactionEntry{TxnID: transactionID, AccountID: entry.AccountID, Amount: entry.Amount, CreatedAt: createdAt})
	}
	m.l.entries[transactionID] = append(append([]models.TransactionEntry(nil), m.l.entries[transactionID]...), rows...)
	return nil
}

func (m memEntries) InsertSnapshots(ctx context.Context, tx store.Execer, transactionID int64, createdAt time.Time, snapshots []store.SnapshotInput) (int64, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	if m.l.dropSnapshots {
		return 0, nil
	}
	rows := make([]models.TransactionAccountSnapshot, 0, len(snapshots))
	for _, snapshot := range snapshots {
		rows = append(rows, models.TransactionAccountSnapshot{
			TxnID:        transactionID,
			AccountID:    snapshot.AccountID,
			Delta:        snapshot.Delta,
			BalanceAfter: snapshot.BalanceAfter,
			CreatedAt:    createdAt,
		})
	}
	m.l.snapshots[transactionID] = rows
	return int64(len(rows)), nil
}

func (m memEntries) ListSnapshots(ctx context.Context, q store.Selecter, transactionID int64) ([]models.TransactionAccountSnapshot, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	rows := append([]models.TransactionAccountSnapshot(nil), m.l.snapshots[transactionID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].AccountID < rows[j].AccountID })
	return rows, nil
}

func (m memEntries) BalanceAt(ctx context.Context, accountID int64, at time.Time) (int64, bool, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	var latest *models.TransactionAccountSnapshot
	for _, rows := range m.l.snapshots {
		for i := range rows {
			row := rows[i]
			if row.AccountID != accountID || row.CreatedAt.After(at) {
				continue
			}
			if latest == nil || row.TxnID > latest.TxnID {
				latest = &row
			}
		}
	}
	if latest == nil {
		return 0, false, nil
	}
	return latest.BalanceAfter, true, nil
}

func newMemServices(l *memLedger) (*AccountService, *TransactionService, *AuditService) {
	accounts := memAccounts{l: l}
	transactions := memTransactions{l: l}
	entries := memEntries{l: l}
	return NewAccountService(l, accounts),
		NewTransactionService(l, accounts, transactions, entries, zerolog.Nop()),
		NewAuditService(accounts, transactions, entries)
}
