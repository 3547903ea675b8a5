package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"blertbank/internal/config"
	"blertbank/internal/middleware"
	"blertbank/internal/models"
	"blertbank/internal/services"
	"blertbank/internal/store"
	"blertbank/internal/websocket"

	"github.com/rs/zerolog"
)

const testToken = "test-token"

type stubAccountService struct {
	getOrCreateFn func(ctx context.Context, userID int64) (models.Account, bool, error)
	findByIDFn    func(ctx context.Context, accountID int64) (models.Account, error)
	findByUserFn  func(ctx context.Context, userID int64) (models.Account, error)
	resolveFn     func(ctx context.Context, participants []services.Participant) ([]services.Entry, map[int64]services.Participant, error)
}

func (s stubAccountService) GetOrCreateUserAccount(ctx context.Context, userID int64) (models.Account, bool, error) {
	if s.getOrCreateFn == nil {
		return models.Account{}, false, nil
	}
	return s.getOrCreateFn(ctx, userID)
}

func (s stubAccountService) FindAccountByID(ctx context.Context, accountID int64) (models.Account, error) {
	if s.findByIDFn == nil {
		return models.Account{}, services.ErrAccountNotFound
	}
	return s.findByIDFn(ctx, accountID)
}

func (s stubAccountService) FindUserAccountByUserID(ctx context.Context, userID int64) (models.Account, error) {
	if s.findByUserFn == nil {
		return models.Account{}, services.ErrAccountNotFound
	}
	return s.findByUserFn(ctx, userID)
}

func (s stubAccountService) ResolveParticipants(ctx context.Context, participants []services.Participant) ([]services.Entry, map[int64]services.Participant, error) {
	if s.resolveFn == nil {
		return nil, nil, nil
	}
	return s.resolveFn(ctx, participants)
}

type stubTransactionService struct {
	postFn    func(ctx context.Context, callerService string, req services.TransactionRequest) (services.TransactionResult, error)
	reverseFn func(ctx context.Context, callerService string, req services.ReverseRequest) (services.TransactionResult, error)
}

func (s stubTransactionService) PostTransaction(ctx context.Context, callerService string, req services.TransactionRequest) (services.TransactionResult, error) {
	if s.postFn == nil {
		return services.TransactionResult{}, nil
	}
	return s.postFn(ctx, callerService, req)
}

func (s stubTransactionService) ReverseTransaction(ctx context.Context, callerService string, req services.ReverseRequest) (services.TransactionResult, error) {
	if s.reverseFn == nil {
		return services.TransactionResult{}, nil
	}
	return s.reverseFn(ctx, callerService, req)
}

type stubAuditService struct {
	balanceAtFn      func(ctx context.Context, accountID int64, at time.Time) (int64, error)
	getTransactionFn func(ctx context.Context, transactionID int64) (services.TransactionDetail, error)
	reconcileFn      func(ctx context.Context) ([]store.BalanceMismatch, error)
}

func (s stubAuditService) BalanceAt(ctx context.Context, accountID int64, at time.Time) (int64, error) {
	if s.balanceAtFn == nil {
		return 0, nil
	}
	return s.balanceAtFn(ctx, accountID, at)
}

func (s stubAuditService) GetTransaction(ctx context.Context, transactionID int64) (services.TransactionDetail, error) {
	if s.getTransactionFn == nil {
		return services.TransactionDetail{}, services.ErrTransactionNotFound
	}
	return s.getTransactionFn(ctx, transactionID)
}

func (s stubAuditService) Reconcile(ctx context.Context) ([]store.BalanceMismatch, error) {
	if s.reconcileFn == nil {
		return []store.BalanceMismatch{}, nil
	}
	return s.reconcileFn(ctx)
}

type stubPinger struct {
	err error
}

func (s stubPinger) PingContext(context.Context) error {
	return s.err
}

func newTestHandler(accounts AccountService, transactions TransactionService, audit AuditService) *Handler {
	cfg := config.Config{
		Port:           0,
		AllowedOrigins: "*",
		ServiceToken:   testToken,
	}
	return New(cfg, accounts, transactions, audit, stubPinger{}, websocket.NewHub(), zerolog.Nop())
}

// serve sends an authenticated request through the full router.
func serve(t *testing.T, handler *Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ServiceTokenHeader, testToken)
	req.Header.Set(middleware.ServiceNameHeader, "test-service")
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var payload errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return payload
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	if payload := decodeError(t, rr); payload.Error != code {
		t.Fatalf("expected error %s, got %#v", code, payload)
	}
}

func int64Ptr(value int64) *int64 {
	return &value
}
