package handlers

import (
	"net/http"
	"time"

	"blertbank/internal/models"
	"blertbank/internal/websocket"
)

type createAccountRequest struct {
	UserID *int64 `json:"userId" validate:"required"`
}

type accountResponse struct {
	AccountID int64              `json:"accountId"`
	Kind      models.AccountKind `json:"kind"`
	UserID    *int64             `json:"userId,omitempty"`
	Balance   int64              `json:"balance"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

func toAccountResponse(account models.Account) accountResponse {
	return accountResponse{
		AccountID: account.ID,
		Kind:      account.Kind,
		UserID:    account.OwnerUserID,
		Balance:   account.Balance,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	account, created, err := h.accounts.GetOrCreateUserAccount(r.Context(), *req.UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, toAccountResponse(account))
}

func (h *Handler) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := int64Param(r, "userId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	account, err := h.accounts.FindUserAccountByUserID(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := int64Param(r, "accountId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	account, err := h.accounts.FindAccountByID(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(account))
}

// GetBalance returns the current balance, or the balance as of the RFC 3339
// timestamp in the "at" query parameter.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := int64Param(r, "accountId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	at := r.URL.Query().Get("at")
	if at == "" {
		account, err := h.accounts.FindAccountByID(r.Context(), accountID)
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"accountId": account.ID, "balance": account.Balance})
		return
	}
	asOf, err := time.Parse(time.RFC3339, at)
	if err != nil {
		badRequest(w, "at must be an RFC 3339 timestamp")
		return
	}
	balance, err := h.audit.BalanceAt(r.Context(), accountID, asOf)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"accountId": accountID, "balance": balance, "at": asOf})
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	mismatches, err := h.audit.Reconcile(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"mismatches": mismatches})
}

// StreamBalances upgrades to a websocket that receives the current balance
// and then a BalanceUpdate for every transaction posted against the account.
func (h *Handler) StreamBalances(w http.ResponseWriter, r *http.Request) {
	accountID, err := int64Param(r, "accountId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	account, err := h.accounts.FindAccountByID(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	websocket.ServeWS(w, r, h.hub, account)
}
