package handlers

import (
	"net/http"
	"time"

	"blertbank/internal/middleware"
	"blertbank/internal/services"
)

type entryRequest struct {
	AccountID *int64 `json:"accountId" validate:"required"`
	Amount    *int64 `json:"amount" validate:"required"`
}

type sourceRequest struct {
	Table string `json:"table" validate:"required,max=64"`
	ID    *int64 `json:"id" validate:"required"`
}

type createTransactionRequest struct {
	CreatedBy      *int64                 `json:"createdBy" validate:"required"`
	Reason         string                 `json:"reason" validate:"required,max=256"`
	IdempotencyKey string                 `json:"idempotencyKey" validate:"max=128"`
	Source         *sourceRequest         `json:"source"`
	Metadata       map[string]any         `json:"metadata"`
	ReversesTxnID  *int64                 `json:"reversesTxnId"`
	Entries        []entryRequest         `json:"entries" validate:"omitempty,dive"`
	Participants   []services.Participant `json:"participants"`
}

type reverseTransactionRequest struct {
	CreatedBy      *int64         `json:"createdBy" validate:"required"`
	Reason         string         `json:"reason" validate:"max=256"`
	IdempotencyKey string         `json:"idempotencyKey" validate:"max=128"`
	Metadata       map[string]any `json:"metadata"`
}

type entryResponse struct {
	AccountID    int64 `json:"accountId"`
	Amount       int64 `json:"amount"`
	BalanceAfter int64 `json:"balanceAfter"`
}

type participantResponse struct {
	services.Participant
	BalanceAfter int64 `json:"balanceAfter"`
}

type transactionResponse struct {
	TransactionID int64                 `json:"transactionId"`
	CreatedAt     time.Time             `json:"createdAt"`
	Idempotent    bool                  `json:"idempotent"`
	Entries       []entryResponse       `json:"entries,omitempty"`
	Participants  []participantResponse `json:"participants,omitempty"`
}

// toTransactionResponse renders the result by entry, or by participant when
// the request named its parties that way.
func toTransactionResponse(result services.TransactionResult, byAccount map[int64]services.Participant) transactionResponse {
	response := transactionResponse{
		TransactionID: result.TransactionID,
		CreatedAt:     result.CreatedAt,
		Idempotent:    result.Idempotent,
	}
	if byAccount == nil {
		response.Entries = make([]entryResponse, 0, len(result.Entries))
		for _, entry := range result.Entries {
			response.Entries = append(response.Entries, entryResponse{
				AccountID:    entry.AccountID,
				Amount:       entry.Delta,
				BalanceAfter: entry.BalanceAfter,
			})
		}
		return response
	}
	response.Participants = make([]participantResponse, 0, len(result.Entries))
	for _, entry := range result.Entries {
		participant, ok := byAccount[entry.AccountID]
		if !ok {
			accountID := entry.AccountID
			participant = services.Participant{Kind: services.ParticipantAccount, AccountID: &accountID}
		}
		participant.Amount = entry.Delta
		response.Participants = append(response.Participants, participantResponse{
			Participant:  participant,
			BalanceAfter: entry.BalanceAfter,
		})
	}
	return response
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	hasEntries := len(req.Entries) > 0
	hasParticipants := len(req.Participants) > 0
	if hasEntries && hasParticipants {
		badRequest(w, "provide either entries or participants, not both")
		return
	}
	if !hasEntries && !hasParticipants {
		badRequest(w, "either entries or participants is required")
		return
	}

	var (
		entries   []services.Entry
		byAccount map[int64]services.Participant
	)
	if hasEntries {
		entries = make([]services.Entry, 0, len(req.Entries))
		for _, entry := range req.Entries {
			entries = append(entries, services.Entry{AccountID: *entry.AccountID, Amount: *entry.Amount})
		}
	} else {
		var err error
		entries, byAccount, err = h.accounts.ResolveParticipants(r.Context(), req.Participants)
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
	}

	postReq := services.TransactionRequest{
		CreatedBy:      *req.CreatedBy,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
		ReversesTxnID:  req.ReversesTxnID,
		Entries:        entries,
	}
	if req.Source != nil {
		postReq.Source = &services.Source{Table: req.Source.Table, ID: *req.Source.ID}
	}
	result, err := h.transactions.PostTransaction(r.Context(), middleware.ServiceNameFromContext(r.Context()), postReq)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, postedStatus(result), toTransactionResponse(result, byAccount))
}

func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	txnID, err := int64Param(r, "txnId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req reverseTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	result, err := h.transactions.ReverseTransaction(r.Context(), middleware.ServiceNameFromContext(r.Context()), services.ReverseRequest{
		TransactionID:  txnID,
		CreatedBy:      *req.CreatedBy,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, postedStatus(result), toTransactionResponse(result, nil))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txnID, err := int64Param(r, "txnId")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	detail, err := h.audit.GetTransaction(r.Context(), txnID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func postedStatus(result services.TransactionResult) int {
	if result.Idempotent {
		return http.StatusOK
	}
	return http.StatusCreated
}
