package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"

	"blertbank/internal/services"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
)

const (
	codeBadRequest         = "BAD_REQUEST"
	codeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	codeTransactionMissing = "TRANSACTION_NOT_FOUND"
	codeAlreadyReversed    = "ALREADY_REVERSED"
	codeInternal           = "INTERNAL_ERROR"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}

func badRequest(w http.ResponseWriter, message string) {
	respondError(w, http.StatusBadRequest, codeBadRequest, message)
}

// respondServiceError maps a service failure onto the API error contract.
// Anything unrecognised is logged, reported and answered with a generic 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var txnErr *services.TransactionError
	switch {
	case errors.As(err, &txnErr):
		status := http.StatusBadRequest
		if txnErr.Code == services.CodeInsufficientFunds {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, txnErr.Code, txnErr.Message)
	case errors.Is(err, services.ErrInvalidParticipant):
		badRequest(w, err.Error())
	case errors.Is(err, services.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, codeAccountNotFound, err.Error())
	case errors.Is(err, services.ErrTransactionNotFound):
		respondError(w, http.StatusNotFound, codeTransactionMissing, err.Error())
	case errors.Is(err, services.ErrAlreadyReversed):
		respondError(w, http.StatusConflict, codeAlreadyReversed, err.Error())
	default:
		h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
		respondError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

// decodeJSON reads a single JSON document into dst, rejecting type
// mismatches such as fractional or quoted ids.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if typeErr.Type != nil && typeErr.Type.Kind() == reflect.Int64 {
				return errors.New(typeErr.Field + " must be an integer")
			}
			return errors.New(typeErr.Field + " is invalid")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	value, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return value, nil
}
