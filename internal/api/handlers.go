/**
 * @description
 * This file contains the HTTP handlers for the counterparty-facing settlement
 * endpoints. Handlers parse the signed request, call the appropriate method on
 * the application service, map service errors onto the protocol's HTTP status
 * taxonomy, and write the wire-format response.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/keys, internal/store: Service
 *   logic, wire DTOs, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/dfcbank/settlement-service/internal/app"
	"github.com/dfcbank/settlement-service/internal/domain"
	"github.com/dfcbank/settlement-service/internal/keys"
	"github.com/dfcbank/settlement-service/internal/store"
)

// SettlementHandlers holds the application service that handlers will use.
type SettlementHandlers struct {
	service  *app.Service
	bankName func() string
}

// NewSettlementHandlers creates a new instance of SettlementHandlers. bankName
// is resolved per request so runtime config changes show up without a restart.
func NewSettlementHandlers(service *app.Service, bankName func() string) *SettlementHandlers {
	return &SettlementHandlers{service: service, bankName: bankName}
}

type signedProofResponse struct {
	Amount        int64  `json:"amount"`
	AccountHash   string `json:"account_hash"`
	Timestamp     int64  `json:"timestamp"`
	BankSignature string `json:"bank_signature"`
}

type creditConfirmationResponse struct {
	Amount          int64  `json:"amount"`
	BeneficiaryHash string `json:"beneficiary_hash"`
	Timestamp       int64  `json:"timestamp"`
	BankSignature   string `json:"bank_signature"`
}

type reversalConfirmationResponse struct {
	ReferenceID    string `json:"reference_id"`
	ReversedAmount int64  `json:"reversed_amount"`
	Timestamp      int64  `json:"timestamp"`
	BankSignature  string `json:"bank_signature"`
}

// HealthHandler reports liveness and the bank identity behind this endpoint.
func (h *SettlementHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"bank":   h.bankName(),
	})
}

// ConnectionRequestHandler handles connection-request: it resolves the account
// reference and describes the challenge the counterparty must relay.
func (h *SettlementHandlers) ConnectionRequestHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	descriptor, err := h.service.DescribeConnection(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "connection_request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"challenge_type":    descriptor.ChallengeType,
		"required_metadata": descriptor.RequiredMetadata,
	})
}

// AuthChallengeHandler handles auth-challenge-response: on success it returns
// the signed connection token grant.
func (h *SettlementHandlers) AuthChallengeHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.AuthChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	grant, err := h.service.CompleteAuthChallenge(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "auth_challenge", err)
		return
	}
	log.Printf("level=info component=api endpoint=auth_challenge outcome=granted user_id=%s scope=%s", req.UserID, grant.Scope)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connection_token": grant.Token,
		"expiry_timestamp": grant.ExpiresAt.UnixMilli(),
		"scope":            grant.Scope,
		"bank_signature":   grant.BankSignature,
	})
}

// AccountBalanceHandler handles account-balance. The token hash arrives as a
// query parameter because the request is a signed GET.
func (h *SettlementHandlers) AccountBalanceHandler(w http.ResponseWriter, r *http.Request) {
	tokenHash := r.URL.Query().Get("connection_token_hash")

	info, err := h.service.AccountBalance(r.Context(), tokenHash)
	if err != nil {
		h.writeServiceError(w, "account_balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance":  info.Balance,
		"currency": info.Currency,
	})
}

// DebitRequestHandler handles both phases of debit-request. Phase "lock"
// creates the non-binding hold; any other phase confirms it.
func (h *SettlementHandlers) DebitRequestHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.DebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ReferenceID == "" {
		h.writeError(w, http.StatusBadRequest, "reference_id is required")
		return
	}

	if req.Phase == "lock" {
		lockID, err := h.service.LockFunds(r.Context(), req)
		if err != nil {
			h.writeServiceError(w, "debit_lock", err)
			return
		}
		log.Printf("level=info component=api endpoint=debit_request phase=lock outcome=locked reference_id=%s", req.ReferenceID)
		h.writeJSON(w, http.StatusOK, map[string]string{"lock_confirmation_id": lockID})
		return
	}

	result, err := h.service.ConfirmDebit(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "debit_confirm", err)
		return
	}
	log.Printf("level=info component=api endpoint=debit_request phase=confirm outcome=settled reference_id=%s amount=%d", req.ReferenceID, result.DebitProof.Amount)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"debit_proof": signedProofResponse{
			Amount:        result.DebitProof.Amount,
			AccountHash:   result.DebitProof.AccountHash,
			Timestamp:     result.DebitProof.Timestamp,
			BankSignature: result.BankSignature,
		},
	})
}

// CreditRequestHandler handles credit-request.
func (h *SettlementHandlers) CreditRequestHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ReferenceID == "" {
		h.writeError(w, http.StatusBadRequest, "reference_id is required")
		return
	}

	result, err := h.service.Credit(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "credit_request", err)
		return
	}
	log.Printf("level=info component=api endpoint=credit_request outcome=settled reference_id=%s amount=%d", req.ReferenceID, result.CreditConfirmation.Amount)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"credit_confirmation": creditConfirmationResponse{
			Amount:          result.CreditConfirmation.Amount,
			BeneficiaryHash: result.CreditConfirmation.BeneficiaryHash,
			Timestamp:       result.CreditConfirmation.Timestamp,
			BankSignature:   result.BankSignature,
		},
	})
}

// TransactionStatusHandler handles transaction-status.
func (h *SettlementHandlers) TransactionStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	state, err := h.service.TransactionStatus(r.Context(), req.ReferenceID)
	if err != nil {
		h.writeServiceError(w, "transaction_status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"state": state})
}

// ReversalRequestHandler handles reversal-request.
func (h *SettlementHandlers) ReversalRequestHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ReversalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ReferenceID == "" {
		h.writeError(w, http.StatusBadRequest, "reference_id is required")
		return
	}

	result, err := h.service.Reverse(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "reversal_request", err)
		return
	}
	log.Printf("level=info component=api endpoint=reversal_request outcome=settled reference_id=%s amount=%d", req.ReferenceID, result.ReversalConfirmation.ReversedAmount)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"reversal_confirmation": reversalConfirmationResponse{
			ReferenceID:    result.ReversalConfirmation.ReferenceID,
			ReversedAmount: result.ReversalConfirmation.ReversedAmount,
			Timestamp:      result.ReversalConfirmation.Timestamp,
			BankSignature:  result.BankSignature,
		},
	})
}

// writeServiceError maps service and store errors onto the protocol's HTTP
// status taxonomy.
func (h *SettlementHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, app.ErrDebitNotFound):
		h.writeError(w, http.StatusNotFound, "Debit transaction not found")
	case errors.Is(err, app.ErrInvalidToken):
		h.writeError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, app.ErrChallengeRejected):
		h.writeError(w, http.StatusUnauthorized, "Challenge response rejected")
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusBadRequest, "Insufficient funds")
	case errors.Is(err, app.ErrInvalidLockConfirmation):
		h.writeError(w, http.StatusBadRequest, "Invalid lock confirmation")
	case errors.Is(err, domain.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
	case errors.Is(err, keys.ErrKeyNotFound):
		h.writeError(w, http.StatusServiceUnavailable, "Signing key unavailable")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unexpected error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses with a given status code.
func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
