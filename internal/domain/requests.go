/**
 * @description
 * This file defines the wire DTOs for the counterparty-facing protocol endpoints.
 * Shapes mirror the interbank wire contract exactly; amounts arrive either as a
 * bare integer or as an `{value, currency}` object, handled by the Amount type.
 */

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned when a wire amount is missing, non-numeric, or
// not a positive integer in minor units.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount decodes the protocol's two accepted amount encodings: a bare number
// (minor units) or an object {"value": n, "currency": "UGX"}.
type Amount struct {
	Value    int64
	Currency string
}

// UnmarshalJSON accepts either a JSON number or an amount object.
func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return ErrInvalidAmount
	}

	if trimmed[0] != '{' {
		// Bare scalar. Accept integers only; a fractional amount in minor units
		// is a caller error, not something to round.
		unquoted := strings.Trim(trimmed, `"`)
		value, err := strconv.ParseInt(unquoted, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidAmount, trimmed)
		}
		a.Value = value
		return nil
	}

	var obj struct {
		Value    json.Number `json:"value"`
		Currency string      `json:"currency"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	value, err := obj.Value.Int64()
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, obj.Value.String())
	}
	a.Value = value
	a.Currency = obj.Currency
	return nil
}

// Validate rejects non-positive amounts before they reach the ledger.
func (a Amount) Validate() error {
	if a.Value <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ConnectionRequest initiates a user bank connection.
type ConnectionRequest struct {
	UserID           string `json:"user_id"`
	AccountReference string `json:"account_reference"`
}

// AuthChallengeRequest completes the OTP challenge for a user.
type AuthChallengeRequest struct {
	UserID            string `json:"user_id"`
	ChallengeResponse string `json:"challenge_response"`
}

// DebitRequest covers both phases of the two-phase debit. Phase "lock" creates
// the hold; any other phase value confirms it.
type DebitRequest struct {
	ReferenceID         string `json:"reference_id"`
	Phase               string `json:"phase"`
	LockConfirmationID  string `json:"lock_confirmation_id"`
	Amount              Amount `json:"amount"`
	ConnectionTokenHash string `json:"connection_token_hash"`
	IdempotencyKey      string `json:"idempotency_key"`
}

// CreditRequest credits a beneficiary account.
type CreditRequest struct {
	ReferenceID          string `json:"reference_id"`
	BeneficiaryReference string `json:"beneficiary_reference"`
	Amount               Amount `json:"amount"`
	DebitProofHash       string `json:"debit_proof_hash"`
	IdempotencyKey       string `json:"idempotency_key"`
}

// StatusRequest queries the latest state of a protocol reference.
type StatusRequest struct {
	ReferenceID string `json:"reference_id"`
}

// ReversalRequest reverses a previously confirmed debit.
type ReversalRequest struct {
	ReferenceID    string `json:"reference_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// CreateAccountRequest is the admin DTO for provisioning a new account.
type CreateAccountRequest struct {
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	AccountNumber  string `json:"accountNumber"`
	InitialBalance int64  `json:"initialBalance"`
	Currency       string `json:"currency"`
}
