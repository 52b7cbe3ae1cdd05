/**
 * @description
 * This file defines the core domain models for the settlement-service.
 * These structs represent the bank-side entities of the interbank transfer
 * protocol: accounts, connection tokens, and the append-only transaction log.
 *
 * @notes
 * - Balances and amounts are `int64` in the smallest currency unit, which avoids
 *   floating-point inaccuracies with financial data.
 * - Transaction log payloads are a tagged variant: the `Type` field selects which
 *   payload struct the JSON `Payload` column decodes into.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType identifies which protocol phase a log record belongs to.
type TransactionType string

const (
	TransactionLock     TransactionType = "LOCK"
	TransactionDebit    TransactionType = "DEBIT"
	TransactionCredit   TransactionType = "CREDIT"
	TransactionReversal TransactionType = "REVERSAL"
)

// StateUnknown is returned by status queries when no record exists for a reference.
const StateUnknown = "UNKNOWN"

// DefaultTokenScope is the permission scope granted to every connection token.
const DefaultTokenScope = "debit-enabled"

// Account represents a customer ledger account held at this bank.
// This struct maps directly to the `accounts` table.
type Account struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"user_id"`
	UserName      string    `json:"user_name"`
	AccountNumber string    `json:"account_number"`
	Balance       int64     `json:"balance"` // in minor currency units
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ConnectionToken represents a bearer credential issued to the counterparty after
// a completed auth challenge. Only the hash is ever compared; the raw token is
// bearer material shown once and retained for the admin view.
type ConnectionToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	Token     string    `json:"token"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is one append-only protocol event. Multiple records may share a
// ReferenceID (one per phase); the set is the authoritative history for that
// reference. Records are never updated or deleted.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	ReferenceID string          `json:"reference_id"`
	Type        TransactionType `json:"type"`
	AccountID   *uuid.UUID      `json:"account_id,omitempty"`
	Amount      *int64          `json:"amount,omitempty"`
	Currency    *string         `json:"currency,omitempty"`
	Payload     []byte          `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LockPayload is the stored payload of a LOCK record.
type LockPayload struct {
	LockID string `json:"lockId"`
}

// DebitProof is the signed evidence returned for a confirmed debit. Field order
// is the byte order of the signed JSON; do not reorder.
type DebitProof struct {
	Amount      int64  `json:"amount"`
	AccountHash string `json:"account_hash"`
	Timestamp   int64  `json:"timestamp"`
}

// DebitPayload is the stored payload of a DEBIT record.
type DebitPayload struct {
	DebitProof    DebitProof `json:"debitProof"`
	BankSignature string     `json:"bankSignature"`
}

// CreditConfirmation is the signed evidence returned for a credit. Field order is
// the byte order of the signed JSON; do not reorder.
type CreditConfirmation struct {
	Amount          int64  `json:"amount"`
	BeneficiaryHash string `json:"beneficiary_hash"`
	Timestamp       int64  `json:"timestamp"`
}

// CreditPayload is the stored payload of a CREDIT record.
type CreditPayload struct {
	CreditConfirmation CreditConfirmation `json:"creditConfirmation"`
	BankSignature      string             `json:"bankSignature"`
}

// ReversalConfirmation is the signed evidence returned for a reversal. Field
// order is the byte order of the signed JSON; do not reorder.
type ReversalConfirmation struct {
	ReferenceID    string `json:"reference_id"`
	ReversedAmount int64  `json:"reversed_amount"`
	Timestamp      int64  `json:"timestamp"`
}

// ReversalPayload is the stored payload of a REVERSAL record.
type ReversalPayload struct {
	ReversalConfirmation ReversalConfirmation `json:"reversalConfirmation"`
	BankSignature        string               `json:"bankSignature"`
}

// TokenGrant is the result of a successful auth challenge: the raw token handed
// to the counterparty plus the bank's signature over {token, expiresAt}.
type TokenGrant struct {
	Token         string
	TokenHash     string
	Scope         string
	ExpiresAt     time.Time
	BankSignature string
}

// ChallengeDescriptor describes the authentication challenge the counterparty
// must relay to the account holder.
type ChallengeDescriptor struct {
	ChallengeType    string            `json:"challenge_type"`
	RequiredMetadata map[string]string `json:"required_metadata"`
}

// BalanceInfo is the read-only balance view returned to a connected counterparty.
type BalanceInfo struct {
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}

// ConfigEntry is one row of the bank_config key/value table.
type ConfigEntry struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
