/**
 * @description
 * This file contains the core business logic for the settlement-service: the
 * protocol engine that drives the per-reference state machine
 * NONE → LOCKED → SETTLED → REVERSED (credits run their own NONE → CREDITED
 * chain). The `Service` struct orchestrates the account ledger, the connection
 * token store, the append-only transaction log, the signing key store, and the
 * settlement event producer.
 *
 * Key features:
 * - Two-phase debit: a non-binding lock followed by an exact-match confirmation.
 * - Idempotent settlement: a DEBIT, CREDIT, or REVERSAL that already exists for
 *   a reference id is replayed from the stored record instead of re-applied, so
 *   a retried confirm can never double-debit.
 * - Deterministic proof signing: proofs are structs marshaled in declaration
 *   order, so the counterparty can reproduce the exact signed bytes for audit.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For token generation.
 * - internal/domain, internal/keys, internal/store: Models, keys, data access.
 * - pkg/protocolsig, pkg/rabbitmq: Signing primitives and event publication.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dfcbank/settlement-service/internal/domain"
	"github.com/dfcbank/settlement-service/internal/keys"
	"github.com/dfcbank/settlement-service/internal/store"
	"github.com/dfcbank/settlement-service/pkg/protocolsig"
	"github.com/dfcbank/settlement-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

const tokenTTL = 24 * time.Hour

var (
	// ErrInvalidToken covers both an unknown and an expired connection token;
	// callers must not be able to distinguish the two cases.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInvalidLockConfirmation is returned when the confirm phase does not
	// carry the exact lock id issued for its reference.
	ErrInvalidLockConfirmation = errors.New("invalid lock confirmation")
	// ErrDebitNotFound is returned when a reversal names a reference with no
	// confirmed debit.
	ErrDebitNotFound = errors.New("debit transaction not found")
	// ErrChallengeRejected is returned when the auth challenge response fails
	// verification.
	ErrChallengeRejected = errors.New("challenge response rejected")
)

// Service provides the core business logic of the settlement protocol.
type Service struct {
	repo      store.Repository
	keyStore  *keys.Store
	producer  rabbitmq.Publisher
	challenge ChallengeVerifier
}

// NewService creates a new settlement engine instance. A nil challenge verifier
// falls back to the static verifier; a nil producer disables event publication.
func NewService(repo store.Repository, keyStore *keys.Store, producer rabbitmq.Publisher, challenge ChallengeVerifier) *Service {
	if challenge == nil {
		challenge = &StaticChallengeVerifier{}
	}
	return &Service{
		repo:      repo,
		keyStore:  keyStore,
		producer:  producer,
		challenge: challenge,
	}
}

// DescribeConnection handles a connection-request: it resolves the referenced
// account and returns the challenge the counterparty must relay to the holder.
// No state changes.
func (s *Service) DescribeConnection(ctx context.Context, req domain.ConnectionRequest) (*domain.ChallengeDescriptor, error) {
	account, err := s.repo.FindAccountByNumber(ctx, req.AccountReference)
	if err != nil {
		return nil, err
	}
	return &domain.ChallengeDescriptor{
		ChallengeType: "otp",
		RequiredMetadata: map[string]string{
			"account_number":      account.AccountNumber,
			"account_holder_name": account.UserName,
		},
	}, nil
}

// tokenGrantProof is the exact byte layout signed when a token is granted. The
// counterparty can prove the grant's authenticity to the end user with it.
type tokenGrantProof struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// CompleteAuthChallenge handles an auth-challenge-response: it verifies the
// challenge through the pluggable verifier, issues a connection token bound to
// the user, and signs the grant with the bank key.
func (s *Service) CompleteAuthChallenge(ctx context.Context, req domain.AuthChallengeRequest) (*domain.TokenGrant, error) {
	account, err := s.repo.FindAccountByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.challenge.Verify(ctx, account, req.ChallengeResponse); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeRejected, err)
	}

	token := "CTK-" + uuid.NewString()
	tokenHash := protocolsig.Sha256Hex([]byte(token))
	expiresAt := time.Now().Add(tokenTTL)

	record := &domain.ConnectionToken{
		UserID:    account.UserID,
		TokenHash: tokenHash,
		Token:     token,
		Scope:     domain.DefaultTokenScope,
		ExpiresAt: expiresAt,
	}
	if err := s.repo.CreateConnectionToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist connection token: %w", err)
	}

	signature, err := s.signJSON(tokenGrantProof{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	})
	if err != nil {
		return nil, err
	}

	return &domain.TokenGrant{
		Token:         token,
		TokenHash:     tokenHash,
		Scope:         record.Scope,
		ExpiresAt:     expiresAt,
		BankSignature: signature,
	}, nil
}

// AccountBalance returns the current balance for a connected user. Read-only.
func (s *Service) AccountBalance(ctx context.Context, tokenHash string) (*domain.BalanceInfo, error) {
	account, err := s.validateToken(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	return &domain.BalanceInfo{Balance: account.Balance, Currency: account.Currency}, nil
}

// LockFunds handles the lock phase of a debit-request. The lock is a
// non-binding hold: the balance is untouched and no funds are reserved; only
// the confirm phase moves money.
func (s *Service) LockFunds(ctx context.Context, req domain.DebitRequest) (string, error) {
	account, err := s.validateToken(ctx, req.ConnectionTokenHash)
	if err != nil {
		return "", err
	}
	if err := req.Amount.Validate(); err != nil {
		return "", err
	}

	lockID := fmt.Sprintf("LOCK-%s-%d", req.ReferenceID, time.Now().UnixMilli())
	payload, err := json.Marshal(domain.LockPayload{LockID: lockID})
	if err != nil {
		return "", err
	}

	currency := req.Amount.Currency
	if currency == "" {
		currency = account.Currency
	}
	amount := req.Amount.Value
	record := &domain.Transaction{
		ReferenceID: req.ReferenceID,
		Type:        domain.TransactionLock,
		AccountID:   &account.ID,
		Amount:      &amount,
		Currency:    &currency,
		Payload:     payload,
	}
	if err := s.repo.AppendTransaction(ctx, record); err != nil {
		return "", fmt.Errorf("failed to append lock record: %w", err)
	}

	s.publishEvent(ctx, "settlement.lock.created", record)
	return lockID, nil
}

// ConfirmDebit handles the confirm phase of a debit-request. A reference that
// already holds a DEBIT record is replayed from the log; otherwise the lock id
// must match exactly before the ledger is touched.
func (s *Service) ConfirmDebit(ctx context.Context, req domain.DebitRequest) (*domain.DebitPayload, error) {
	account, err := s.validateToken(ctx, req.ConnectionTokenHash)
	if err != nil {
		return nil, err
	}

	// Idempotent replay: the stored payload is the canonical prior result.
	if existing, err := s.repo.FindTransactionByReferenceAndType(ctx, req.ReferenceID, domain.TransactionDebit); err == nil {
		var prior domain.DebitPayload
		if err := json.Unmarshal(existing.Payload, &prior); err != nil {
			return nil, fmt.Errorf("corrupt debit record for reference %s: %w", req.ReferenceID, err)
		}
		log.Printf("level=info component=engine op=confirm_debit outcome=replayed reference_id=%s", req.ReferenceID)
		return &prior, nil
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, err
	}

	lockRecord, err := s.repo.FindTransactionByReferenceAndType(ctx, req.ReferenceID, domain.TransactionLock)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return nil, ErrInvalidLockConfirmation
		}
		return nil, err
	}
	var lock domain.LockPayload
	if err := json.Unmarshal(lockRecord.Payload, &lock); err != nil {
		return nil, fmt.Errorf("corrupt lock record for reference %s: %w", req.ReferenceID, err)
	}
	if req.LockConfirmationID == "" || lock.LockID != req.LockConfirmationID {
		return nil, ErrInvalidLockConfirmation
	}

	if err := req.Amount.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.repo.DebitAccount(ctx, account.ID, req.Amount.Value); err != nil {
		return nil, err
	}

	proof := domain.DebitProof{
		Amount:      req.Amount.Value,
		AccountHash: protocolsig.Sha256Hex([]byte(account.AccountNumber)),
		Timestamp:   time.Now().UnixMilli(),
	}
	signature, err := s.signJSON(proof)
	if err != nil {
		return nil, err
	}

	result := &domain.DebitPayload{DebitProof: proof, BankSignature: signature}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	currency := req.Amount.Currency
	if currency == "" {
		currency = account.Currency
	}
	amount := req.Amount.Value
	record := &domain.Transaction{
		ReferenceID: req.ReferenceID,
		Type:        domain.TransactionDebit,
		AccountID:   &account.ID,
		Amount:      &amount,
		Currency:    &currency,
		Payload:     payload,
	}
	if err := s.repo.AppendTransaction(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to append debit record: %w", err)
	}

	s.publishEvent(ctx, "settlement.debit.settled", record)
	return result, nil
}

// Credit handles a credit-request: an unconditional credit of a beneficiary
// account, idempotent by reference id.
func (s *Service) Credit(ctx context.Context, req domain.CreditRequest) (*domain.CreditPayload, error) {
	account, err := s.repo.FindAccountByNumber(ctx, req.BeneficiaryReference)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.FindTransactionByReferenceAndType(ctx, req.ReferenceID, domain.TransactionCredit); err == nil {
		var prior domain.CreditPayload
		if err := json.Unmarshal(existing.Payload, &prior); err != nil {
			return nil, fmt.Errorf("corrupt credit record for reference %s: %w", req.ReferenceID, err)
		}
		log.Printf("level=info component=engine op=credit outcome=replayed reference_id=%s", req.ReferenceID)
		return &prior, nil
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, err
	}

	if err := req.Amount.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreditAccount(ctx, account.ID, req.Amount.Value); err != nil {
		return nil, err
	}

	confirmation := domain.CreditConfirmation{
		Amount:          req.Amount.Value,
		BeneficiaryHash: protocolsig.Sha256Hex([]byte(account.AccountNumber)),
		Timestamp:       time.Now().UnixMilli(),
	}
	signature, err := s.signJSON(confirmation)
	if err != nil {
		return nil, err
	}

	result := &domain.CreditPayload{CreditConfirmation: confirmation, BankSignature: signature}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	currency := req.Amount.Currency
	if currency == "" {
		currency = account.Currency
	}
	amount := req.Amount.Value
	record := &domain.Transaction{
		ReferenceID: req.ReferenceID,
		Type:        domain.TransactionCredit,
		AccountID:   &account.ID,
		Amount:      &amount,
		Currency:    &currency,
		Payload:     payload,
	}
	if err := s.repo.AppendTransaction(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to append credit record: %w", err)
	}

	s.publishEvent(ctx, "settlement.credit.settled", record)
	return result, nil
}

// TransactionStatus returns the latest recorded state for a reference id, or
// UNKNOWN when the reference has never been seen.
func (s *Service) TransactionStatus(ctx context.Context, referenceID string) (string, error) {
	tx, err := s.repo.FindLatestTransactionByReference(ctx, referenceID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return domain.StateUnknown, nil
		}
		return "", err
	}
	return string(tx.Type), nil
}

// Reverse handles a reversal-request: it restores the debited account's
// pre-debit balance and appends a REVERSAL record. Idempotent by reference id.
func (s *Service) Reverse(ctx context.Context, req domain.ReversalRequest) (*domain.ReversalPayload, error) {
	if existing, err := s.repo.FindTransactionByReferenceAndType(ctx, req.ReferenceID, domain.TransactionReversal); err == nil {
		var prior domain.ReversalPayload
		if err := json.Unmarshal(existing.Payload, &prior); err != nil {
			return nil, fmt.Errorf("corrupt reversal record for reference %s: %w", req.ReferenceID, err)
		}
		log.Printf("level=info component=engine op=reverse outcome=replayed reference_id=%s", req.ReferenceID)
		return &prior, nil
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, err
	}

	debitRecord, err := s.repo.FindTransactionByReferenceAndType(ctx, req.ReferenceID, domain.TransactionDebit)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return nil, ErrDebitNotFound
		}
		return nil, err
	}
	if debitRecord.AccountID == nil || debitRecord.Amount == nil {
		return nil, fmt.Errorf("debit record for reference %s is missing account or amount", req.ReferenceID)
	}

	account, err := s.repo.FindAccountByID(ctx, *debitRecord.AccountID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreditAccount(ctx, account.ID, *debitRecord.Amount); err != nil {
		return nil, err
	}

	confirmation := domain.ReversalConfirmation{
		ReferenceID:    req.ReferenceID,
		ReversedAmount: *debitRecord.Amount,
		Timestamp:      time.Now().UnixMilli(),
	}
	signature, err := s.signJSON(confirmation)
	if err != nil {
		return nil, err
	}

	result := &domain.ReversalPayload{ReversalConfirmation: confirmation, BankSignature: signature}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	record := &domain.Transaction{
		ReferenceID: req.ReferenceID,
		Type:        domain.TransactionReversal,
		AccountID:   &account.ID,
		Amount:      debitRecord.Amount,
		Currency:    debitRecord.Currency,
		Payload:     payload,
	}
	if err := s.repo.AppendTransaction(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to append reversal record: %w", err)
	}

	s.publishEvent(ctx, "settlement.reversal.settled", record)
	return result, nil
}

// validateToken resolves a connection token hash to its bound account. Unknown
// and expired tokens are deliberately indistinguishable to the caller.
func (s *Service) validateToken(ctx context.Context, tokenHash string) (*domain.Account, error) {
	if tokenHash == "" {
		return nil, ErrInvalidToken
	}
	token, err := s.repo.FindConnectionTokenByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if time.Now().After(token.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return s.repo.FindAccountByUserID(ctx, token.UserID)
}

// signJSON signs the JSON encoding of v with the bank private key. Struct field
// order fixes the byte layout, so the signature is reproducible from the same
// values.
func (s *Service) signJSON(v interface{}) (string, error) {
	message, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	privateKey, err := s.keyStore.PrivateKey()
	if err != nil {
		return "", err
	}
	return protocolsig.Sign(string(message), privateKey)
}

// publishEvent announces a settled phase. Event publication is best-effort;
// settlement never fails because the broker is down.
func (s *Service) publishEvent(ctx context.Context, routingKey string, record *domain.Transaction) {
	if s.producer == nil {
		return
	}
	event := rabbitmq.SettlementEvent{
		ReferenceID: record.ReferenceID,
		Type:        string(record.Type),
		Timestamp:   time.Now(),
	}
	if record.AccountID != nil {
		event.AccountID = record.AccountID.String()
	}
	if record.Amount != nil {
		event.Amount = *record.Amount
	}
	if record.Currency != nil {
		event.Currency = *record.Currency
	}
	if err := s.producer.PublishSettlementEvent(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=engine msg=\"settlement event publish failed\" routing_key=%s reference_id=%s err=%v", routingKey, record.ReferenceID, err)
	}
}
