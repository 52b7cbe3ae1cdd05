/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the settlement-service: the account
 * ledger, connection token persistence, the append-only transaction log, and the
 * runtime configuration table. The interface decouples the protocol engine from
 * the PostgreSQL implementation and lets tests substitute stateful stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For record identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/dfcbank/settlement-service/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account ledger methods
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	FindAccountByUserID(ctx context.Context, userID string) (*domain.Account, error)
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	// DebitAccount atomically deducts amount from the account and returns the
	// pre-debit balance needed to build a proof. The read-check-write runs
	// inside one database transaction holding a row lock, so two concurrent
	// debits of the same account cannot interleave.
	DebitAccount(ctx context.Context, accountID uuid.UUID, amount int64) (previousBalance int64, err error)
	CreditAccount(ctx context.Context, accountID uuid.UUID, amount int64) error

	// Connection token methods
	CreateConnectionToken(ctx context.Context, token *domain.ConnectionToken) error
	FindConnectionTokenByHash(ctx context.Context, tokenHash string) (*domain.ConnectionToken, error)
	ListConnectionTokens(ctx context.Context) ([]domain.ConnectionToken, error)
	DeleteExpiredConnectionTokens(ctx context.Context, now time.Time) (int64, error)

	// Transaction log methods (append-only; no update or delete exists)
	AppendTransaction(ctx context.Context, tx *domain.Transaction) error
	FindLatestTransactionByReference(ctx context.Context, referenceID string) (*domain.Transaction, error)
	FindTransactionByReferenceAndType(ctx context.Context, referenceID string, txType domain.TransactionType) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	CountStaleLocks(ctx context.Context, olderThan time.Time) (int64, error)

	// Runtime configuration methods
	GetAllConfig(ctx context.Context) (map[string]string, error)
	SetConfigValue(ctx context.Context, key, value string, description *string) error
	ListConfig(ctx context.Context) ([]domain.ConfigEntry, error)
}
