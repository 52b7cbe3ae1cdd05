/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL for the account ledger, connection tokens, the
 * append-only transaction log, and the bank_config key/value table.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/dfcbank/settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrTokenNotFound          = errors.New("connection token not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrDuplicateAccountNumber = errors.New("account number already exists")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, user_id, user_name, account_number, balance, currency, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.UserName,
		&account.AccountNumber,
		&account.Balance,
		&account.Currency,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByNumber retrieves an account by its external account number.
func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountNumber))
}

// FindAccountByUserID retrieves an account by the user identity it belongs to.
func (r *PostgresRepository) FindAccountByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, userID))
}

// FindAccountByID retrieves an account by its primary key.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

// CreateAccount inserts a new account row. A duplicate account number maps to
// ErrDuplicateAccountNumber so the admin API can answer 409.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	query := `
		INSERT INTO accounts (id, user_id, user_name, account_number, balance, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		account.ID, account.UserID, account.UserName, account.AccountNumber, account.Balance, account.Currency,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateAccountNumber
		}
		return nil, err
	}
	return account, nil
}

// ListAccounts returns all accounts, newest first (admin view).
func (r *PostgresRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(
			&account.ID, &account.UserID, &account.UserName, &account.AccountNumber,
			&account.Balance, &account.Currency, &account.CreatedAt, &account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// DebitAccount performs an atomic debit on an account. The row lock serializes
// concurrent debits against the same account; the balance check and write
// cannot interleave with another handler's read-modify-write.
func (r *PostgresRepository) DebitAccount(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", accountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	if balance < amount {
		return 0, ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE id = $2", amount, accountID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return balance, nil
}

// CreditAccount performs an atomic credit on an account. The single conditional
// update is race-free; no explicit lock is needed.
func (r *PostgresRepository) CreditAccount(ctx context.Context, accountID uuid.UUID, amount int64) error {
	tag, err := r.db.Exec(ctx, "UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2", amount, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreateConnectionToken persists a newly issued connection token.
func (r *PostgresRepository) CreateConnectionToken(ctx context.Context, token *domain.ConnectionToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	query := `
		INSERT INTO connection_tokens (id, user_id, token_hash, token, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.Token, token.Scope, token.ExpiresAt,
	).Scan(&token.CreatedAt)
}

// FindConnectionTokenByHash looks a token up by its stored hash. The raw token
// is never used as a lookup key.
func (r *PostgresRepository) FindConnectionTokenByHash(ctx context.Context, tokenHash string) (*domain.ConnectionToken, error) {
	var token domain.ConnectionToken
	query := `
		SELECT id, user_id, token_hash, token, scope, expires_at, created_at
		FROM connection_tokens
		WHERE token_hash = $1
	`
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.Token, &token.Scope, &token.ExpiresAt, &token.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

// ListConnectionTokens returns all tokens, newest first (admin view).
func (r *PostgresRepository) ListConnectionTokens(ctx context.Context) ([]domain.ConnectionToken, error) {
	query := `
		SELECT id, user_id, token_hash, token, scope, expires_at, created_at
		FROM connection_tokens
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.ConnectionToken
	for rows.Next() {
		var token domain.ConnectionToken
		if err := rows.Scan(
			&token.ID, &token.UserID, &token.TokenHash, &token.Token, &token.Scope, &token.ExpiresAt, &token.CreatedAt,
		); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// DeleteExpiredConnectionTokens removes tokens past their expiry. Run by the
// scheduled cleanup job; the protocol itself only ever compares expiry by time.
func (r *PostgresRepository) DeleteExpiredConnectionTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM connection_tokens WHERE expires_at < $1", now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// AppendTransaction inserts one protocol event. Pure insert: dedup is the
// engine's responsibility, not the log's.
func (r *PostgresRepository) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	query := `
		INSERT INTO bank_transactions (id, reference_id, type, account_id, amount, currency, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		tx.ID, tx.ReferenceID, string(tx.Type), tx.AccountID, tx.Amount, tx.Currency, tx.Payload,
	).Scan(&tx.CreatedAt)
}

const transactionColumns = `id, reference_id, type, account_id, amount, currency, payload, created_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID, &tx.ReferenceID, &tx.Type, &tx.AccountID, &tx.Amount, &tx.Currency, &tx.Payload, &tx.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// FindLatestTransactionByReference returns the most recently created record for
// a reference id, regardless of type.
func (r *PostgresRepository) FindLatestTransactionByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM bank_transactions WHERE reference_id = $1 ORDER BY created_at DESC LIMIT 1`
	return scanTransaction(r.db.QueryRow(ctx, query, referenceID))
}

// FindTransactionByReferenceAndType re-fetches a specific phase record, e.g. the
// LOCK for a confirm or the DEBIT for a reversal.
func (r *PostgresRepository) FindTransactionByReferenceAndType(ctx context.Context, referenceID string, txType domain.TransactionType) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM bank_transactions WHERE reference_id = $1 AND type = $2 ORDER BY created_at DESC LIMIT 1`
	return scanTransaction(r.db.QueryRow(ctx, query, referenceID, string(txType)))
}

// ListTransactions returns the most recent protocol events (admin view).
func (r *PostgresRepository) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + transactionColumns + ` FROM bank_transactions ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.ID, &tx.ReferenceID, &tx.Type, &tx.AccountID, &tx.Amount, &tx.Currency, &tx.Payload, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// CountStaleLocks counts LOCK records older than the cutoff whose reference id
// never reached a DEBIT. Surfaced by the scheduled job so abandoned holds are
// visible to operators.
func (r *PostgresRepository) CountStaleLocks(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM bank_transactions l
		WHERE l.type = 'LOCK'
		  AND l.created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM bank_transactions d
			WHERE d.reference_id = l.reference_id AND d.type = 'DEBIT'
		  )
	`
	var count int64
	if err := r.db.QueryRow(ctx, query, olderThan).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetAllConfig loads the bank_config table as a key/value map. Read once at
// process start and cached by the runtime configuration layer.
func (r *PostgresRepository) GetAllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, "SELECT key, value FROM bank_config")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

// SetConfigValue upserts one configuration row.
func (r *PostgresRepository) SetConfigValue(ctx context.Context, key, value string, description *string) error {
	query := `
		INSERT INTO bank_config (key, value, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    description = COALESCE(EXCLUDED.description, bank_config.description),
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, key, value, description)
	return err
}

// ListConfig returns all configuration rows (admin view).
func (r *PostgresRepository) ListConfig(ctx context.Context) ([]domain.ConfigEntry, error) {
	rows, err := r.db.Query(ctx, "SELECT key, value, description, created_at, updated_at FROM bank_config ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ConfigEntry
	for rows.Next() {
		var entry domain.ConfigEntry
		if err := rows.Scan(&entry.Key, &entry.Value, &entry.Description, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
