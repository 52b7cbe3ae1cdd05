/**
 * @description
 * This file contains the HTTP handlers for the bank-internal admin surface:
 * account provisioning, transaction log inspection, connection token listing,
 * runtime configuration, and signing key rotation. These endpoints are guarded
 * by the internal API key middleware and are never exposed to the counterparty.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http, time: Standard Go libraries.
 * - github.com/go-chi/chi/v5, github.com/google/uuid: Routing and identifiers.
 * - internal/config, internal/domain, internal/keys, internal/store,
 *   pkg/directoryclient: Runtime config, models, key store, data access, and
 *   the protocol directory client.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dfcbank/settlement-service/internal/config"
	"github.com/dfcbank/settlement-service/internal/domain"
	"github.com/dfcbank/settlement-service/internal/keys"
	"github.com/dfcbank/settlement-service/internal/store"
	"github.com/dfcbank/settlement-service/pkg/directoryclient"
	"github.com/dfcbank/settlement-service/pkg/protocolsig"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const transactionListLimit = 100

// AdminHandlers holds the dependencies for the bank-internal admin endpoints.
type AdminHandlers struct {
	repo      store.Repository
	runtime   *config.RuntimeConfig
	keyStore  *keys.Store
	directory *directoryclient.Client
}

// NewAdminHandlers creates a new instance of AdminHandlers.
func NewAdminHandlers(repo store.Repository, runtime *config.RuntimeConfig, keyStore *keys.Store, directory *directoryclient.Client) *AdminHandlers {
	return &AdminHandlers{repo: repo, runtime: runtime, keyStore: keyStore, directory: directory}
}

// ListAccountsHandler returns every ledger account.
func (h *AdminHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.repo.ListAccounts(r.Context())
	if err != nil {
		log.Printf("level=error component=admin endpoint=list_accounts err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve accounts")
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// CreateAccountHandler provisions a new ledger account.
func (h *AdminHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.UserName) == "" || strings.TrimSpace(req.AccountNumber) == "" {
		h.writeError(w, http.StatusBadRequest, "userId, userName and accountNumber are required")
		return
	}
	if req.InitialBalance < 0 {
		h.writeError(w, http.StatusBadRequest, "initialBalance must not be negative")
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "UGX"
	}
	account, err := h.repo.CreateAccount(r.Context(), &domain.Account{
		UserID:        req.UserID,
		UserName:      req.UserName,
		AccountNumber: req.AccountNumber,
		Balance:       req.InitialBalance,
		Currency:      currency,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateAccountNumber) {
			h.writeError(w, http.StatusConflict, "Account number already exists")
			return
		}
		log.Printf("level=error component=admin endpoint=create_account err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not create account")
		return
	}
	log.Printf("level=info component=admin endpoint=create_account outcome=created account_number=%s", account.AccountNumber)
	h.writeJSON(w, http.StatusCreated, account)
}

// AccountBalanceHandler returns the balance of a single account by id.
func (h *AdminHandlers) AccountBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	account, err := h.repo.FindAccountByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=admin endpoint=account_balance err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve account")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": account.ID,
		"balance":    account.Balance,
		"currency":   account.Currency,
	})
}

// ListTransactionsHandler returns the most recent protocol log records.
func (h *AdminHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.repo.ListTransactions(r.Context(), transactionListLimit)
	if err != nil {
		log.Printf("level=error component=admin endpoint=list_transactions err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve transactions")
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

type connectionTokenView struct {
	domain.ConnectionToken
	IsExpired bool `json:"is_expired"`
}

// ListConnectionTokensHandler returns every issued connection token with its
// computed expiry state.
func (h *AdminHandlers) ListConnectionTokensHandler(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.repo.ListConnectionTokens(r.Context())
	if err != nil {
		log.Printf("level=error component=admin endpoint=list_connection_tokens err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve connection tokens")
		return
	}

	now := time.Now()
	views := make([]connectionTokenView, 0, len(tokens))
	for _, token := range tokens {
		views = append(views, connectionTokenView{
			ConnectionToken: token,
			IsExpired:       now.After(token.ExpiresAt),
		})
	}
	h.writeJSON(w, http.StatusOK, views)
}

// GetConfigHandler returns every bank_config row.
func (h *AdminHandlers) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.ListConfig(r.Context())
	if err != nil {
		log.Printf("level=error component=admin endpoint=get_config err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve configuration")
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

type setConfigRequest struct {
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Description *string `json:"description,omitempty"`
}

// SetConfigHandler upserts one bank_config row and refreshes the in-memory
// runtime view.
func (h *AdminHandlers) SetConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req setConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		h.writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := h.repo.SetConfigValue(r.Context(), req.Key, req.Value, req.Description); err != nil {
		log.Printf("level=error component=admin endpoint=set_config key=%s err=%v", req.Key, err)
		h.writeError(w, http.StatusInternalServerError, "Could not store configuration")
		return
	}
	h.runtime.Set(req.Key, req.Value)
	log.Printf("level=info component=admin endpoint=set_config outcome=stored key=%s", req.Key)
	h.writeJSON(w, http.StatusOK, map[string]string{"key": req.Key, "value": req.Value})
}

type updateKeysRequest struct {
	BankPrivateKey     string `json:"bank_private_key"`
	ConvertorPublicKey string `json:"convertor_public_key"`
}

// UpdateKeysHandler rotates the signing key material: the new PEMs are
// persisted to bank_config, injected into the key store, and the bank is
// re-registered with the protocol directory so the counterparty picks up the
// new public key.
func (h *AdminHandlers) UpdateKeysHandler(w http.ResponseWriter, r *http.Request) {
	var req updateKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BankPrivateKey == "" && req.ConvertorPublicKey == "" {
		h.writeError(w, http.StatusBadRequest, "bank_private_key or convertor_public_key is required")
		return
	}

	if req.BankPrivateKey != "" {
		if err := h.repo.SetConfigValue(r.Context(), config.KeyBankPrivateKey, req.BankPrivateKey, nil); err != nil {
			log.Printf("level=error component=admin endpoint=update_keys err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Could not store bank private key")
			return
		}
		h.runtime.Set(config.KeyBankPrivateKey, req.BankPrivateKey)
		h.keyStore.SetCurrentPrivateKey(req.BankPrivateKey)
	}
	if req.ConvertorPublicKey != "" {
		if err := h.repo.SetConfigValue(r.Context(), config.KeyConvertorPublicKey, req.ConvertorPublicKey, nil); err != nil {
			log.Printf("level=error component=admin endpoint=update_keys err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Could not store convertor public key")
			return
		}
		h.runtime.Set(config.KeyConvertorPublicKey, req.ConvertorPublicKey)
		h.keyStore.SetCurrentPublicKey(req.ConvertorPublicKey)
	}
	h.keyStore.Invalidate()

	registered := false
	if h.directory != nil && req.BankPrivateKey != "" {
		publicKeyPEM, err := protocolsig.DerivePublicKey(req.BankPrivateKey)
		if err != nil {
			log.Printf("level=warn component=admin endpoint=update_keys msg=\"could not derive public key for registration\" err=%v", err)
		} else if err := h.directory.RegisterBank(r.Context(), h.runtime.BankCode(), h.runtime.BankName(), publicKeyPEM); err != nil {
			log.Printf("level=warn component=admin endpoint=update_keys msg=\"directory re-registration failed\" err=%v", err)
		} else {
			registered = true
		}
	}

	log.Printf("level=info component=admin endpoint=update_keys outcome=rotated registered=%t", registered)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"updated":    true,
		"registered": registered,
	})
}

// RegistrationStatusHandler reports this bank's registration state at the
// protocol directory.
func (h *AdminHandlers) RegistrationStatusHandler(w http.ResponseWriter, r *http.Request) {
	if h.directory == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Protocol directory is not configured")
		return
	}

	status, err := h.directory.RegistrationStatus(r.Context(), h.runtime.BankCode())
	if err != nil {
		log.Printf("level=error component=admin endpoint=registration_status err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Could not reach protocol directory")
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *AdminHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *AdminHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
