/**
 * @description
 * This file sets up the HTTP router for the settlement-service. It defines the
 * three surfaces of the service: the unsigned health check, the signed
 * counterparty-facing protocol endpoints under /api, and the internal admin
 * surface under /admin.
 *
 * @dependencies
 * - net/http, time: Standard Go libraries.
 * - github.com/go-chi/chi/v5, github.com/go-chi/cors: Routing, middleware, CORS.
 * - internal/app, internal/keys: Nonce guard and key store for the signature
 *   middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/dfcbank/settlement-service/internal/app"
	"github.com/dfcbank/settlement-service/internal/keys"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SettlementRoutes creates and returns the router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, admin *AdminHandlers, keyStore *keys.Store, guard app.NonceGuard, signatureTolerance time.Duration, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", h.HealthHandler)

	// Counterparty-facing protocol endpoints. Every request must carry a valid
	// protocol signature.
	r.Route("/api", func(r chi.Router) {
		r.Use(SignatureMiddleware(keyStore, guard, signatureTolerance))

		r.Post("/connection-request", h.ConnectionRequestHandler)
		r.Post("/auth-challenge-response", h.AuthChallengeHandler)
		r.Get("/account-balance", h.AccountBalanceHandler)
		r.Post("/debit-request", h.DebitRequestHandler)
		r.Post("/credit-request", h.CreditRequestHandler)
		r.Post("/transaction-status", h.TransactionStatusHandler)
		r.Post("/reversal-request", h.ReversalRequestHandler)
	})

	// Bank-internal admin surface, guarded by the internal API key. CORS is
	// open here because the admin UI runs on a separate origin.
	r.Route("/admin", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Internal-Api-Key"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		r.Use(InternalAPIKeyMiddleware(internalAPIKey))

		r.Get("/accounts", admin.ListAccountsHandler)
		r.Post("/accounts", admin.CreateAccountHandler)
		r.Get("/accounts/{accountID}/balance", admin.AccountBalanceHandler)
		r.Get("/transactions", admin.ListTransactionsHandler)
		r.Get("/connection-tokens", admin.ListConnectionTokensHandler)
		r.Get("/config", admin.GetConfigHandler)
		r.Post("/config", admin.SetConfigHandler)
		r.Post("/config/keys", admin.UpdateKeysHandler)
		r.Get("/config/registration", admin.RegistrationStatusHandler)
	})

	return r
}
