/**
 * @description
 * This file contains custom middleware for the HTTP router: the protocol
 * signature verifier that guards every counterparty-facing endpoint, and the
 * internal API key check that guards the admin surface.
 *
 * The signature verifier reconstructs the canonical string
 * `METHOD:path:sha256Hex(rawBody):nonce:timestamp` from the raw request bytes,
 * verifies the detached Ed25519 signature with the convertor public key, and
 * rejects stale timestamps and replayed nonces. The raw body is reinstated on
 * the request so downstream handlers can decode JSON normally.
 *
 * @dependencies
 * - bytes, context, io, net/http, strconv, strings, time: Standard Go libraries.
 * - internal/app, internal/keys, pkg/protocolsig: Nonce guard, key store, crypto.
 */

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dfcbank/settlement-service/internal/app"
	"github.com/dfcbank/settlement-service/internal/keys"
	"github.com/dfcbank/settlement-service/pkg/protocolsig"
)

// SignatureContextKey is a custom type for the context key to avoid collisions.
type SignatureContextKey string

const requestMetadataKey SignatureContextKey = "signatureMetadata"

const (
	headerKeyID     = "X-Convertor-Keyid"
	headerNonce     = "X-Convertor-Nonce"
	headerTimestamp = "X-Convertor-Timestamp"
	headerSignature = "X-Convertor-Signature"
)

// RequestMetadata is the verified signature metadata attached to the request
// context for downstream logging and audit.
type RequestMetadata struct {
	KeyID     string
	Nonce     string
	Timestamp int64
}

// SignatureMiddleware verifies the protocol signature on every request. The
// timestamp (unix milliseconds) must be within tolerance of the local clock,
// and the nonce must not have been seen within that window.
func SignatureMiddleware(keyStore *keys.Store, guard app.NonceGuard, tolerance time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID := r.Header.Get(headerKeyID)
			nonce := r.Header.Get(headerNonce)
			timestampRaw := r.Header.Get(headerTimestamp)
			signature := r.Header.Get(headerSignature)
			if keyID == "" || nonce == "" || timestampRaw == "" || signature == "" {
				writeMiddlewareError(w, http.StatusUnauthorized, "Missing signature headers")
				return
			}

			timestamp, err := strconv.ParseInt(timestampRaw, 10, 64)
			if err != nil {
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid signature")
				return
			}
			drift := time.Since(time.UnixMilli(timestamp))
			if drift < 0 {
				drift = -drift
			}
			if drift > tolerance {
				log.Printf("level=warn component=signature outcome=reject reason=stale_timestamp key_id=%s drift=%s", keyID, drift)
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid signature")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeMiddlewareError(w, http.StatusBadRequest, "Unable to read request body")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			publicKey, err := keyStore.PublicKey()
			if err != nil {
				if errors.Is(err, keys.ErrKeyNotFound) {
					log.Printf("level=error component=signature msg=\"convertor public key unavailable\"")
					writeMiddlewareError(w, http.StatusServiceUnavailable, "Signature verification unavailable")
					return
				}
				writeMiddlewareError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			canonical := protocolsig.CanonicalString(r.Method, r.URL.Path, protocolsig.Sha256Hex(body), nonce, timestampRaw)
			if !protocolsig.Verify(canonical, signature, publicKey) {
				log.Printf("level=warn component=signature outcome=reject reason=bad_signature key_id=%s path=%s", keyID, r.URL.Path)
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid signature")
				return
			}

			fresh, err := guard.Remember(r.Context(), nonce)
			if err != nil {
				log.Printf("level=error component=signature msg=\"nonce guard failed open\" err=%v", err)
			} else if !fresh {
				log.Printf("level=warn component=signature outcome=reject reason=replayed_nonce key_id=%s nonce=%s", keyID, nonce)
				writeMiddlewareError(w, http.StatusUnauthorized, "Replayed nonce")
				return
			}

			ctx := context.WithValue(r.Context(), requestMetadataKey, RequestMetadata{
				KeyID:     keyID,
				Nonce:     nonce,
				Timestamp: timestamp,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestMetadata retrieves the verified signature metadata from the request
// context.
func GetRequestMetadata(ctx context.Context) (RequestMetadata, bool) {
	meta, ok := ctx.Value(requestMetadataKey).(RequestMetadata)
	return meta, ok
}

// InternalAPIKeyMiddleware guards the admin surface with a shared secret
// header. An empty configured key disables the admin surface entirely.
func InternalAPIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.Header.Get("X-Internal-Api-Key") != apiKey {
				writeMiddlewareError(w, http.StatusUnauthorized, "Invalid internal API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeMiddlewareError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
