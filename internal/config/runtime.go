/**
 * @description
 * RuntimeConfig layers the bank_config database table over the environment
 * configuration. Bank identity, the protocol directory URL, and signing keys can
 * all be changed through the admin API at runtime; this type holds the cached
 * values and exposes an explicit Reload instead of implicit lazy caching.
 */

package config

import (
	"context"
	"sync"
)

// Well-known bank_config keys.
const (
	KeyBankCode           = "bank_code"
	KeyBankName           = "bank_name"
	KeyConvertorAPIURL    = "convertor_api_url"
	KeyBankPrivateKey     = "bank_private_key"
	KeyConvertorPublicKey = "convertor_public_key"
)

// ConfigSource loads the key/value runtime configuration, typically from the
// bank_config table.
type ConfigSource interface {
	GetAllConfig(ctx context.Context) (map[string]string, error)
}

// RuntimeConfig caches database-backed configuration with env fallbacks.
type RuntimeConfig struct {
	mu     sync.RWMutex
	source ConfigSource
	env    Config
	values map[string]string
}

// NewRuntimeConfig creates a runtime configuration overlay. Call Reload before
// first use; a failed load leaves only the env fallbacks in place.
func NewRuntimeConfig(source ConfigSource, env Config) *RuntimeConfig {
	return &RuntimeConfig{source: source, env: env, values: map[string]string{}}
}

// Reload re-reads the bank_config table and replaces the cached values.
func (rc *RuntimeConfig) Reload(ctx context.Context) error {
	values, err := rc.source.GetAllConfig(ctx)
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.values = values
	rc.mu.Unlock()
	return nil
}

// Set updates one cached value in place, keeping the cache consistent with a
// write that was just persisted without a full reload.
func (rc *RuntimeConfig) Set(key, value string) {
	rc.mu.Lock()
	rc.values[key] = value
	rc.mu.Unlock()
}

func (rc *RuntimeConfig) value(key, fallback string) string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if v, ok := rc.values[key]; ok && v != "" {
		return v
	}
	return fallback
}

// BankCode returns the configured bank code.
func (rc *RuntimeConfig) BankCode() string {
	return rc.value(KeyBankCode, rc.env.BankCode)
}

// BankName returns the configured bank display name.
func (rc *RuntimeConfig) BankName() string {
	return rc.value(KeyBankName, rc.env.BankName)
}

// ConvertorAPIURL returns the protocol directory base URL.
func (rc *RuntimeConfig) ConvertorAPIURL() string {
	return rc.value(KeyConvertorAPIURL, rc.env.ConvertorAPIURL)
}

// BankPrivateKey returns the persisted bank private key PEM, if any.
func (rc *RuntimeConfig) BankPrivateKey() string {
	return rc.value(KeyBankPrivateKey, "")
}

// ConvertorPublicKey returns the persisted convertor public key PEM, if any.
func (rc *RuntimeConfig) ConvertorPublicKey() string {
	return rc.value(KeyConvertorPublicKey, "")
}
