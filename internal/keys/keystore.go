/**
 * @description
 * This package resolves the bank's Ed25519 signing key and the counterparty's
 * verification key. Each key is resolved from the first source that yields a
 * value: an explicitly injected current value (set when an admin persists new
 * keys), a literal PEM from configuration, then a filesystem path.
 *
 * The public key is cached after first resolution and held until Invalidate is
 * called; the private key is resolved on every use because it can be rotated
 * through live configuration. The store is instance-scoped and injected into its
 * consumers rather than living in package-level state.
 *
 * @dependencies
 * - os, sync: Standard Go libraries.
 */
package keys

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrKeyNotFound is returned when no configured source yields a key. Callers
// must treat this as fatal for the current request (503), not a silent no-op.
var ErrKeyNotFound = errors.New("signing key not found")

// Source describes where one key can be resolved from, in priority order.
type Source struct {
	// Literal is a PEM string supplied directly through configuration.
	Literal string
	// Path is a filesystem location holding the PEM.
	Path string
}

// Store resolves and caches the bank private key and convertor public key.
type Store struct {
	mu sync.RWMutex

	privateSource Source
	publicSource  Source

	// current values injected at runtime (e.g. freshly persisted configuration);
	// they take priority over both configured sources.
	currentPrivate string
	currentPublic  string

	cachedPublic string
}

// NewStore creates a key store with the given configured sources.
func NewStore(private, public Source) *Store {
	return &Store{privateSource: private, publicSource: public}
}

// SetCurrentPrivateKey injects a freshly persisted bank private key.
func (s *Store) SetCurrentPrivateKey(pemData string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPrivate = strings.TrimSpace(pemData)
}

// SetCurrentPublicKey injects a freshly persisted convertor public key and
// drops the cached value so the next read picks it up.
func (s *Store) SetCurrentPublicKey(pemData string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPublic = strings.TrimSpace(pemData)
	s.cachedPublic = ""
}

// Invalidate drops the cached public key. The next PublicKey call re-resolves
// from the configured sources.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedPublic = ""
}

// PrivateKey resolves the bank's private signing key. Resolved on every call so
// a rotated key takes effect without a restart.
func (s *Store) PrivateKey() (string, error) {
	s.mu.RLock()
	current := s.currentPrivate
	source := s.privateSource
	s.mu.RUnlock()

	return resolve("bank private key", current, source)
}

// PublicKey resolves the counterparty's public verification key, caching the
// result until invalidated.
func (s *Store) PublicKey() (string, error) {
	s.mu.RLock()
	if s.cachedPublic != "" {
		cached := s.cachedPublic
		s.mu.RUnlock()
		return cached, nil
	}
	current := s.currentPublic
	source := s.publicSource
	s.mu.RUnlock()

	resolved, err := resolve("convertor public key", current, source)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cachedPublic = resolved
	s.mu.Unlock()
	return resolved, nil
}

func resolve(name, current string, source Source) (string, error) {
	if current != "" {
		return current, nil
	}
	if literal := strings.TrimSpace(source.Literal); literal != "" {
		return literal, nil
	}
	if path := strings.TrimSpace(source.Path); path != "" {
		data, err := os.ReadFile(path)
		if err == nil && len(strings.TrimSpace(string(data))) > 0 {
			return string(data), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrKeyNotFound, name)
}
