package keys

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPrivateKey_PrefersInjectedCurrentValue(t *testing.T) {
	store := NewStore(Source{Literal: "literal-key"}, Source{})
	store.SetCurrentPrivateKey("rotated-key")

	got, err := store.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey returned error: %v", err)
	}
	if got != "rotated-key" {
		t.Fatalf("expected injected key to win, got %q", got)
	}
}

func TestPrivateKey_FallsBackToLiteralThenPath(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "bank.pem")
	if err := os.WriteFile(keyPath, []byte("file-key"), 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	store := NewStore(Source{Literal: "literal-key", Path: keyPath}, Source{})
	got, err := store.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey returned error: %v", err)
	}
	if got != "literal-key" {
		t.Fatalf("expected literal to take priority over path, got %q", got)
	}

	store = NewStore(Source{Path: keyPath}, Source{})
	got, err = store.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey returned error: %v", err)
	}
	if got != "file-key" {
		t.Fatalf("expected key read from file, got %q", got)
	}
}

func TestPrivateKey_NoSourceYields_ErrKeyNotFound(t *testing.T) {
	store := NewStore(Source{Path: filepath.Join(t.TempDir(), "missing.pem")}, Source{})
	if _, err := store.PrivateKey(); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestPublicKey_CachesUntilInvalidated(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "convertor.pem")
	if err := os.WriteFile(keyPath, []byte("first-key"), 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	store := NewStore(Source{}, Source{Path: keyPath})
	got, err := store.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey returned error: %v", err)
	}
	if got != "first-key" {
		t.Fatalf("expected first-key, got %q", got)
	}

	// A changed file is not visible while the cache holds the old value.
	if err := os.WriteFile(keyPath, []byte("second-key"), 0o600); err != nil {
		t.Fatalf("failed to rewrite key file: %v", err)
	}
	got, err = store.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey returned error: %v", err)
	}
	if got != "first-key" {
		t.Fatalf("expected cached first-key before invalidation, got %q", got)
	}

	store.Invalidate()
	got, err = store.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey returned error: %v", err)
	}
	if got != "second-key" {
		t.Fatalf("expected second-key after invalidation, got %q", got)
	}
}

func TestSetCurrentPublicKey_DropsCache(t *testing.T) {
	store := NewStore(Source{}, Source{Literal: "configured-key"})
	if _, err := store.PublicKey(); err != nil {
		t.Fatalf("PublicKey returned error: %v", err)
	}

	store.SetCurrentPublicKey("rotated-key")
	got, err := store.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey returned error: %v", err)
	}
	if got != "rotated-key" {
		t.Fatalf("expected rotated key after injection, got %q", got)
	}
}
