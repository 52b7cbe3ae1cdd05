package config

import (
	"context"
	"errors"
	"testing"
)

type configSourceStub struct {
	values map[string]string
	err    error
}

func (s *configSourceStub) GetAllConfig(ctx context.Context) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.values, nil
}

func TestRuntimeConfig_StoredValuesOverrideEnvironment(t *testing.T) {
	source := &configSourceStub{values: map[string]string{
		KeyBankName:       "Stored Bank",
		KeyBankPrivateKey: "stored-pem",
	}}
	rc := NewRuntimeConfig(source, Config{BankCode: "DFC", BankName: "Env Bank"})

	if err := rc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}

	if got := rc.BankName(); got != "Stored Bank" {
		t.Fatalf("expected stored bank name, got %q", got)
	}
	if got := rc.BankCode(); got != "DFC" {
		t.Fatalf("expected env fallback for bank code, got %q", got)
	}
	if got := rc.BankPrivateKey(); got != "stored-pem" {
		t.Fatalf("expected stored private key, got %q", got)
	}
}

func TestRuntimeConfig_ReloadPropagatesSourceError(t *testing.T) {
	wantErr := errors.New("database down")
	rc := NewRuntimeConfig(&configSourceStub{err: wantErr}, Config{BankName: "Env Bank"})

	if err := rc.Reload(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected source error, got %v", err)
	}
	// The env values keep serving until a reload succeeds.
	if got := rc.BankName(); got != "Env Bank" {
		t.Fatalf("expected env fallback after failed reload, got %q", got)
	}
}

func TestRuntimeConfig_SetUpdatesLiveValue(t *testing.T) {
	rc := NewRuntimeConfig(&configSourceStub{values: map[string]string{}}, Config{ConvertorAPIURL: "http://localhost:4000"})

	rc.Set(KeyConvertorAPIURL, "https://convertor.example")
	if got := rc.ConvertorAPIURL(); got != "https://convertor.example" {
		t.Fatalf("expected updated url, got %q", got)
	}
}
