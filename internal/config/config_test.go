package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "BANK_CODE")
	unsetEnvWithCleanup(t, "SIGNATURE_TOLERANCE_SECONDS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "5000" {
		t.Fatalf("expected default port 5000, got %q", cfg.ServerPort)
	}
	if cfg.BankCode != "DFC" || cfg.BankName != "DFC Bank" {
		t.Fatalf("unexpected bank identity defaults: %q / %q", cfg.BankCode, cfg.BankName)
	}
	if cfg.SignatureToleranceSeconds != 300 {
		t.Fatalf("expected default tolerance 300, got %d", cfg.SignatureToleranceSeconds)
	}
	if cfg.NonceGuardPrefix != "settlement:nonce" {
		t.Fatalf("unexpected nonce guard prefix %q", cfg.NonceGuardPrefix)
	}
	if cfg.TokenCleanupSchedule != "0 3 * * *" || cfg.StaleLockSchedule != "@hourly" {
		t.Fatalf("unexpected schedule defaults: %q / %q", cfg.TokenCleanupSchedule, cfg.StaleLockSchedule)
	}
}

func TestLoadConfig_EnvironmentOverridesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "BANK_CODE", "KBA")
	setEnvWithCleanup(t, "BANK_NAME", "Kampala Bank")
	setEnvWithCleanup(t, "SIGNATURE_TOLERANCE_SECONDS", "120")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.BankCode != "KBA" || cfg.BankName != "Kampala Bank" {
		t.Fatalf("expected env overrides, got %q / %q", cfg.BankCode, cfg.BankName)
	}
	if cfg.SignatureToleranceSeconds != 120 {
		t.Fatalf("expected tolerance 120, got %d", cfg.SignatureToleranceSeconds)
	}
}

func TestLoadConfig_PlatformPortWins(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "5000")
	setEnvWithCleanup(t, "PORT", "8080")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected platform PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NonPositiveToleranceFallsBack(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SIGNATURE_TOLERANCE_SECONDS", "-1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SignatureToleranceSeconds != 300 {
		t.Fatalf("expected fallback tolerance 300, got %d", cfg.SignatureToleranceSeconds)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
