/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables (with an
 * optional .env file), providing a centralized and straightforward way to manage
 * application settings. Runtime values that live in the database (bank identity,
 * directory URL, signing keys) are layered on top by the RuntimeConfig type.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	BankCode        string `mapstructure:"BANK_CODE"`
	BankName        string `mapstructure:"BANK_NAME"`
	ConvertorAPIURL string `mapstructure:"CONVERTOR_API_URL"`
	DirectoryAPIKey string `mapstructure:"DIRECTORY_API_KEY"`

	// Signing keys may arrive as literal PEM values (deploy secrets) or as file
	// paths; the key store tries the literal first.
	BankPrivateKey         string `mapstructure:"BANK_PRIVATE_KEY"`
	BankPrivateKeyPath     string `mapstructure:"BANK_PRIVATE_KEY_PATH"`
	ConvertorPublicKey     string `mapstructure:"CONVERTOR_PUBLIC_KEY"`
	ConvertorPublicKeyPath string `mapstructure:"CONVERTOR_PUBLIC_KEY_PATH"`

	SignatureToleranceSeconds int    `mapstructure:"SIGNATURE_TOLERANCE_SECONDS"`
	NonceGuardPrefix          string `mapstructure:"NONCE_GUARD_PREFIX"`

	TokenCleanupSchedule string `mapstructure:"TOKEN_CLEANUP_SCHEDULE"`
	StaleLockSchedule    string `mapstructure:"STALE_LOCK_SCHEDULE"`
	StaleLockAgeMinutes  int    `mapstructure:"STALE_LOCK_AGE_MINUTES"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "5000")
	viper.SetDefault("BANK_CODE", "DFC")
	viper.SetDefault("BANK_NAME", "DFC Bank")
	viper.SetDefault("CONVERTOR_API_URL", "http://localhost:4000")
	viper.SetDefault("BANK_PRIVATE_KEY_PATH", "./keys/bank_private.pem")
	viper.SetDefault("CONVERTOR_PUBLIC_KEY_PATH", "./keys/convertor_public.pem")
	viper.SetDefault("SIGNATURE_TOLERANCE_SECONDS", 300)
	viper.SetDefault("NONCE_GUARD_PREFIX", "settlement:nonce")
	viper.SetDefault("TOKEN_CLEANUP_SCHEDULE", "0 3 * * *")
	viper.SetDefault("STALE_LOCK_SCHEDULE", "@hourly")
	viper.SetDefault("STALE_LOCK_AGE_MINUTES", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("BANK_CODE")
	_ = viper.BindEnv("BANK_NAME")
	_ = viper.BindEnv("CONVERTOR_API_URL")
	_ = viper.BindEnv("DIRECTORY_API_KEY")
	_ = viper.BindEnv("BANK_PRIVATE_KEY")
	_ = viper.BindEnv("BANK_PRIVATE_KEY_PATH")
	_ = viper.BindEnv("CONVERTOR_PUBLIC_KEY")
	_ = viper.BindEnv("CONVERTOR_PUBLIC_KEY_PATH")
	_ = viper.BindEnv("SIGNATURE_TOLERANCE_SECONDS")
	_ = viper.BindEnv("NONCE_GUARD_PREFIX")
	_ = viper.BindEnv("TOKEN_CLEANUP_SCHEDULE")
	_ = viper.BindEnv("STALE_LOCK_SCHEDULE")
	_ = viper.BindEnv("STALE_LOCK_AGE_MINUTES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Railway-style platforms inject the listen port as PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.NonceGuardPrefix = strings.TrimSpace(config.NonceGuardPrefix)
	if config.NonceGuardPrefix == "" {
		config.NonceGuardPrefix = "settlement:nonce"
	}
	if config.SignatureToleranceSeconds <= 0 {
		config.SignatureToleranceSeconds = 300
	}
	if config.StaleLockAgeMinutes <= 0 {
		config.StaleLockAgeMinutes = 60
	}

	return
}
