/**
 * @description
 * This is the main entry point for the settlement-service. It is responsible
 * for initializing all components of the service, including configuration, the
 * database connection, the Redis nonce guard, the RabbitMQ producer, the key
 * store, the protocol directory client, the repositories, the core application
 * service, and the HTTP server. It wires everything together and starts the
 * service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for the nonce guard.
 * - internal/api, internal/app, internal/config, internal/keys, internal/store:
 *   Internal packages for the service.
 * - pkg/directoryclient, pkg/rabbitmq: Protocol directory client and RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dfcbank/settlement-service/internal/api"
	"github.com/dfcbank/settlement-service/internal/app"
	"github.com/dfcbank/settlement-service/internal/config"
	"github.com/dfcbank/settlement-service/internal/keys"
	"github.com/dfcbank/settlement-service/internal/store"
	"github.com/dfcbank/settlement-service/pkg/directoryclient"
	"github.com/dfcbank/settlement-service/pkg/protocolsig"
	"github.com/dfcbank/settlement-service/pkg/rabbitmq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Println("level=warn component=bootstrap msg=\"internal api key not configured; admin surface disabled\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting settlement-service\" bank_code=%s port=%s", cfg.BankCode, cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Load the runtime configuration table; values stored there override the
	// environment for bank identity and key material.
	runtime := config.NewRuntimeConfig(repository, cfg)
	reloadCtx, cancelReload := context.WithTimeout(context.Background(), 10*time.Second)
	if err := runtime.Reload(reloadCtx); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"runtime config load failed; using environment values\" err=%v", err)
	}
	cancelReload()

	// Initialize the key store. Values from the runtime config table take
	// precedence over environment literals and key files.
	keyStore := keys.NewStore(
		keys.Source{Literal: cfg.BankPrivateKey, Path: cfg.BankPrivateKeyPath},
		keys.Source{Literal: cfg.ConvertorPublicKey, Path: cfg.ConvertorPublicKeyPath},
	)
	if pk := runtime.BankPrivateKey(); pk != "" {
		keyStore.SetCurrentPrivateKey(pk)
	}
	if pub := runtime.ConvertorPublicKey(); pub != "" {
		keyStore.SetCurrentPublicKey(pub)
	}

	// Initialize the RabbitMQ producer to publish settlement events.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Connect Redis for the nonce replay guard. A missing or unreachable Redis
	// degrades to the signature timestamp check alone.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; nonce replay guard disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; nonce replay guard disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; nonce replay guard disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
			cancelPing()
		}
	}
	signatureTolerance := time.Duration(cfg.SignatureToleranceSeconds) * time.Second
	nonceGuard := app.NewRedisNonceGuard(redisClient, cfg.NonceGuardPrefix, signatureTolerance)

	// Initialize the protocol directory client and register this bank's public
	// key so counterparties can verify our proofs.
	var directory *directoryclient.Client
	if strings.TrimSpace(runtime.ConvertorAPIURL()) == "" {
		log.Println("level=warn component=bootstrap msg=\"convertor api url missing; directory registration disabled\" env=CONVERTOR_API_URL")
	} else {
		directory = directoryclient.NewClient(runtime.ConvertorAPIURL(), cfg.DirectoryAPIKey)
		registerDirectory(directory, runtime, keyStore)
	}

	// Initialize the core application service with its dependencies.
	settlementService := app.NewService(repository, keyStore, producer, nil)

	// Start the background maintenance jobs.
	jobs := app.NewJobs(repository, time.Duration(cfg.StaleLockAgeMinutes)*time.Minute)
	scheduler, err := app.StartScheduler(jobs, cfg.TokenCleanupSchedule, cfg.StaleLockSchedule)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"scheduler start failed\" err=%v", err)
	}
	defer scheduler.Stop()

	// Initialize the API handlers and router.
	settlementHandlers := api.NewSettlementHandlers(settlementService, runtime.BankName)
	adminHandlers := api.NewAdminHandlers(repository, runtime, keyStore, directory)
	router := api.SettlementRoutes(settlementHandlers, adminHandlers, keyStore, nonceGuard, signatureTolerance, cfg.InternalAPIKey)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// registerDirectory publishes this bank's signing public key to the protocol
// directory. Registration failure is not fatal: an already-registered bank
// keeps working with its previous key.
func registerDirectory(directory *directoryclient.Client, runtime *config.RuntimeConfig, keyStore *keys.Store) {
	privateKey, err := keyStore.PrivateKey()
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"bank private key unavailable; skipping directory registration\" err=%v", err)
		return
	}
	publicKeyPEM, err := protocolsig.DerivePublicKey(privateKey)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"could not derive bank public key\" err=%v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := directory.RegisterBank(ctx, runtime.BankCode(), runtime.BankName(), publicKeyPEM); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"directory registration failed\" bank_code=%s err=%v", runtime.BankCode(), err)
		return
	}
	log.Printf("level=info component=bootstrap msg=\"bank registered with protocol directory\" bank_code=%s", runtime.BankCode())
}
