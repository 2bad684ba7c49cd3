/**
 * @description
 * Entrypoint for the portfolio service. Loads configuration, connects
 * Postgres (credential vault), RabbitMQ (broker lifecycle events, with a
 * log-only fallback), and Redis (shared enrichment cache, optional), wires
 * the application layers, and serves HTTP with graceful shutdown.
 */
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/investrack/portfolio-service/internal/api"
	"github.com/investrack/portfolio-service/internal/app"
	"github.com/investrack/portfolio-service/internal/brokerapi"
	"github.com/investrack/portfolio-service/internal/config"
	"github.com/investrack/portfolio-service/internal/enrich"
	"github.com/investrack/portfolio-service/internal/fetch"
	"github.com/investrack/portfolio-service/internal/session"
	"github.com/investrack/portfolio-service/internal/store"
	"github.com/investrack/portfolio-service/internal/vault"
	"github.com/investrack/portfolio-service/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if cfg.VaultEncryptionKey == "" {
		log.Fatal("VAULT_ENCRYPTION_KEY is required")
	}
	if cfg.SessionJWTSecret == "" {
		log.Fatal("SESSION_JWT_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to parse database URL: %v", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("Unable to create connection pool: %v", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Database connection established")

	credRepo := store.NewPostgresCredentialRepository(dbpool)
	if err := credRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	box, err := vault.NewSecretBox(cfg.VaultEncryptionKey)
	if err != nil {
		log.Fatalf("Invalid VAULT_ENCRYPTION_KEY: %v", err)
	}

	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL == "" {
		log.Println("RABBITMQ_URL not set, broker events will be logged only")
		producer = &rabbitmq.LogPublisher{}
	} else if p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("RabbitMQ unavailable (%v), broker events will be logged only", err)
		producer = &rabbitmq.LogPublisher{}
	} else {
		producer = p
	}
	defer producer.Close()

	credentialVault := vault.NewVault(credRepo, box, producer)

	kiteClient := brokerapi.NewKiteClient(cfg.KiteBaseURL)
	growwClient := brokerapi.NewGrowwClient(cfg.GrowwBaseURL)
	sessionManager := session.NewManager(credentialVault, kiteClient, growwClient, producer)

	fetcher := fetch.NewFetcher(
		credentialVault,
		sessionManager,
		fetch.NewKiteSource(kiteClient),
		fetch.NewGrowwSource(growwClient),
	)

	var cacheStore enrich.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unavailable (%v), using in-memory enrichment cache", err)
			cacheStore = enrich.NewMemoryStore()
		} else {
			log.Println("Redis connection established")
			cacheStore = enrich.NewRedisStore(redisClient)
		}
	} else {
		cacheStore = enrich.NewMemoryStore()
	}

	pipeline := enrich.NewPipeline(
		enrich.NewCache(cacheStore),
		enrich.NewQuoteClient(cfg.QuoteBaseURL, cfg.QuoteAPIKey),
		enrich.NewFundamentalsClient(cfg.FundamentalsBaseURL),
		enrich.NewMFAPIClient(cfg.MFAPIBaseURL),
	)

	service := app.NewService(fetcher, pipeline)

	sessionAuth := api.NewSessionAuth(cfg.SessionJWTSecret)
	identitySecret := cfg.IdentityJWTSecret
	if identitySecret == "" {
		identitySecret = cfg.SessionJWTSecret
	}
	router := api.NewRouter(api.RouterDeps{
		Auth:           api.NewAuthHandler(api.NewJWTIdentityVerifier(identitySecret), sessionAuth),
		Brokers:        api.NewBrokerHandler(credentialVault, sessionManager),
		Portfolio:      api.NewPortfolioHandler(service),
		Sessions:       sessionAuth,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		log.Printf("Portfolio service listening on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
