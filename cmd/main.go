/**
 * @description
 * This is the main entry point for the remittance-service. It is responsible
 * for initializing all components of the service: configuration, database
 * connection pool, Redis rate cache, RabbitMQ producer and consumer, the FX
 * and bank directory clients, the repository, the core application service,
 * the background scheduler, and the HTTP server. It wires everything together
 * and starts the service.
 *
 * @dependencies
 * - log, log/slog, net/http: Standard Go libraries for logging and HTTP.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for the FX rate cache.
 * - internal/api, internal/app, internal/config, internal/store, internal/wizard.
 * - pkg/fxclient, pkg/bankdirectory, pkg/rabbitmq.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/velopay/remittance-service/internal/api"
	"github.com/velopay/remittance-service/internal/app"
	"github.com/velopay/remittance-service/internal/config"
	"github.com/velopay/remittance-service/internal/store"
	"github.com/velopay/remittance-service/internal/wizard"
	"github.com/velopay/remittance-service/pkg/bankdirectory"
	"github.com/velopay/remittance-service/pkg/fxclient"
	rmrabbit "github.com/velopay/remittance-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting remittance-service\" port=%s home_currency=%s", cfg.ServerPort, cfg.HomeCurrency)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// The live FX rate source: the provider API when configured, otherwise
	// the stored corridor rates from the reference table.
	var liveRates wizard.RateLookup
	if strings.TrimSpace(cfg.FXAPIBaseURL) != "" {
		liveRates = fxclient.NewClient(cfg.FXAPIBaseURL, cfg.FXAPIKey, cfg.HomeCurrency)
		log.Println("level=info component=bootstrap msg=\"fx provider client configured\"")
	} else {
		liveRates = app.NewStoredRateLookup(repository)
		log.Println("level=warn component=bootstrap msg=\"fx provider not configured; using stored corridor rates\" env=FX_API_BASE_URL")
	}

	// Layer the Redis cache over the live lookup when Redis is reachable.
	rates := liveRates
	var cachedRates *app.CachedRateLookup
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; fx rate caching disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; fx rate caching disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; fx rate caching disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				cachedRates = app.NewCachedRateLookup(redisClient, liveRates, cfg.RedisFXCachePrefix, time.Duration(cfg.FXCacheTTLMinutes)*time.Minute)
				rates = cachedRates
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// The bank directory resolves IBANs to bank details. Without a
	// configured directory the static resolver keeps the flow usable in
	// dev environments.
	var banks wizard.BankResolver
	if strings.TrimSpace(cfg.BankDirectoryBaseURL) != "" {
		banks = bankdirectory.NewClient(cfg.BankDirectoryBaseURL, cfg.BankDirectoryAPIKey)
		log.Println("level=info component=bootstrap msg=\"bank directory client configured\"")
	} else {
		banks = bankdirectory.StaticResolver{}
		log.Println("level=warn component=bootstrap msg=\"bank directory not configured; using static resolver\" env=BANK_DIRECTORY_BASE_URL")
	}

	// Initialize the RabbitMQ producer to publish submitted transfers.
	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the core application service with its dependencies.
	remittanceService := app.NewService(
		repository,
		rates,
		banks,
		producer,
		wizard.FlatFee(cfg.TransferFeeFils),
		time.Duration(cfg.SessionIdleTTLMin)*time.Minute,
	)
	remittanceService.SetEventExchange(cfg.TransferEventExchange)

	// Wire up the status consumer: the execution rail reports transfer
	// progress back over the same topic exchange.
	statusConsumer := app.NewReceiptStatusConsumer(repository)
	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; receipt statuses will not update\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		statusBindings := map[string]func([]byte) bool{
			"transfer.status.processing": statusConsumer.HandleMessage,
			"transfer.status.completed":  statusConsumer.HandleMessage,
			"transfer.status.failed":     statusConsumer.HandleMessage,
			"transfer.status.returned":   statusConsumer.HandleMessage,
		}
		if err := rabbitConsumer.ConsumeWithBindings(cfg.TransferEventExchange, cfg.TransferStatusQueue, statusBindings); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"status consumer start failed; receipt statuses will not update\" err=%v", err)
		} else {
			log.Println("level=info component=bootstrap msg=\"status consumer started\"")
		}
	}

	// Start the background scheduler for rate refreshes and session sweeps.
	schedulerLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	scheduler := app.NewScheduler(remittanceService, cachedRates, schedulerLogger, cfg.FXRefreshSchedule, cfg.SessionSweepSchedule)
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize the API handlers and router.
	remittanceHandlers := api.NewTransferHandlers(remittanceService)
	router := api.TransferRoutes(remittanceHandlers, cfg.AuthJWKSURL, cfg.AuthAudience, cfg.AuthIssuer)

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
