package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pix-gateway/config"
	httpHandler "pix-gateway/internal/adapter/http/handler"
	"pix-gateway/internal/adapter/messaging/kafka"
	"pix-gateway/internal/adapter/provider"
	"pix-gateway/internal/adapter/storage/memory"
	pgStorage "pix-gateway/internal/adapter/storage/postgres"
	redisStorage "pix-gateway/internal/adapter/storage/redis"
	"pix-gateway/internal/core/ports"
	"pix-gateway/internal/service"
	"pix-gateway/pkg/logger"

	"github.com/rs/zerolog"
)

// repositories is the persistence layer selected by storage.driver.
type repositories struct {
	merchants    ports.MerchantRepository
	wallets      ports.WalletRepository
	transactions ports.TransactionRepository
	deposits     ports.DepositRepository
	acquirers    ports.AcquirerRepository
	events       ports.EventRepository
	transactor   ports.DBTransactor
	health       ports.HealthChecker
	close        func()
}

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting PIX Gateway")

	ctx := context.Background()

	repos, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repos.close()

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	feeScheme, err := cfg.Fees.Scheme()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid default fee scheme")
	}

	// Outbound notifications
	notifiers := service.MultiNotifier{
		service.NewWebhookNotifier(
			repos.merchants,
			encSvc,
			sigSvc,
			&http.Client{Timeout: cfg.Webhook.DeliveryTimeout},
			cfg.Webhook.RetryIntervals,
			logger.Component(log, "webhook_notifier"),
		),
	}
	if cfg.Kafka.Enabled {
		publisher := kafka.NewPublisher(kafka.NewWriter(cfg.Kafka), logger.Component(log, "kafka_publisher"))
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka publisher enabled")
	}

	// Initialize business services
	providers := provider.NewFactory(
		encSvc,
		&http.Client{Timeout: cfg.Provider.HTTPTimeout},
		provider.FactoryConfig{
			RateLimitRPS:   cfg.Provider.RateLimitRPS,
			RateLimitBurst: cfg.Provider.RateLimitBurst,
			SandboxTTL:     cfg.Provider.SandboxTTL,
		},
		logger.Component(log, "provider"),
	)
	walletSvc := service.NewWalletService(repos.wallets, repos.transactor, cfg.Ledger.TxTimeout, logger.Component(log, "wallet"))
	chargeSvc := service.NewAcquirerRouter(service.AcquirerRouterDeps{
		Acquirers:    repos.acquirers,
		Merchants:    repos.merchants,
		Transactions: repos.transactions,
		Deposits:     repos.deposits,
		Providers:    providers,
		Usage:        redisStorage.NewUsageStore(rdb),
		IdempCache:   redisStorage.NewIdempotencyCache(rdb),
		Transactor:   repos.transactor,
	}, service.RouterConfig{
		ProviderTimeout:  cfg.Router.ProviderTimeout,
		CallbackBaseURL:  cfg.Router.CallbackBaseURL,
		DefaultFeeScheme: feeScheme,
		DefaultCity:      cfg.Router.DefaultCity,
	}, logger.Component(log, "router"))
	reconciler := service.NewLedgerReconciler(
		repos.transactions,
		repos.deposits,
		repos.events,
		walletSvc,
		repos.transactor,
		notifiers,
		cfg.Ledger.TxTimeout,
		logger.Component(log, "reconciler"),
	)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		ChargeSvc:          chargeSvc,
		WalletSvc:          walletSvc,
		Reconciler:         reconciler,
		Acquirers:          repos.acquirers,
		EncSvc:             encSvc,
		SigSvc:             sigSvc,
		TokenSvc:           tokenSvc,
		RateLimitStore:     redisStorage.NewRateLimitStore(rdb),
		RateLimitPerMinute: int64(cfg.Server.RateLimit),
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		HealthCheckers:     []ports.HealthChecker{repos.health, redisStorage.NewHealthCheck(rdb)},
		Logger:             log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStorage connects the configured persistence driver.
func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		store := memory.NewStore()
		merchant, acquirer := store.SeedDemo(provider.SandboxScheme)
		log.Warn().
			Str("merchant_id", merchant.ID.String()).
			Str("acquirer", acquirer.Code).
			Msg("Using in-memory storage; data is lost on exit")
		return &repositories{
			merchants:    memory.NewMerchantRepo(store),
			wallets:      memory.NewWalletRepo(store),
			transactions: memory.NewTransactionRepo(store),
			deposits:     memory.NewDepositRepo(store),
			acquirers:    memory.NewAcquirerRepo(store),
			events:       memory.NewEventRepo(store),
			transactor:   store,
			health:       store,
			close:        func() {},
		}, nil

	default:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info().Msg("PostgreSQL connected")
		return &repositories{
			merchants:    pgStorage.NewMerchantRepo(pool),
			wallets:      pgStorage.NewWalletRepo(pool),
			transactions: pgStorage.NewTransactionRepo(pool),
			deposits:     pgStorage.NewDepositRepo(pool),
			acquirers:    pgStorage.NewAcquirerRepo(pool),
			events:       pgStorage.NewEventRepo(pool),
			transactor:   pgStorage.NewTransactor(pool),
			health:       pgStorage.NewHealthCheck(pool),
			close:        pool.Close,
		}, nil
	}
}
