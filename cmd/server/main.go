package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blertbank/internal/cache"
	"blertbank/internal/config"
	"blertbank/internal/db"
	"blertbank/internal/events"
	"blertbank/internal/handlers"
	"blertbank/internal/logging"
	"blertbank/internal/models"
	"blertbank/internal/services"
	"blertbank/internal/store"
	"blertbank/internal/websocket"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("failed to load config")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFilePath)
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("failed to configure logging")
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, AttachStacktrace: true}); err != nil {
			logger.Error().Err(err).Msg("failed to initialise sentry")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	database, err := db.Connect(cfg.DatabaseURL, db.Options{
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	accounts := store.NewAccountStore(database)
	transactions := store.NewTransactionStore(database)
	ledger := store.NewLedgerStore(database)
	txRunner := db.NewTxRunner(database, cfg.TxMaxAttempts)

	accountService := services.NewAccountService(txRunner, accounts)
	transactionService := services.NewTransactionService(txRunner, accounts, transactions, ledger, logger)
	auditService := services.NewAuditService(accounts, transactions, ledger)
	hub := websocket.NewHub()
	transactionService.WithPublisher(hub)

	ctx := context.Background()
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, idempotency cache disabled")
		} else {
			defer client.Close()
			transactionService.WithCache(cache.NewIdempotencyCache(client, cfg.IdempotencyCacheTTL))
		}
	}
	if cfg.RabbitMQURI != "" {
		conn, channel, err := events.Dial(cfg.RabbitMQURI)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq unavailable, transaction events disabled")
		} else {
			defer conn.Close()
			publisher, err := events.NewPublisher(channel, cfg.RabbitMQExchange)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to declare event exchange, transaction events disabled")
			} else {
				transactionService.WithPublisher(publisher)
			}
		}
	}

	for name, kind := range cfg.SystemAccounts {
		account, created, err := accountService.EnsureSystemAccount(ctx, name, models.AccountKind(kind))
		if err != nil {
			logger.Fatal().Err(err).Str("name", name).Str("kind", kind).Msg("failed to ensure system account")
		}
		if created {
			logger.Info().Str("name", name).Int64("account_id", account.ID).Msg("created system account")
		}
	}

	handler := handlers.New(cfg, accountService, transactionService, auditService, database, hub, logger)
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("blertbank listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	// Shutdown does not wait for hijacked connections.
	hub.Close()
}
