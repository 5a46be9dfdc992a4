package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zapfood/zapfood/internal/cart"
	"github.com/zapfood/zapfood/internal/catalog"
	"github.com/zapfood/zapfood/internal/config"
	"github.com/zapfood/zapfood/internal/conversation"
	"github.com/zapfood/zapfood/internal/db"
	"github.com/zapfood/zapfood/internal/idempotency"
	"github.com/zapfood/zapfood/internal/kv"
	"github.com/zapfood/zapfood/internal/notify"
	"github.com/zapfood/zapfood/internal/order"
	"github.com/zapfood/zapfood/internal/payment"
	"github.com/zapfood/zapfood/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "zapfood").Logger()

	log.Info().Msg("zapfood starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if err := db.ApplyMigrations(cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	ctx := context.Background()
	database, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	var store kv.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to redis")
		}
		store = kv.NewRedisStore(client, "zapfood")
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using redis session/idempotency store")
	} else {
		memory := kv.NewMemoryStore()
		defer memory.Close()
		store = memory
		log.Info().Msg("Using in-process session/idempotency store")
	}

	idem := idempotency.NewStore(store, cfg.IdempotencyTTL)
	carts := cart.NewManager(store, cfg.SessionTTL, cfg.SessionIdleTTL)
	restaurants := catalog.NewRepository(database.Pool)
	orders := order.NewRepository(database.Pool)
	notifier := notify.NewLogNotifier()
	orderSvc := order.NewService(orders, restaurants, idem, notifier)

	provider := newProviderFromEnv()
	reconciler := payment.NewReconciler(orders, restaurants, provider, idem, notifier, payment.ReconcilerConfig{
		DefaultFeePercent: cfg.FeePercent,
	})

	classifier := newClassifierFromEnv()
	sender := newSenderFromEnv()
	flow := conversation.NewFlow(classifier, carts, restaurants, orderSvc, provider, sender)

	router := transport.NewRouter(reconciler, flow, cfg.App.ProviderName)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
