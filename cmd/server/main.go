package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"relaychat-backend/internal/api"
	"relaychat-backend/internal/config"
	"relaychat-backend/internal/handlers"
	"relaychat-backend/internal/provider"
	"relaychat-backend/internal/relay"
	"relaychat-backend/internal/services"
	"relaychat-backend/internal/store"
	"relaychat-backend/internal/store/memory"
	"relaychat-backend/internal/store/postgres"
	"relaychat-backend/internal/tokens"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Info().Msg("starting relaychat backend")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Store selection: Postgres when a DATABASE_URL is configured, otherwise
	// the in-memory store (development only, nothing survives a restart).
	var conversationStore store.Store
	if cfg.DatabaseURL != "" {
		dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dbCancel()

		dbpool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("unable to create database connection pool")
		}
		defer dbpool.Close()

		if err := dbpool.Ping(dbCtx); err != nil {
			log.Fatal().Err(err).Msg("unable to ping database")
		}
		conversationStore = postgres.NewPostgresStore(dbpool)
		log.Info().Msg("postgres store initialized")
	} else {
		conversationStore = memory.NewMemoryStore()
		log.Warn().Msg("DATABASE_URL not set, using in-memory store (data is not persisted)")
	}

	providerClient := provider.NewClient(cfg)
	broadcaster := relay.NewBroadcaster()
	defer broadcaster.Close()
	estimator := tokens.NewEstimator()

	authService := services.NewAuthService(conversationStore, cfg)
	conversationService := services.NewConversationService(conversationStore, providerClient, broadcaster, estimator, cfg)

	router := api.NewRouter(api.RouterDependencies{
		AuthHandler:         handlers.NewAuthHandler(authService),
		ConversationHandler: handlers.NewConversationHandlers(conversationService, cfg),
		StreamHandler:       handlers.NewStreamHandlers(conversationService, broadcaster),
		Config:              cfg,
	})

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
		// No WriteTimeout: streaming responses and websockets stay open for
		// as long as the conversation does.
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server shutdown complete")
}
