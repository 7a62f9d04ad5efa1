package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	repo, database, err := setupStore(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup room store")
	}
	if database != nil {
		defer database.Close()
	}

	services, err := setupServices(config, repo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go services.Sweeper.Run(ctx)
	go logSessionCompletions(ctx, services.Bus)
	go func() {
		if err := services.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("room gateway failed")
		}
	}()
	if services.Relay != nil {
		go services.Relay.Run(ctx)
	}

	if err := services.Timers.Resume(ctx); err != nil {
		log.Error().Err(err).Msg("failed to resume room timers")
	}

	server, err := setupServer(config, services, database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup server")
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", config.Store).
			Str("broadcast_mode", config.NATS.BroadcastMode).
			Msg("focusroom server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	services.Timers.Shutdown()
	if services.Relay != nil {
		services.Relay.Close()
	}
	log.Info().Msg("shutdown complete")
}
