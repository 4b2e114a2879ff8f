// Command lending-service runs the book lending HTTP service backed by
// PostgreSQL.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/bookhaven/book-lending-go/httpapi"
	"github.com/bookhaven/book-lending-go/lending/postgresengine"
	"github.com/bookhaven/book-lending-go/service"
	"github.com/bookhaven/book-lending-go/shell/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "lending-service").Logger()

	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("service failed")
	}
}

func run(logger zerolog.Logger) error {
	cfg, cfgErr := config.LoadFromEnv()
	if cfgErr != nil {
		return cfgErr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, poolErr := config.NewPGXPool(ctx, cfg.PostgresDSN)
	if poolErr != nil {
		return poolErr
	}
	defer pool.Close()

	storeOptions := config.PrometheusStoreOptions(prometheus.DefaultRegisterer)

	if cfg.OTelEndpoint != "" {
		providers, otelErr := config.NewOTelProviders(ctx, cfg.OTelEndpoint)
		if otelErr != nil {
			return otelErr
		}

		defer func() {
			if shutdownErr := providers.Shutdown(); shutdownErr != nil {
				logger.Warn().Err(shutdownErr).Msg("telemetry shutdown failed")
			}
		}()

		storeOptions = providers.StoreOptions()

		logger.Info().Str("endpoint", cfg.OTelEndpoint).Msg("exporting telemetry over otlp")
	}

	store, storeErr := postgresengine.NewStoreFromPGXPool(pool, storeOptions...)
	if storeErr != nil {
		return storeErr
	}

	if schemaErr := store.EnsureSchema(ctx); schemaErr != nil {
		return schemaErr
	}

	server := httpapi.NewServer(
		service.NewLendingService(store, nil),
		service.NewCatalogService(store, nil),
		service.NewMembershipService(store, service.NewBcryptHasher(cfg.BcryptCost), nil),
		httpapi.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL, nil),
		store,
		logger,
	)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrs := make(chan error, 1)

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		serveErrs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErrs:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return nil
}
