// Command bc-bridge serves Business Central operations and receives
// webhook notifications over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/bc-odata-client/internal/config"
	"github.com/Sternrassler/bc-odata-client/pkg/logging"
	"github.com/Sternrassler/bc-odata-client/pkg/metrics"
	"github.com/Sternrassler/bc-odata-client/pkg/pagination"
	"github.com/Sternrassler/bc-odata-client/pkg/resources"
	"github.com/Sternrassler/bc-odata-client/pkg/webhook"
)

var version = "dev"

var bannerOnce sync.Once

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("bc-bridge stopped")
	}
}

func run() error {
	cfg, err := config.Load(getEnv("BC_CONFIG", ""))
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging())
	logger := logging.NewLogger("bc-bridge")
	metrics.SetBuildInfo(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bc, rdb, err := cfg.Connect(ctx)
	if err != nil {
		return err
	}
	defer bc.Close()
	if rdb != nil {
		defer rdb.Close()
	}

	srv := &server{
		env:   resources.NewEnv(bc, cfg.Pagination()),
		table: resources.DefaultTable(),
		redis: rdb,
		webhook: webhook.NewHandler(bc, webhook.HandlerConfig{
			ClientState:     cfg.Webhook.ClientState,
			FetchFullRecord: cfg.Webhook.FetchFullRecord,
		}, logSink(logger)),
		logger:   logger,
		apiToken: cfg.APIToken,
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(logger, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// logSink writes each notification as a structured log line.
func logSink(logger zerolog.Logger) webhook.Sink {
	return func(_ context.Context, records []pagination.Record) error {
		for _, rec := range records {
			logger.Info().
				Interface("changeType", rec["changeType"]).
				Interface("resource", rec["resource"]).
				Bool("fetched", rec["record"] != nil).
				Msg("Notification received")
		}
		return nil
	}
}

func printBanner(logger zerolog.Logger, cfg config.Config) {
	bannerOnce.Do(func() {
		logger.Info().
			Str("version", version).
			Str("addr", cfg.Addr()).
			Bool("api_token", cfg.APIToken != "").
			Str("tenant", cfg.TenantID).
			Str("environment", cfg.Environment).
			Bool("redis", cfg.RedisURL != "").
			Bool("oauth2", cfg.ClientID != "").
			Msg("Starting bc-bridge")
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
