package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/traffic-incident-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/traffic-incident-etl/internal/adapter/kafka"
	"github.com/couchcryptid/traffic-incident-etl/internal/config"
	"github.com/couchcryptid/traffic-incident-etl/internal/ingest"
	"github.com/couchcryptid/traffic-incident-etl/internal/observability"
	"github.com/couchcryptid/traffic-incident-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Publishing is feature-flagged via KAFKA_ENABLED.
	var hook ingest.LoadHook
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		hook = pipeline.PublishHook(writer, logger, metrics)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	loader := ingest.NewLoader(cfg.IngestWorkers, logger, metrics)
	source := ingest.NewCachedLoader(loader, cfg.CacheSize, hook, logger, metrics)
	svc := pipeline.New(cfg.DataDir, source, pipeline.Options{
		DefaultCityCount: cfg.DefaultCityCount,
		TopVehicles:      cfg.TopVehicles,
	}, logger, metrics)

	// A dataset that cannot be loaded at startup leaves nothing to serve.
	if err := svc.Warm(context.Background()); err != nil {
		logger.Error("initial load failed", "data_dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, logger, httpadapter.WithRateLimit(cfg.APIRateLimit, cfg.APIRateBurst))

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
