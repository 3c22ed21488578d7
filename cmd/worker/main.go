package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"phishbox/internal/classifier"
	"phishbox/internal/config"
	"phishbox/internal/enrichment"
	"phishbox/internal/ingest"
	"phishbox/internal/llm"
	"phishbox/internal/notify"
	"phishbox/internal/repository"
	"phishbox/internal/team"
	"phishbox/pkg/db"
	"phishbox/pkg/logger"
	"phishbox/pkg/mq"
	"phishbox/pkg/otel"
	"phishbox/pkg/redis"
	"phishbox/pkg/util"
)

const (
	serviceName    = "phishbox-worker"
	serviceVersion = "1.0.0"

	ingestQueue = "worker.ingest"
)

func main() {
	// Load config
	cfg := config.Load()

	logger := logger.NewLogger()
	defer logger.Sync()

	logger.Info("Starting worker service...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
	}, logger)
	if err != nil {
		logger.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	// Init DB. The server owns migrations.
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init Redis
	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, logger)
	retryCounter := util.NewRetryCounter(rdb, 24*time.Hour)

	// Init publisher for events and dead letters
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	if err := publisher.DeclareDLQ(ingest.RoutingKeyBatchFetched); err != nil {
		logger.Fatal("failed to declare DLQ", zap.Error(err))
	}

	events := notify.NewMQPublisher(publisher, logger)

	// Init repositories
	emailRepo := repository.NewEmailRepository(dbConn)
	resultRepo := repository.NewWorkflowResultRepository(dbConn)

	// Enrichment, classifiers, suggestions
	enricher := enrichment.NewClient(
		cfg.Enrichment.WikiURL,
		cfg.Enrichment.DirectoryURL,
		cfg.Enrichment.Timeout(),
		cfg.Enrichment.CacheTTL(),
		rdb,
		logger,
	)

	detectors := classifier.DefaultDetectors(cfg.Detectors.ModelURL, cfg.Detectors.Models, cfg.Detectors.Timeout())
	pool := classifier.NewPool(detectors, cfg.Detectors.Timeout(), logger)

	gen, err := llm.Resolve(cfg.LLM, logger)
	if err != nil {
		logger.Warn("No text generation backend; suggestions use keywords only", zap.Error(err))
		gen = nil
	}
	suggester := team.NewSuggester(gen, cfg.LLM.SuggestTimeout(), logger)
	autoSuggester := team.NewAutoSuggester(suggester, emailRepo, deduper, events, cfg.Suggest.BatchSize, logger).
		WithRateLimit(cfg.Suggest.RatePerMinute)

	// Ingestion
	service := ingest.NewService(emailRepo, resultRepo, enricher, pool, autoSuggester, events, logger)
	batchHandler := ingest.NewBatchHandler(service, retryCounter, publisher, logger)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, ingestQueue, ingest.RoutingKeyBatchFetched, logger)
	if err != nil {
		logger.Fatal("failed to init ingest consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(batchHandler.Handle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.StartConsuming(); err != nil {
			logger.Fatal("consumer start failed", zap.Error(err))
		}
	}()

	logger.Info("Worker service started", zap.Int("detectors", len(detectors)))

	<-ctx.Done()
	logger.Info("Shutting down worker")

	consumer.Stop()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("Timed out waiting for in-flight batch")
	}
}
