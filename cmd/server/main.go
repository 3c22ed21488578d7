package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"phishbox/internal/agentic"
	"phishbox/internal/assignment"
	"phishbox/internal/config"
	"phishbox/internal/handler"
	"phishbox/internal/httpserver"
	"phishbox/internal/llm"
	"phishbox/internal/notify"
	"phishbox/internal/repository"
	"phishbox/internal/team"
	"phishbox/migrations"
	"phishbox/pkg/db"
	"phishbox/pkg/logger"
	"phishbox/pkg/mq"
	"phishbox/pkg/otel"
	"phishbox/pkg/outbox"
	"phishbox/pkg/redis"
)

const (
	serviceName    = "phishbox-server"
	serviceVersion = "1.0.0"
)

func main() {
	// 1. Load config
	cfg := config.Load()

	logger := logger.NewLogger()
	defer logger.Sync()

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

	// 2. Init DB and apply migrations
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	if err := db.Migrate(ctx, dbConn, migrations.FS, logger); err != nil {
		logger.Fatal("DB migration failed", zap.Error(err))
	}

	// 3. Init Redis and RabbitMQ
	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// 4. Repositories
	emailRepo := repository.NewEmailRepository(dbConn)
	resultRepo := repository.NewWorkflowResultRepository(dbConn)
	statsRepo := repository.NewStatsRepository(dbConn)
	outboxRepo := outbox.NewRepository(dbConn)

	// 5. Text generation backend, resolved once for the process lifetime
	gen, err := llm.Resolve(cfg.LLM, logger)
	if err != nil {
		logger.Warn("No text generation backend; suggestions fall back to keywords and discussions will fail", zap.Error(err))
		gen = nil
	}

	// 6. Discussion tasks and the event hub
	var tasks agentic.TaskStore
	switch cfg.Agentic.Store {
	case "redis":
		tasks = agentic.NewRedisStore(rdb, cfg.Agentic.TaskTTL())
	default:
		tasks = agentic.NewMemoryStore(cfg.Agentic.TaskTTL())
	}
	logger.Info("Discussion task store ready", zap.String("store", cfg.Agentic.Store))

	hub := notify.NewHub(logger)

	orchestrator := agentic.NewOrchestrator(tasks, gen, hub, cfg.LLM.StepTimeout(), logger)
	suggester := team.NewSuggester(gen, cfg.LLM.SuggestTimeout(), logger)
	assignService := assignment.NewService(emailRepo, orchestrator, tasks, suggester, hub, logger)

	// 7. Outbox dispatcher and replay
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, logger).WithInterval(2 * time.Second)
	go dispatcher.Start(ctx)

	replay := outbox.NewReplayService(outboxRepo, publisher, logger)

	// 8. Relay worker-side events into the hub. Each replica gets its own
	// queue so every connected client sees every event.
	hostname, _ := os.Hostname()
	relay, err := mq.NewConsumer(cfg.MQ.URL, "server.notify."+hostname, notify.RoutingKeyPrefix+"#", logger)
	if err != nil {
		logger.Fatal("failed to init notify relay consumer", zap.Error(err))
	}
	defer relay.Close()
	relay.SetHandler(notify.NewRelay(hub).Handle)

	go func() {
		if err := relay.StartConsuming(); err != nil {
			logger.Fatal("notify relay start failed", zap.Error(err))
		}
	}()

	// 9. Handlers and router
	handlers := httpserver.Handlers{
		Emails: handler.NewEmailHandler(emailRepo, resultRepo, statsRepo, publisher, logger),
		Teams:  handler.NewTeamHandler(assignService, logger),
		Events: handler.NewEventsHandler(hub, 15*time.Second),
		Admin:  handler.NewAdminHandler(replay, logger),
	}
	router := httpserver.NewRouter(handlers, cfg.JWT.Secret, map[string]httpserver.ReadinessCheck{
		"database": emailRepo.Ping,
		"rabbitmq": func(context.Context) error {
			if !publisher.IsConnected() {
				return mq.ErrNotConnected
			}
			return nil
		},
	})

	// 10. Run server until signalled
	server := httpserver.NewServer(cfg.Server.Port, router, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("server start failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Streams block Shutdown until their clients go away; closing the hub
	// ends them first.
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	relay.Stop()
	orchestrator.Shutdown()
}
