package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/ticketdesk/internal/app"
	"github.com/spec-kit/ticketdesk/internal/config"
	"github.com/spec-kit/ticketdesk/internal/events"
	"github.com/spec-kit/ticketdesk/internal/observability"
	"github.com/spec-kit/ticketdesk/internal/service"
	"github.com/spec-kit/ticketdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open infrastructure", zap.Error(err))
	}
	defer infra.Close()
	if infra.Postgres == nil {
		logger.Warn("worker runs against an in-memory ticket store; jobs will not see tickets created by the API")
	}

	dispatcher := events.NewInMemoryDispatcher()
	err = worker.Run(ctx, worker.Dependencies{
		Queue:         infra.Queue,
		Tickets:       infra.Tickets,
		Dispatcher:    dispatcher,
		Notifications: service.NewNotificationService(dispatcher, logger.Named("notifications"), cfg.Notification),
		Metrics:       infra.Metrics,
		Logger:        logger.Named("worker"),
		Config:        cfg.Queue,
	})
	if err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
}
