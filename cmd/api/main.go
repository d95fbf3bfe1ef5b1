package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/ticketdesk/internal/api/http"
	"github.com/spec-kit/ticketdesk/internal/api/http/handlers"
	"github.com/spec-kit/ticketdesk/internal/app"
	"github.com/spec-kit/ticketdesk/internal/cache"
	"github.com/spec-kit/ticketdesk/internal/config"
	"github.com/spec-kit/ticketdesk/internal/events"
	"github.com/spec-kit/ticketdesk/internal/observability"
	"github.com/spec-kit/ticketdesk/internal/service"
	"github.com/spec-kit/ticketdesk/internal/worker"
)

const shutdownTimeout = 10 * time.Second

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

	var backend cache.Backend = cache.NewRedisBackend(infra.Redis.Client)
	if cfg.Cache.Driver == "memory" {
		backend = cache.NewMemoryBackend()
	}
	ticketCache := cache.NewTicketCache(
		cache.NewStore(backend, logger.Named("cache")),
		infra.Tickets,
		logger.Named("cache"),
		cache.WithTicketCacheTTL(cfg.Cache.TTL),
		cache.WithTicketCacheMetrics(infra.Metrics),
	)
	if cfg.Cache.WarmOnStart {
		ticketCache.WarmFrequent(ctx, cfg.Cache.WarmLimit)
	}

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: infra.Tickets,
		Cache:      ticketCache,
		Jobs:       infra.Queue,
		Logger:     logger.Named("tickets"),
		Queue:      cfg.Queue,
	})
	queueService := service.NewQueueService(infra.Queue)

	readiness := map[string]handlers.Pinger{"redis": infra.Redis}
	if infra.Postgres != nil {
		readiness["postgres"] = infra.Postgres
	}

	server := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(server, logger.Named("http"), infra.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Tickets: handlers.NewTicketsHandler(ticketService),
		Queues:  handlers.NewQueuesHandler(queueService),
		Cache:   handlers.NewCacheHandler(ticketCache, cfg.Cache.WarmLimit),
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return server.Listen(cfg.App.Addr())
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return server.ShutdownWithTimeout(shutdownTimeout)
	})
	if cfg.Queue.WorkerEnabled {
		dispatcher := events.NewInMemoryDispatcher()
		eg.Go(func() error {
			return worker.Run(ctx, worker.Dependencies{
				Queue:         infra.Queue,
				Tickets:       infra.Tickets,
				Dispatcher:    dispatcher,
				Notifications: service.NewNotificationService(dispatcher, logger.Named("notifications"), cfg.Notification),
				Metrics:       infra.Metrics,
				Logger:        logger.Named("worker"),
				Config:        cfg.Queue,
			})
		})
	}

	if err := eg.Wait(); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
	}
}
