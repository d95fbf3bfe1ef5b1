// Package app opens the infrastructure shared by the API and worker binaries.
package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/spec-kit/ticketdesk/internal/config"
	"github.com/spec-kit/ticketdesk/internal/observability"
	"github.com/spec-kit/ticketdesk/internal/persistence"
	"github.com/spec-kit/ticketdesk/internal/queue"
	"github.com/spec-kit/ticketdesk/internal/repository"
)

// Infra holds connections and stores. Postgres is nil when POSTGRES_DSN is
// unset, in which case tickets live in process memory.
type Infra struct {
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Tickets  repository.TicketRepository
	Queue    *queue.RedisQueue
	Metrics  *observability.Metrics
}

// Open connects to Postgres and Redis according to cfg.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Infra, error) {
	metrics, err := observability.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	infra := &Infra{Metrics: metrics}

	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		infra.Postgres = pg
		infra.Tickets = repository.NewTicketRepository(pg.PoolHandle())
	} else {
		logger.Warn("POSTGRES_DSN not provided; tickets are kept in memory")
		infra.Tickets = repository.NewMemoryTicketRepository()
	}

	infra.Redis = persistence.NewRedis(cfg.Redis, logger)
	infra.Queue = queue.NewRedisQueue(infra.Redis.Client, cfg.Queue.Name, logger)
	return infra, nil
}

// Close releases all connections.
func (i *Infra) Close() {
	i.Redis.Close()
	i.Postgres.Close()
}
