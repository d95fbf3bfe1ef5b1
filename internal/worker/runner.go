package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticketdesk/internal/config"
	"github.com/spec-kit/ticketdesk/internal/events"
	"github.com/spec-kit/ticketdesk/internal/observability"
	"github.com/spec-kit/ticketdesk/internal/queue"
	"github.com/spec-kit/ticketdesk/internal/repository"
	"github.com/spec-kit/ticketdesk/internal/service"
)

// Dependencies bundles what a ticket job worker needs.
type Dependencies struct {
	Queue         *queue.RedisQueue
	Tickets       repository.TicketRepository
	Dispatcher    events.Dispatcher
	Notifications *service.NotificationService
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Config        config.QueueConfig
}

// Run registers notification handlers and processes ticket jobs until ctx
// is cancelled.
func Run(ctx context.Context, deps Dependencies) error {
	if deps.Notifications != nil {
		deps.Notifications.RegisterHandlers()
	}
	processor := NewTicketProcessor(deps.Tickets, deps.Dispatcher, deps.Logger)
	w := queue.NewWorker(deps.Queue, processor, deps.Logger,
		queue.WithConcurrency(deps.Config.Concurrency),
		queue.WithPollInterval(deps.Config.PollInterval),
		queue.WithStallTimeout(deps.Config.StallTimeout),
		queue.WithWorkerMetrics(deps.Metrics),
	)
	return w.Run(ctx)
}
