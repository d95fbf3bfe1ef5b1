package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticketdesk/internal/domain"
	"github.com/spec-kit/ticketdesk/internal/events"
	"github.com/spec-kit/ticketdesk/internal/queue"
	"github.com/spec-kit/ticketdesk/internal/repository"
)

// NotifyResult is recorded for a completed notify job.
type NotifyResult struct {
	Success    bool      `json:"success"`
	TicketID   string    `json:"ticket_id"`
	NotifiedAt time.Time `json:"notified_at"`
}

// SLACheckResult is recorded for a completed sla-check job.
type SLACheckResult struct {
	Success     bool       `json:"success"`
	SLABreached bool       `json:"sla_breached"`
	Reason      string     `json:"reason,omitempty"`
	CheckedAt   *time.Time `json:"checked_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// TicketProcessor executes ticket jobs.
type TicketProcessor struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewTicketProcessor creates a processor reading tickets from tickets and
// publishing notifications on dispatcher.
func NewTicketProcessor(tickets repository.TicketRepository, dispatcher events.Dispatcher, logger *zap.Logger) *TicketProcessor {
	return &TicketProcessor{
		tickets:    tickets,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Process runs job according to its kind. Unknown kinds and malformed
// payloads fail without retry.
func (p *TicketProcessor) Process(ctx context.Context, job *queue.Job) (any, error) {
	var payload domain.TicketJobPayload
	if err := job.Decode(&payload); err != nil {
		return nil, queue.Unrecoverable(fmt.Errorf("decode payload of job %s: %w", job.ID, err))
	}
	if payload.TicketID == "" {
		return nil, queue.Unrecoverable(fmt.Errorf("job %s has no ticket id", job.ID))
	}

	switch domain.JobKind(job.Kind) {
	case domain.JobKindNotify:
		return p.notify(ctx, payload.TicketID)
	case domain.JobKindSLACheck:
		return p.checkSLA(ctx, payload.TicketID)
	default:
		return nil, queue.Unrecoverable(fmt.Errorf("unknown job kind %q", job.Kind))
	}
}

// notify fails with a retryable error while the ticket is missing.
func (p *TicketProcessor) notify(ctx context.Context, ticketID string) (*NotifyResult, error) {
	ticket, err := p.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}

	now := p.now()
	p.publish(ctx, events.Event{
		Type:      events.EventTicketNotification,
		TicketID:  ticket.ID,
		Timestamp: now,
		Payload: events.TicketNotificationPayload{
			Title:     ticket.Title,
			Priority:  ticket.Priority,
			Status:    ticket.Status,
			CreatedAt: ticket.CreatedAt,
		},
	})
	return &NotifyResult{Success: true, TicketID: ticket.ID, NotifiedAt: now}, nil
}

// checkSLA never retries on a missing ticket.
func (p *TicketProcessor) checkSLA(ctx context.Context, ticketID string) (*SLACheckResult, error) {
	ticket, err := p.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		p.logger.Info("SLA check skipped: ticket not found", zap.String("ticket_id", ticketID))
		return &SLACheckResult{Success: false, Reason: "not found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}

	if ticket.Status == domain.TicketStatusResolved {
		resolvedAt := ticket.UpdatedAt
		return &SLACheckResult{Success: true, SLABreached: false, ResolvedAt: &resolvedAt}, nil
	}

	now := p.now()
	p.publish(ctx, events.Event{
		Type:      events.EventSLABreached,
		TicketID:  ticket.ID,
		Timestamp: now,
		Payload: events.SLABreachedPayload{
			Title:     ticket.Title,
			Priority:  ticket.Priority,
			Status:    ticket.Status,
			CreatedAt: ticket.CreatedAt,
			CheckedAt: now,
		},
	})
	return &SLACheckResult{Success: true, SLABreached: true, CheckedAt: &now}, nil
}

func (p *TicketProcessor) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil {
		p.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.String("ticket_id", event.TicketID), zap.Error(err))
	}
}
