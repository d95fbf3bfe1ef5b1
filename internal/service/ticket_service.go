package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticketdesk/internal/cache"
	"github.com/spec-kit/ticketdesk/internal/config"
	"github.com/spec-kit/ticketdesk/internal/domain"
	"github.com/spec-kit/ticketdesk/internal/queue"
	"github.com/spec-kit/ticketdesk/internal/repository"
	apperrors "github.com/spec-kit/ticketdesk/pkg/util"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
)

// JobQueue is the part of the job queue the ticket workflows schedule on.
type JobQueue interface {
	Enqueue(ctx context.Context, kind string, payload any, opts queue.EnqueueOptions) (*queue.Job, error)
	FindJob(ctx context.Context, id string) (*queue.Job, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// TicketService coordinates ticket workflows: persistence, cache upkeep and
// background job scheduling.
type TicketService struct {
	tickets repository.TicketRepository
	cache   *cache.TicketCache
	jobs    JobQueue
	logger  *zap.Logger
	cfg     config.QueueConfig
}

// TicketDependencies bundles collaborators of the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Cache      *cache.TicketCache
	Jobs       JobQueue
	Logger     *zap.Logger
	Queue      config.QueueConfig
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Title       string                `json:"title" validate:"required,min=5,max=500"`
	Description string                `json:"description" validate:"max=5000"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	Status      domain.TicketStatus   `json:"status" validate:"omitempty,oneof=OPEN IN_PROGRESS RESOLVED"`
}

// UpdateTicketInput is a partial update; nil fields keep their value.
type UpdateTicketInput struct {
	Title       *string                `json:"title" validate:"omitnil,min=5,max=500"`
	Description *string                `json:"description" validate:"omitnil,max=5000"`
	Priority    *domain.TicketPriority `json:"priority" validate:"omitnil,oneof=LOW MEDIUM HIGH"`
	Status      *domain.TicketStatus   `json:"status" validate:"omitnil,oneof=OPEN IN_PROGRESS RESOLVED"`
}

// RemoveResult confirms a deletion.
type RemoveResult struct {
	Message string `json:"message"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets: deps.TicketRepo,
		cache:   deps.Cache,
		jobs:    deps.Jobs,
		logger:  deps.Logger,
		cfg:     deps.Queue,
	}
}

// Create persists a new ticket and schedules its notify and SLA jobs.
// Scheduling failures are logged; the ticket is still returned.
func (s *TicketService) Create(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	if err := apperrors.ValidateStruct(input); err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		Title:       input.Title,
		Description: input.Description,
		Priority:    input.Priority,
		Status:      input.Status,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.cache.InvalidateAllLists(ctx)
	s.scheduleJobs(ctx, ticket)

	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.String("priority", string(ticket.Priority)))
	return ticket, nil
}

// FindOne returns a ticket through the cache.
func (s *TicketService) FindOne(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.cache.GetOrFetch(ctx, id)
	if err != nil {
		return nil, ticketError(id, err)
	}
	return ticket, nil
}

// FindAll returns one page of tickets matching query through the cache.
func (s *TicketService) FindAll(ctx context.Context, query domain.TicketQuery) (*domain.TicketPage, error) {
	if err := apperrors.ValidateStruct(query); err != nil {
		return nil, err
	}
	if page, ok := s.cache.GetList(ctx, query); ok {
		return page, nil
	}

	page, pageSize := defaultPage, defaultPageSize
	if query.Page != nil {
		page = *query.Page
	}
	if query.PageSize != nil {
		pageSize = *query.PageSize
	}
	sortBy, sortOrder := sortSpec(query)

	rows, total, err := s.tickets.Query(ctx, repository.TicketFilter{
		Status:    query.Status,
		Priority:  query.Priority,
		Search:    query.Search,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	result := &domain.TicketPage{
		Data: rows,
		Meta: domain.PageMeta{
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: domain.TotalPages(total, pageSize),
		},
	}
	s.cache.SetList(ctx, query, result)
	return result, nil
}

// Update applies the fields present in input. Moving a ticket to RESOLVED
// cancels its pending SLA check.
func (s *TicketService) Update(ctx context.Context, id string, input UpdateTicketInput) (*domain.Ticket, error) {
	if err := apperrors.ValidateStruct(input); err != nil {
		return nil, err
	}
	ticket, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := ticket.Status
	if applyUpdate(ticket, input) {
		if err := s.tickets.Save(ctx, ticket); err != nil {
			return nil, ticketError(id, err)
		}
	}
	s.cache.InvalidateTicket(ctx, id)
	s.cache.InvalidateAllLists(ctx)

	if ticket.Status == domain.TicketStatusResolved && previous != domain.TicketStatusResolved {
		s.cancelSLACheck(ctx, id)
	}
	return ticket, nil
}

// Remove deletes a ticket and cancels its pending SLA check.
func (s *TicketService) Remove(ctx context.Context, id string) (*RemoveResult, error) {
	if _, err := s.FindOne(ctx, id); err != nil {
		return nil, err
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		return nil, ticketError(id, err)
	}
	s.cache.InvalidateTicket(ctx, id)
	s.cache.InvalidateAllLists(ctx)
	s.cancelSLACheck(ctx, id)

	s.logger.Info("ticket deleted", zap.String("ticket_id", id))
	return &RemoveResult{Message: fmt.Sprintf("Ticket with ID %q has been successfully deleted", id)}, nil
}

func (s *TicketService) scheduleJobs(ctx context.Context, ticket *domain.Ticket) {
	if s.jobs == nil {
		return
	}
	payload := domain.TicketJobPayload{TicketID: ticket.ID}

	notifyID := domain.NotifyJobID(ticket.ID)
	if _, err := s.jobs.Enqueue(ctx, string(notifyID.Kind), payload, queue.EnqueueOptions{
		JobID:    notifyID.String(),
		Attempts: s.cfg.NotifyAttempts,
		Backoff:  &queue.Backoff{Type: queue.BackoffExponential, Delay: s.cfg.NotifyBackoff},
	}); err != nil {
		s.logger.Error("failed to enqueue notification", zap.String("job_id", notifyID.String()), zap.Error(err))
	}

	slaID := domain.SLAJobID(ticket.ID)
	if _, err := s.jobs.Enqueue(ctx, string(slaID.Kind), payload, queue.EnqueueOptions{
		JobID:    slaID.String(),
		Delay:    s.cfg.SLADelay,
		Attempts: 1,
	}); err != nil {
		s.logger.Error("failed to enqueue SLA check", zap.String("job_id", slaID.String()), zap.Error(err))
	}
}

// cancelSLACheck drops the pending SLA job of a ticket. A job that is
// absent, running or finished is left alone.
func (s *TicketService) cancelSLACheck(ctx context.Context, ticketID string) {
	if s.jobs == nil {
		return
	}
	id := domain.SLAJobID(ticketID).String()
	if _, err := s.jobs.FindJob(ctx, id); err != nil {
		if !errors.Is(err, queue.ErrJobNotFound) {
			s.logger.Error("failed to look up SLA check", zap.String("job_id", id), zap.Error(err))
		}
		return
	}
	removed, err := s.jobs.Cancel(ctx, id)
	if err != nil {
		s.logger.Error("failed to cancel SLA check", zap.String("job_id", id), zap.Error(err))
		return
	}
	if removed {
		s.logger.Info("SLA check cancelled", zap.String("job_id", id))
	}
}

func applyUpdate(ticket *domain.Ticket, input UpdateTicketInput) bool {
	changed := false
	if input.Title != nil && *input.Title != ticket.Title {
		ticket.Title = *input.Title
		changed = true
	}
	if input.Description != nil && *input.Description != ticket.Description {
		ticket.Description = *input.Description
		changed = true
	}
	if input.Priority != nil && *input.Priority != ticket.Priority {
		ticket.Priority = *input.Priority
		changed = true
	}
	if input.Status != nil && *input.Status != ticket.Status {
		ticket.Status = *input.Status
		changed = true
	}
	return changed
}

// sortSpec resolves the sort column and direction. An unknown or absent
// sort field falls back to newest first.
func sortSpec(query domain.TicketQuery) (string, string) {
	if query.SortBy == nil || !isSortField(*query.SortBy) {
		return "createdAt", domain.SortDesc
	}
	order := domain.SortDesc
	if query.SortOrder != nil && strings.EqualFold(*query.SortOrder, domain.SortAsc) {
		order = domain.SortAsc
	}
	return *query.SortBy, order
}

func isSortField(field string) bool {
	for _, candidate := range domain.TicketSortFields {
		if candidate == field {
			return true
		}
	}
	return false
}

func ticketError(id string, err error) error {
	if errors.Is(err, repository.ErrTicketNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return apperrors.NewInternalError(err)
}
