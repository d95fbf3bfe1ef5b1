package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticketdesk/internal/domain"
)

// MemoryTicketRepository keeps tickets in process memory. It backs local
// runs without POSTGRES_DSN and the service tests.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	now     func() time.Time
}

// NewMemoryTicketRepository creates an empty repository.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]domain.Ticket),
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = r.now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	return &ticket, nil
}

func (r *MemoryTicketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return ErrTicketNotFound
	}
	ticket.UpdatedAt = r.now()
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *MemoryTicketRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return ErrTicketNotFound
	}
	delete(r.tickets, id)
	return nil
}

func (r *MemoryTicketRepository) Query(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	r.mu.RLock()
	matched := make([]domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		if matchesFilter(ticket, filter) {
			matched = append(matched, ticket)
		}
	}
	r.mu.RUnlock()

	desc := filter.SortOrder != domain.SortAsc
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		c := compareTickets(a, b, filter.SortBy)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	total := len(matched)
	limit := clampLimit(filter.Limit)
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	page := make([]domain.Ticket, end-start)
	copy(page, matched[start:end])
	return page, total, nil
}

func (r *MemoryTicketRepository) ListRecentByStatus(ctx context.Context, status domain.TicketStatus, limit int) ([]domain.Ticket, error) {
	tickets, _, err := r.Query(ctx, TicketFilter{
		Status:    &status,
		SortBy:    "updatedAt",
		SortOrder: domain.SortDesc,
		Limit:     clampLimit(limit),
	})
	return tickets, err
}

// Len returns the number of stored tickets.
func (r *MemoryTicketRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tickets)
}

func matchesFilter(ticket domain.Ticket, filter TicketFilter) bool {
	if filter.Status != nil && ticket.Status != *filter.Status {
		return false
	}
	if filter.Priority != nil && ticket.Priority != *filter.Priority {
		return false
	}
	if filter.Search != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.Search))
		if term != "" &&
			!strings.Contains(strings.ToLower(ticket.Title), term) &&
			!strings.Contains(strings.ToLower(ticket.Description), term) {
			return false
		}
	}
	return true
}

func compareTickets(a, b domain.Ticket, field string) int {
	switch field {
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "priority":
		return strings.Compare(string(a.Priority), string(b.Priority))
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
