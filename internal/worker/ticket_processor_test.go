package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/ticketdesk/internal/domain"
	"github.com/spec-kit/ticketdesk/internal/events"
	"github.com/spec-kit/ticketdesk/internal/queue"
	"github.com/spec-kit/ticketdesk/internal/repository"
)

type recorder struct {
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func newProcessor(t *testing.T) (*TicketProcessor, *repository.MemoryTicketRepository, *recorder) {
	t.Helper()
	repo := repository.NewMemoryTicketRepository()
	dispatcher := events.NewInMemoryDispatcher()
	rec := &recorder{}
	dispatcher.Subscribe(events.EventTicketNotification, rec.handle)
	dispatcher.Subscribe(events.EventSLABreached, rec.handle)

	p := NewTicketProcessor(repo, dispatcher, zaptest.NewLogger(t))
	fixed := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	return p, repo, rec
}

func ticketJob(t *testing.T, kind domain.JobKind, ticketID string) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(domain.TicketJobPayload{TicketID: ticketID})
	require.NoError(t, err)
	return &queue.Job{ID: domain.JobID{Kind: kind, TicketID: ticketID}.String(), Kind: string(kind), Payload: payload}
}

func seedTicket(t *testing.T, repo repository.TicketRepository, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{Title: "Email bouncing", Priority: domain.TicketPriorityHigh, Status: status}
	require.NoError(t, repo.Create(context.Background(), ticket))
	return ticket
}

func TestProcessor_Notify(t *testing.T) {
	p, repo, rec := newProcessor(t)
	ticket := seedTicket(t, repo, domain.TicketStatusOpen)

	res, err := p.Process(context.Background(), ticketJob(t, domain.JobKindNotify, ticket.ID))
	require.NoError(t, err)
	result := res.(*NotifyResult)
	assert.True(t, result.Success)
	assert.Equal(t, ticket.ID, result.TicketID)
	assert.Equal(t, p.now(), result.NotifiedAt)

	require.Len(t, rec.events, 1)
	assert.Equal(t, events.EventTicketNotification, rec.events[0].Type)
	payload := rec.events[0].Payload.(events.TicketNotificationPayload)
	assert.Equal(t, ticket.Title, payload.Title)
	assert.Equal(t, domain.TicketPriorityHigh, payload.Priority)
}

func TestProcessor_NotifyMissingTicketIsRetryable(t *testing.T) {
	p, _, rec := newProcessor(t)

	_, err := p.Process(context.Background(), ticketJob(t, domain.JobKindNotify, "gone"))
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrTicketNotFound)
	assert.False(t, queue.IsUnrecoverable(err))
	assert.Empty(t, rec.events)
}

func TestProcessor_SLABreached(t *testing.T) {
	p, repo, rec := newProcessor(t)
	ticket := seedTicket(t, repo, domain.TicketStatusInProgress)

	res, err := p.Process(context.Background(), ticketJob(t, domain.JobKindSLACheck, ticket.ID))
	require.NoError(t, err)
	result := res.(*SLACheckResult)
	assert.True(t, result.Success)
	assert.True(t, result.SLABreached)
	require.NotNil(t, result.CheckedAt)

	require.Len(t, rec.events, 1)
	assert.Equal(t, events.EventSLABreached, rec.events[0].Type)
}

func TestProcessor_SLAResolvedAfterFiring(t *testing.T) {
	p, repo, rec := newProcessor(t)
	ticket := seedTicket(t, repo, domain.TicketStatusResolved)

	res, err := p.Process(context.Background(), ticketJob(t, domain.JobKindSLACheck, ticket.ID))
	require.NoError(t, err)
	result := res.(*SLACheckResult)
	assert.True(t, result.Success)
	assert.False(t, result.SLABreached)
	require.NotNil(t, result.ResolvedAt)
	assert.Equal(t, ticket.UpdatedAt, *result.ResolvedAt)
	assert.Empty(t, rec.events)
}

func TestProcessor_SLAMissingTicket(t *testing.T) {
	p, _, _ := newProcessor(t)

	res, err := p.Process(context.Background(), ticketJob(t, domain.JobKindSLACheck, "gone"))
	require.NoError(t, err)
	assert.Equal(t, &SLACheckResult{Success: false, Reason: "not found"}, res)
}

func TestProcessor_UnknownKindIsFatal(t *testing.T) {
	p, _, _ := newProcessor(t)

	_, err := p.Process(context.Background(), ticketJob(t, "escalate", "t1"))
	require.Error(t, err)
	assert.True(t, queue.IsUnrecoverable(err))

	_, err = p.Process(context.Background(), &queue.Job{ID: "x", Kind: "notify", Payload: json.RawMessage(`{}`)})
	assert.True(t, queue.IsUnrecoverable(err))
}
