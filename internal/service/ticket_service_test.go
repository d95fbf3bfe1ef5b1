package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/ticketdesk/internal/cache"
	"github.com/spec-kit/ticketdesk/internal/config"
	"github.com/spec-kit/ticketdesk/internal/domain"
	"github.com/spec-kit/ticketdesk/internal/queue"
	"github.com/spec-kit/ticketdesk/internal/repository"
	apperrors "github.com/spec-kit/ticketdesk/pkg/util"
)

var testQueueConfig = config.QueueConfig{
	Name:           domain.TicketQueueName,
	SLADelay:       15 * time.Minute,
	NotifyAttempts: 3,
	NotifyBackoff:  2 * time.Second,
}

type fixture struct {
	svc   *TicketService
	repo  *repository.MemoryTicketRepository
	cache *cache.TicketCache
	queue *queue.RedisQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := repository.NewMemoryTicketRepository()
	tc := cache.NewTicketCache(cache.NewStore(cache.NewRedisBackend(client), logger), repo, logger)
	q := queue.NewRedisQueue(client, domain.TicketQueueName, logger)
	svc := NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Cache:      tc,
		Jobs:       q,
		Logger:     logger,
		Queue:      testQueueConfig,
	})
	return &fixture{svc: svc, repo: repo, cache: tc, queue: q}
}

func ptr[T any](v T) *T { return &v }

func TestTicketService_CreateAppliesDefaultsAndSchedulesJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.Create(ctx, CreateTicketInput{Title: "VPN drops hourly", Description: "since Monday"})
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)

	counts, err := f.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[queue.StateWaiting])
	assert.Equal(t, int64(1), counts[queue.StateDelayed])

	notify, err := f.queue.FindJob(ctx, "notify:"+ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateWaiting, notify.State)
	assert.Equal(t, 3, notify.Attempts)
	require.NotNil(t, notify.Backoff)
	assert.Equal(t, queue.BackoffExponential, notify.Backoff.Type)
	assert.Equal(t, 2*time.Second, notify.Backoff.Delay)

	sla, err := f.queue.FindJob(ctx, "sla:"+ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateDelayed, sla.State)
	assert.Equal(t, 15*time.Minute, sla.Delay)
	assert.Equal(t, 1, sla.Attempts)

	var payload domain.TicketJobPayload
	require.NoError(t, sla.Decode(&payload))
	assert.Equal(t, ticket.ID, payload.TicketID)
}

func TestTicketService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateTicketInput{Title: "abcd"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))
	assert.Contains(t, apperrors.ToDomainError(err).Details, "title")

	_, err = f.svc.Create(ctx, CreateTicketInput{Title: "Valid title", Priority: "URGENT"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	_, err = f.svc.Create(ctx, CreateTicketInput{Title: "Valid title", Description: strings.Repeat("x", 5001)})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	assert.Zero(t, f.repo.Len())
}

func TestTicketService_CreateSurvivesQueueOutage(t *testing.T) {
	logger := zaptest.NewLogger(t)
	repo := repository.NewMemoryTicketRepository()
	tc := cache.NewTicketCache(cache.NewStore(cache.NewMemoryBackend(), logger), repo, logger)
	svc := NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Cache:      tc,
		Jobs:       failingQueue{},
		Logger:     logger,
		Queue:      testQueueConfig,
	})

	ticket, err := svc.Create(context.Background(), CreateTicketInput{Title: "Printer jammed"})
	require.NoError(t, err)
	_, err = repo.GetByID(context.Background(), ticket.ID)
	assert.NoError(t, err)
}

func TestTicketService_FindOneReflectsUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.Create(ctx, CreateTicketInput{Title: "Monitor flickers"})
	require.NoError(t, err)
	before, err := f.svc.FindOne(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "Monitor flickers", before.Title)

	_, err = f.svc.Update(ctx, ticket.ID, UpdateTicketInput{Title: ptr("Monitor flickers at night"), Priority: ptr(domain.TicketPriorityHigh)})
	require.NoError(t, err)

	after, err := f.svc.FindOne(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "Monitor flickers at night", after.Title)
	assert.Equal(t, domain.TicketPriorityHigh, after.Priority)
	assert.Equal(t, domain.TicketStatusOpen, after.Status)
}

func TestTicketService_FindOneMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FindOne(context.Background(), "6f1c2d7e-0000-4000-8000-000000000000")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestTicketService_ResolveCancelsSLACheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.Create(ctx, CreateTicketInput{Title: "Shared drive full"})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, ticket.ID, UpdateTicketInput{Status: ptr(domain.TicketStatusResolved)})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, updated.Status)

	_, err = f.queue.FindJob(ctx, "sla:"+ticket.ID)
	assert.ErrorIs(t, err, queue.ErrJobNotFound)
	_, err = f.queue.FindJob(ctx, "notify:"+ticket.ID)
	assert.NoError(t, err)

	// resolving twice is harmless
	_, err = f.svc.Update(ctx, ticket.ID, UpdateTicketInput{Status: ptr(domain.TicketStatusResolved)})
	assert.NoError(t, err)
}

func TestTicketService_EmptyUpdateStillInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.Create(ctx, CreateTicketInput{Title: "Keyboard sticky"})
	require.NoError(t, err)
	_, err = f.svc.FindOne(ctx, ticket.ID)
	require.NoError(t, err)
	_, err = f.svc.FindAll(ctx, domain.TicketQuery{})
	require.NoError(t, err)

	same, err := f.svc.Update(ctx, ticket.ID, UpdateTicketInput{})
	require.NoError(t, err)
	assert.Equal(t, ticket.UpdatedAt, same.UpdatedAt)

	_, ok := f.cache.GetTicket(ctx, ticket.ID)
	assert.False(t, ok)
	_, ok = f.cache.GetList(ctx, domain.TicketQuery{})
	assert.False(t, ok)

	stored, err := f.repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.UpdatedAt, stored.UpdatedAt)
}

func TestTicketService_Remove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.Create(ctx, CreateTicketInput{Title: "Old laptop return"})
	require.NoError(t, err)
	_, err = f.svc.FindOne(ctx, ticket.ID)
	require.NoError(t, err)

	res, err := f.svc.Remove(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Ticket with ID %q has been successfully deleted", ticket.ID), res.Message)

	_, err = f.svc.FindOne(ctx, ticket.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	_, err = f.queue.FindJob(ctx, "sla:"+ticket.ID)
	assert.ErrorIs(t, err, queue.ErrJobNotFound)

	_, err = f.svc.Remove(ctx, "does-not-exist")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestTicketService_FindAllPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := f.svc.Create(ctx, CreateTicketInput{Title: fmt.Sprintf("Ticket number %02d", i)})
		require.NoError(t, err)
	}

	page, err := f.svc.FindAll(ctx, domain.TicketQuery{Page: ptr(3), PageSize: ptr(10)})
	require.NoError(t, err)
	assert.Len(t, page.Data, 5)
	assert.Equal(t, domain.PageMeta{Total: 25, Page: 3, PageSize: 10, TotalPages: 3}, page.Meta)

	first, err := f.svc.FindAll(ctx, domain.TicketQuery{})
	require.NoError(t, err)
	assert.Len(t, first.Data, 10)
	assert.Equal(t, 1, first.Meta.Page)

	_, ok := f.cache.GetList(ctx, domain.TicketQuery{PageSize: ptr(10), Page: ptr(3)})
	assert.True(t, ok)

	_, err = f.svc.FindAll(ctx, domain.TicketQuery{PageSize: ptr(500)})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))
}

func TestTicketService_FindAllFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range []CreateTicketInput{
		{Title: "Alpha printer", Priority: domain.TicketPriorityLow},
		{Title: "Bravo network", Description: "printer port", Priority: domain.TicketPriorityHigh},
		{Title: "Charlie email", Status: domain.TicketStatusInProgress},
	} {
		_, err := f.svc.Create(ctx, in)
		require.NoError(t, err)
	}

	res, err := f.svc.FindAll(ctx, domain.TicketQuery{Search: ptr("PRINTER"), SortBy: ptr("title"), SortOrder: ptr("asc")})
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "Alpha printer", res.Data[0].Title)
	assert.Equal(t, "Bravo network", res.Data[1].Title)

	res, err = f.svc.FindAll(ctx, domain.TicketQuery{Status: ptr(domain.TicketStatusInProgress)})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Charlie email", res.Data[0].Title)

	res, err = f.svc.FindAll(ctx, domain.TicketQuery{SortBy: ptr("nonsense; DROP TABLE tickets")})
	require.NoError(t, err)
	assert.Len(t, res.Data, 3)
}

func TestSortSpec(t *testing.T) {
	by, order := sortSpec(domain.TicketQuery{})
	assert.Equal(t, "createdAt", by)
	assert.Equal(t, domain.SortDesc, order)

	by, order = sortSpec(domain.TicketQuery{SortBy: ptr("bogus"), SortOrder: ptr("ASC")})
	assert.Equal(t, "createdAt", by)
	assert.Equal(t, domain.SortDesc, order)

	by, order = sortSpec(domain.TicketQuery{SortBy: ptr("priority"), SortOrder: ptr("asc")})
	assert.Equal(t, "priority", by)
	assert.Equal(t, domain.SortAsc, order)
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, string, any, queue.EnqueueOptions) (*queue.Job, error) {
	return nil, errors.New("redis: connection refused")
}

func (failingQueue) FindJob(context.Context, string) (*queue.Job, error) {
	return nil, errors.New("redis: connection refused")
}

func (failingQueue) Cancel(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}
