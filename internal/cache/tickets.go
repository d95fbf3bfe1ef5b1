package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticketdesk/internal/domain"
	"github.com/spec-kit/ticketdesk/internal/observability"
	"github.com/spec-kit/ticketdesk/internal/repository"
)

const (
	ticketKeyPrefix  = "ticket:"
	detailKeyPrefix  = ticketKeyPrefix + "detail:"
	listKeyPrefix    = ticketKeyPrefix + "list:"
	warmConcurrency  = 8
	DefaultTicketTTL = 5 * time.Minute
)

type ticketCacheOptions struct {
	ttl     time.Duration
	metrics *observability.Metrics
}

func defaultTicketCacheOptions() *ticketCacheOptions {
	return &ticketCacheOptions{ttl: DefaultTicketTTL}
}

// TicketCacheOption configures a TicketCache.
type TicketCacheOption interface {
	apply(options *ticketCacheOptions)
}

type ticketCacheOptionFunc func(options *ticketCacheOptions)

func (f ticketCacheOptionFunc) apply(options *ticketCacheOptions) {
	f(options)
}

// WithTicketCacheTTL sets the lifetime of detail and list entries.
// The default is 5 minutes.
func WithTicketCacheTTL(ttl time.Duration) TicketCacheOption {
	return ticketCacheOptionFunc(func(options *ticketCacheOptions) {
		if ttl > 0 {
			options.ttl = ttl
		}
	})
}

// WithTicketCacheMetrics records hits and misses on metrics.
func WithTicketCacheMetrics(metrics *observability.Metrics) TicketCacheOption {
	return ticketCacheOptionFunc(func(options *ticketCacheOptions) {
		options.metrics = metrics
	})
}

// TicketCache is the cache-aside layer for single tickets and list pages.
// Concurrent misses for the same id are not coalesced; each one reads the
// repository.
type TicketCache struct {
	store   *Store
	tickets repository.TicketRepository
	logger  *zap.Logger
	options *ticketCacheOptions
}

// NewTicketCache creates a TicketCache.
func NewTicketCache(store *Store, tickets repository.TicketRepository, logger *zap.Logger, opts ...TicketCacheOption) *TicketCache {
	options := defaultTicketCacheOptions()
	for _, o := range opts {
		o.apply(options)
	}
	return &TicketCache{
		store:   store,
		tickets: tickets,
		logger:  logger,
		options: options,
	}
}

// DetailKey returns the cache key of a single ticket.
func DetailKey(id string) string {
	return detailKeyPrefix + id
}

// ListKey returns the cache key of a list query. Field order never affects it.
func ListKey(query domain.TicketQuery) string {
	return listKeyPrefix + query.Canonical()
}

// GetTicket returns the cached ticket, if any.
func (c *TicketCache) GetTicket(ctx context.Context, id string) (*domain.Ticket, bool) {
	var ticket domain.Ticket
	hit := c.getJSON(ctx, DetailKey(id), &ticket)
	c.options.metrics.RecordCacheLookup(ctx, "detail", hit)
	if !hit {
		c.logger.Debug("cache miss", zap.String("ticket_id", id))
		return nil, false
	}
	c.logger.Debug("cache hit", zap.String("ticket_id", id))
	return &ticket, true
}

// SetTicket caches ticket under its detail key.
func (c *TicketCache) SetTicket(ctx context.Context, ticket *domain.Ticket) {
	c.setJSON(ctx, DetailKey(ticket.ID), ticket)
}

// GetOrFetch returns the cached ticket or loads it from the repository and
// caches it. A missing ticket yields repository.ErrTicketNotFound.
func (c *TicketCache) GetOrFetch(ctx context.Context, id string) (*domain.Ticket, error) {
	if ticket, ok := c.GetTicket(ctx, id); ok {
		return ticket, nil
	}
	ticket, err := c.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.SetTicket(ctx, ticket)
	return ticket, nil
}

// GetList returns the cached page for query, if any.
func (c *TicketCache) GetList(ctx context.Context, query domain.TicketQuery) (*domain.TicketPage, bool) {
	var page domain.TicketPage
	hit := c.getJSON(ctx, ListKey(query), &page)
	c.options.metrics.RecordCacheLookup(ctx, "list", hit)
	if !hit {
		return nil, false
	}
	return &page, true
}

// SetList caches page as the result of query.
func (c *TicketCache) SetList(ctx context.Context, query domain.TicketQuery, page *domain.TicketPage) {
	c.setJSON(ctx, ListKey(query), page)
}

// InvalidateTicket drops the detail entry of id.
func (c *TicketCache) InvalidateTicket(ctx context.Context, id string) {
	c.store.Del(ctx, DetailKey(id))
}

// InvalidateAllLists drops every cached list page.
func (c *TicketCache) InvalidateAllLists(ctx context.Context) {
	c.store.DelByPattern(ctx, listKeyPrefix)
}

// InvalidateAll drops every ticket entry, detail and list.
func (c *TicketCache) InvalidateAll(ctx context.Context) {
	c.store.DelByPattern(ctx, ticketKeyPrefix)
	c.logger.Info("invalidated all ticket caches")
}

// WarmFrequent caches the most recently updated OPEN tickets, up to limit.
// It returns the number of tickets cached; failures are logged.
func (c *TicketCache) WarmFrequent(ctx context.Context, limit int) int {
	tickets, err := c.tickets.ListRecentByStatus(ctx, domain.TicketStatusOpen, limit)
	if err != nil {
		c.logger.Error("cache warming failed", zap.Error(err))
		return 0
	}
	eg := new(errgroup.Group)
	eg.SetLimit(warmConcurrency)
	for i := range tickets {
		ticket := &tickets[i]
		eg.Go(func() error {
			c.SetTicket(ctx, ticket)
			return nil
		})
	}
	_ = eg.Wait()
	c.logger.Info("cache warmed", zap.Int("count", len(tickets)))
	return len(tickets)
}

// WarmTickets loads and caches the given ids. Unknown ids are skipped.
func (c *TicketCache) WarmTickets(ctx context.Context, ids []string) int {
	warmed := make([]bool, len(ids))
	eg := new(errgroup.Group)
	eg.SetLimit(warmConcurrency)
	for i, id := range ids {
		i, id := i, id
		eg.Go(func() error {
			ticket, err := c.tickets.GetByID(ctx, id)
			if err != nil {
				c.logger.Warn("failed to warm ticket", zap.String("ticket_id", id), zap.Error(err))
				return nil
			}
			c.SetTicket(ctx, ticket)
			warmed[i] = true
			return nil
		})
	}
	_ = eg.Wait()

	count := 0
	for _, ok := range warmed {
		if ok {
			count++
		}
	}
	return count
}

func (c *TicketCache) getJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := c.store.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.store.Del(ctx, key)
		return false
	}
	return true
}

func (c *TicketCache) setJSON(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.store.Set(ctx, key, raw, c.options.ttl)
}
