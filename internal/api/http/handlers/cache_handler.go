package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticketdesk/internal/api/dto"
	"github.com/spec-kit/ticketdesk/internal/cache"
	apperrors "github.com/spec-kit/ticketdesk/pkg/util"
)

// CacheHandler exposes ticket cache maintenance.
type CacheHandler struct {
	cache     *cache.TicketCache
	warmLimit int
}

// NewCacheHandler constructs handler. warmLimit bounds a warm-up without ids.
func NewCacheHandler(ticketCache *cache.TicketCache, warmLimit int) *CacheHandler {
	return &CacheHandler{cache: ticketCache, warmLimit: warmLimit}
}

// Warm POST /admin/cache/warm.
func (h *CacheHandler) Warm(c *fiber.Ctx) error {
	var req dto.WarmCacheRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	var warmed int
	if len(req.IDs) > 0 {
		warmed = h.cache.WarmTickets(c.UserContext(), req.IDs)
	} else {
		warmed = h.cache.WarmFrequent(c.UserContext(), h.warmLimit)
	}
	return c.JSON(fiber.Map{"data": dto.WarmCacheResponse{Warmed: warmed}})
}

// Clear DELETE /admin/cache.
func (h *CacheHandler) Clear(c *fiber.Ctx) error {
	h.cache.InvalidateAll(c.UserContext())
	return c.SendStatus(fiber.StatusNoContent)
}
