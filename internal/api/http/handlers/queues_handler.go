package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticketdesk/internal/api/dto"
	"github.com/spec-kit/ticketdesk/internal/service"
)

// QueuesHandler exposes job queue introspection.
type QueuesHandler struct {
	queues *service.QueueService
}

// NewQueuesHandler constructs handler.
func NewQueuesHandler(queueService *service.QueueService) *QueuesHandler {
	return &QueuesHandler{queues: queueService}
}

// Stats GET /admin/queues/:name/stats.
func (h *QueuesHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.queues.Stats(c.UserContext(), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.QueueStatsResponse{
		Waiting:   stats.Waiting,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Delayed:   stats.Delayed,
	}})
}

// Jobs GET /admin/queues/:name/jobs?status=.
func (h *QueuesHandler) Jobs(c *fiber.Ctx) error {
	jobs, err := h.queues.Jobs(c.UserContext(), c.Params("name"), c.Query("status"))
	if err != nil {
		return err
	}
	items := make([]dto.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, dto.JobResponse{
			ID:           job.ID,
			Name:         job.Kind,
			Data:         job.Payload,
			Timestamp:    job.Timestamp,
			ProcessedOn:  job.ProcessedOn,
			FinishedOn:   job.FinishedOn,
			AttemptsMade: job.AttemptsMade,
			FailedReason: job.FailedReason,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
