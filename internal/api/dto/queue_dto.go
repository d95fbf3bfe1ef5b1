package dto

import (
	"encoding/json"
	"time"
)

// QueueStatsResponse holds job counts per state.
type QueueStatsResponse struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// JobResponse represents a queued job.
type JobResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`
	ProcessedOn  *time.Time      `json:"processed_on"`
	FinishedOn   *time.Time      `json:"finished_on"`
	AttemptsMade int             `json:"attempts_made"`
	FailedReason string          `json:"failed_reason,omitempty"`
}
