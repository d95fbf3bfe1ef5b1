package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spec-kit/ticketdesk/internal/queue"
	apperrors "github.com/spec-kit/ticketdesk/pkg/util"
)

// jobListLimit caps the number of jobs returned by a listing.
const jobListLimit = 100

// InspectableQueue is a queue whose state can be reported.
type InspectableQueue interface {
	Name() string
	Counts(ctx context.Context) (map[queue.State]int64, error)
	ListByState(ctx context.Context, state queue.State, limit int) ([]*queue.Job, error)
}

// QueueStats holds job counts per state.
type QueueStats struct {
	Waiting   int64
	Active    int64
	Completed int64
	Failed    int64
	Delayed   int64
}

// JobSummary is the reported view of a job.
type JobSummary struct {
	ID           string
	Kind         string
	Payload      json.RawMessage
	Timestamp    time.Time
	ProcessedOn  *time.Time
	FinishedOn   *time.Time
	AttemptsMade int
	FailedReason string
}

// QueueService reports on registered job queues.
type QueueService struct {
	queues map[string]InspectableQueue
}

// NewQueueService registers queues by name.
func NewQueueService(queues ...InspectableQueue) *QueueService {
	registered := make(map[string]InspectableQueue, len(queues))
	for _, q := range queues {
		registered[q.Name()] = q
	}
	return &QueueService{queues: registered}
}

// Stats returns the job counts of the named queue.
func (s *QueueService) Stats(ctx context.Context, name string) (*QueueStats, error) {
	q, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	counts, err := q.Counts(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &QueueStats{
		Waiting:   counts[queue.StateWaiting],
		Active:    counts[queue.StateActive],
		Completed: counts[queue.StateCompleted],
		Failed:    counts[queue.StateFailed],
		Delayed:   counts[queue.StateDelayed],
	}, nil
}

// Jobs lists jobs of the named queue in status; an empty status means waiting.
func (s *QueueService) Jobs(ctx context.Context, name, status string) ([]JobSummary, error) {
	q, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if status == "" {
		status = string(queue.StateWaiting)
	}
	state, ok := queue.ParseState(status)
	if !ok {
		return nil, apperrors.NewNotFound("job status", map[string]any{"status": status})
	}

	jobs, err := q.ListByState(ctx, state, jobListLimit)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, JobSummary{
			ID:           job.ID,
			Kind:         job.Kind,
			Payload:      job.Payload,
			Timestamp:    job.CreatedAt,
			ProcessedOn:  job.ProcessedAt,
			FinishedOn:   job.FinishedAt,
			AttemptsMade: job.AttemptsMade,
			FailedReason: job.FailedReason,
		})
	}
	return summaries, nil
}

func (s *QueueService) lookup(name string) (InspectableQueue, error) {
	q, ok := s.queues[name]
	if !ok {
		return nil, apperrors.NewNotFound("queue", map[string]any{"name": name})
	}
	return q, nil
}
