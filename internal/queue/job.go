package queue

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
)

// State is the position of a job in its lifecycle.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// States lists every state in reporting order.
var States = []State{StateWaiting, StateActive, StateCompleted, StateFailed, StateDelayed}

// ParseState returns the State named s.
func ParseState(s string) (State, bool) {
	for _, state := range States {
		if string(state) == s {
			return state, true
		}
	}
	return "", false
}

// ErrJobNotFound is returned when no job has the requested id.
var ErrJobNotFound = errors.New("job not found")

type unrecoverableError struct {
	err error
}

func (e *unrecoverableError) Error() string { return e.err.Error() }
func (e *unrecoverableError) Unwrap() error { return e.err }

// Unrecoverable marks err so the job fails immediately without retries.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &unrecoverableError{err: err}
}

// IsUnrecoverable reports whether err was marked with Unrecoverable.
func IsUnrecoverable(err error) bool {
	var u *unrecoverableError
	return errors.As(err, &u)
}

// BackoffType selects how retry delays grow.
type BackoffType string

const (
	BackoffExponential BackoffType = "exponential"
	BackoffFixed       BackoffType = "fixed"
)

// Backoff is a retry delay policy.
type Backoff struct {
	Type  BackoffType
	Delay time.Duration
}

// delayFor returns the wait before retry number attempt (1-based).
func (b *Backoff) delayFor(attempt int) time.Duration {
	if b == nil || b.Delay <= 0 || attempt <= 0 {
		return 0
	}
	var policy retry.Backoff
	switch b.Type {
	case BackoffFixed:
		policy = retry.NewConstant(b.Delay)
	default:
		policy = retry.NewExponential(b.Delay)
	}
	var next time.Duration
	for i := 0; i < attempt; i++ {
		next, _ = policy.Next()
	}
	return next
}

// EnqueueOptions controls scheduling of a new job.
type EnqueueOptions struct {
	// JobID makes the enqueue idempotent: a second job with the same id is
	// merged into the first. A random id is used when empty.
	JobID    string
	Delay    time.Duration
	Attempts int
	Backoff  *Backoff
}

// Job is a unit of queued work.
type Job struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	State        State           `json:"state"`
	Attempts     int             `json:"attempts"`
	AttemptsMade int             `json:"attempts_made"`
	Backoff      *Backoff        `json:"-"`
	Delay        time.Duration   `json:"delay"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	FailedReason string          `json:"failed_reason,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

func (j *Job) fields() []any {
	fields := []any{
		"id", j.ID,
		"kind", j.Kind,
		"payload", string(j.Payload),
		"state", string(j.State),
		"attempts", j.Attempts,
		"attempts_made", j.AttemptsMade,
		"delay_ms", j.Delay.Milliseconds(),
		"created_at", j.CreatedAt.UnixMilli(),
	}
	if j.Backoff != nil {
		fields = append(fields, "backoff_type", string(j.Backoff.Type), "backoff_ms", j.Backoff.Delay.Milliseconds())
	}
	return fields
}

func jobFromHash(h map[string]string) *Job {
	job := &Job{
		ID:           h["id"],
		Kind:         h["kind"],
		Payload:      json.RawMessage(h["payload"]),
		State:        State(h["state"]),
		Attempts:     atoi(h["attempts"]),
		AttemptsMade: atoi(h["attempts_made"]),
		Delay:        time.Duration(atoi64(h["delay_ms"])) * time.Millisecond,
		CreatedAt:    time.UnixMilli(atoi64(h["created_at"])),
		ProcessedAt:  optionalMillis(h["processed_at"]),
		FinishedAt:   optionalMillis(h["finished_at"]),
		FailedReason: h["failed_reason"],
	}
	if t := h["backoff_type"]; t != "" {
		job.Backoff = &Backoff{
			Type:  BackoffType(t),
			Delay: time.Duration(atoi64(h["backoff_ms"])) * time.Millisecond,
		}
	}
	if r := h["result"]; r != "" {
		job.Result = json.RawMessage(r)
	}
	return job
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func optionalMillis(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := time.UnixMilli(atoi64(s))
	return &t
}
