package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority orders tasks within the queue. Lists are drained strictly
// urgent → high → normal → low by DequeueNext.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Priorities returns all priority levels in drain order.
func Priorities() []Priority {
	return []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}
}

// ParsePriority validates a priority string.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

// Status is the lifecycle state of a task.
//
// State machine: queued → processing → {completed | queued (retry) | failed}.
// completed and failed are terminal.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payload is the unit of embedding work carried by a task.
type Payload struct {
	// Text is the content to embed.
	Text string `json:"text"`
	// Category and Layer select the vector-store namespace the
	// resulting embedding is persisted to.
	Category string `json:"category"`
	Layer    string `json:"layer"`
	// ModelTier optionally pins the embedding to a model tier
	// (primary/secondary/tertiary). Empty means primary.
	ModelTier string `json:"model_tier,omitempty"`
	// Metadata is carried through to the stored embedding payload.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Task is a queued unit of embedding work with its retry state.
type Task struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Payload    Payload  `json:"payload"`
	Priority   Priority `json:"priority"`
	Status     Status   `json:"status"`
	Retries    int      `json:"retries"`
	MaxRetries int      `json:"max_retries"`

	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastFailedAt *time.Time `json:"last_failed_at,omitempty"`

	Result    json.RawMessage `json:"result,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}

// Stats is a point-in-time snapshot of queue depths and archives.
type Stats struct {
	Queued     map[Priority]int64 `json:"queued"`
	Processing int64              `json:"processing"`
	Completed  int64              `json:"completed"`
	Failed     int64              `json:"failed"`
}

// Total returns the number of queued tasks across all priorities.
func (s *Stats) Total() int64 {
	var n int64
	for _, c := range s.Queued {
		n += c
	}
	return n
}

// NotificationType distinguishes completion from failure events.
type NotificationType string

const (
	NotificationCompleted NotificationType = "completed"
	NotificationFailed    NotificationType = "failed"
)

// Notification is published on a task's event channel when it completes
// or fails. Delivery is best-effort, at-most-once, with no replay:
// only subscribers live at publish time receive it.
type Notification struct {
	Type      NotificationType `json:"type"`
	TaskID    string           `json:"task_id"`
	WillRetry bool             `json:"will_retry,omitempty"`
	Result    json.RawMessage  `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
