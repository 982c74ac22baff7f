package queue

import (
	"context"
	"encoding/json"
	"time"

	"concierge-server/internal/domain/conversation"
)

// TaskType discriminates queued work.
type TaskType string

const (
	// TypeInboundMessage routes a normalized carrier event through the
	// conversation state machine.
	TypeInboundMessage TaskType = "inbound_message"
	// TypeOutboundSend delivers an already-persisted reply to a carrier.
	TypeOutboundSend TaskType = "outbound_send"
)

// Task is one unit of queued work. Payload is the JSON encoding of either
// conversation.InboundEvent or conversation.OutboundMessage.
type Task struct {
	ID           uint
	Type         TaskType
	Payload      json.RawMessage
	PartitionKey string
	Attempts     int
	QueuedAt     time.Time
}

// InboundEvent decodes the payload of a TypeInboundMessage task.
func (t *Task) InboundEvent() (*conversation.InboundEvent, error) {
	var event conversation.InboundEvent
	if err := json.Unmarshal(t.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// OutboundMessage decodes the payload of a TypeOutboundSend task.
func (t *Task) OutboundMessage() (*conversation.OutboundMessage, error) {
	var msg conversation.OutboundMessage
	if err := json.Unmarshal(t.Payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// TaskQueue is the durable, at-least-once work distributor between webhook
// ingestion and downstream processing. Handlers must be idempotent: a crash
// between side effects and MarkCompleted causes redelivery.
type TaskQueue interface {
	// Enqueue adds a task. partitionKey serializes tasks that touch the
	// same conversation identity.
	Enqueue(ctx context.Context, taskType TaskType, partitionKey string, payload any) error

	// Dequeue claims the next available task using FOR UPDATE SKIP LOCKED,
	// or returns nil when the queue is empty.
	Dequeue(ctx context.Context) (*Task, error)

	// MarkCompleted acknowledges a task after its side effects committed.
	MarkCompleted(ctx context.Context, taskID uint) error

	// MarkFailed records a failure. Retryable failures re-queue the task
	// with backoff until max attempts; the rest are terminal.
	MarkFailed(ctx context.Context, taskID uint, taskErr error) error

	// Depth returns the number of claimable tasks.
	Depth(ctx context.Context) (int64, error)
}
