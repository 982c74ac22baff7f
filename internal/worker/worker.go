// Package worker drains the task queue: inbound events go through the
// dialog state machine, outbound sends go to their carrier adapter.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"concierge-server/internal/domain/chaterrors"
	"concierge-server/internal/domain/conversation"
	"concierge-server/internal/domain/dialog"
	"concierge-server/internal/domain/retry"
	"concierge-server/internal/infrastructure/channels"
	"concierge-server/internal/infrastructure/metrics"
	"concierge-server/internal/infrastructure/observability"
	"concierge-server/internal/infrastructure/queue"
)

// Alerter surfaces terminal delivery failures to operators.
type Alerter interface {
	DeliveryFailure(ctx context.Context, conversationID uint, channel, detail string)
}

// Worker processes one claimed task at a time.
type Worker struct {
	id          int
	tasks       queue.TaskQueue
	dialog      *dialog.Service
	registry    *channels.Registry
	alerter     Alerter
	publisher   dialog.Publisher
	taskTimeout time.Duration
	maxAttempts int
	log         zerolog.Logger
}

func newWorker(id int, p *Pool) *Worker {
	return &Worker{
		id:          id,
		tasks:       p.tasks,
		dialog:      p.dialog,
		registry:    p.registry,
		alerter:     p.alerter,
		publisher:   p.publisher,
		taskTimeout: p.cfg.TaskTimeout,
		maxAttempts: p.cfg.TaskMaxAttempts,
		log:         p.log.With().Int("worker_id", id).Logger(),
	}
}

// run polls for tasks until the context is cancelled.
func (w *Worker) run(ctx context.Context, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain everything available before going back to sleep.
		for {
			task, err := w.tasks.Dequeue(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error().Err(err).Msg("dequeue failed")
				}
				break
			}
			if task == nil {
				break
			}
			w.process(ctx, task)
		}
	}
}

func (w *Worker) process(ctx context.Context, task *queue.Task) {
	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	err := w.handle(taskCtx, task)
	if err == nil {
		if ackErr := w.tasks.MarkCompleted(ctx, task.ID); ackErr != nil {
			w.log.Error().Err(ackErr).Uint("task_id", task.ID).Msg("ack failed")
		}
		metrics.TasksTotal.WithLabelValues(string(task.Type), "completed").Inc()
		return
	}

	w.log.Warn().Err(err).
		Uint("task_id", task.ID).
		Str("type", string(task.Type)).
		Int("attempts", task.Attempts).
		Msg("task handler failed")
	metrics.TasksTotal.WithLabelValues(string(task.Type), "failed").Inc()

	if markErr := w.tasks.MarkFailed(ctx, task.ID, err); markErr != nil {
		w.log.Error().Err(markErr).Uint("task_id", task.ID).Msg("mark failed errored")
	}
}

func (w *Worker) handle(ctx context.Context, task *queue.Task) error {
	switch task.Type {
	case queue.TypeInboundMessage:
		event, err := task.InboundEvent()
		if err != nil {
			return chaterrors.Wrap(err, chaterrors.CodeParseError, "decode inbound task", chaterrors.SeverityFatal)
		}
		return w.dialog.HandleInbound(ctx, event)

	case queue.TypeOutboundSend:
		msg, err := task.OutboundMessage()
		if err != nil {
			return chaterrors.Wrap(err, chaterrors.CodeParseError, "decode outbound task", chaterrors.SeverityFatal)
		}
		return w.deliver(ctx, task, msg)

	default:
		return chaterrors.New(chaterrors.CodeSystemError, fmt.Sprintf("unknown task type %q", task.Type), chaterrors.SeverityFatal)
	}
}

// deliver sends one reply through its carrier adapter. A failed send never
// touches conversation state; the queue redelivers until attempts run out,
// then the failure is surfaced to operators.
func (w *Worker) deliver(ctx context.Context, task *queue.Task, msg *conversation.OutboundMessage) error {
	ctx, span := observability.StartDeliverySpan(ctx, string(msg.Channel), msg.ConversationID)
	defer span.End()

	adapter, err := w.registry.Get(msg.Channel)
	if err != nil {
		return chaterrors.Wrap(err, chaterrors.CodeSystemError, "no adapter for channel", chaterrors.SeverityFatal)
	}

	err = retry.Execute(ctx, retry.DeliveryPolicy(), func(ctx context.Context, _ int) error {
		return adapter.Send(ctx, *msg)
	})
	if err == nil {
		metrics.DeliveriesTotal.WithLabelValues(string(msg.Channel), "sent").Inc()
		return nil
	}

	metrics.DeliveriesTotal.WithLabelValues(string(msg.Channel), "failed").Inc()
	observability.RecordError(span, err, chaterrors.SeverityRetryable.String())

	final := task.Attempts >= w.maxAttempts
	if final {
		w.log.Error().Err(err).
			Uint("conversation_id", msg.ConversationID).
			Str("channel", string(msg.Channel)).
			Msg("delivery failed terminally")
		if w.alerter != nil {
			w.alerter.DeliveryFailure(ctx, msg.ConversationID, string(msg.Channel), err.Error())
		}
		if w.publisher != nil {
			w.publisher.Broadcast(conversation.Event{
				Kind:           conversation.EventError,
				ConversationID: msg.ConversationID,
				Channel:        msg.Channel,
				Content:        "delivery failed",
				Timestamp:      time.Now(),
			})
		}
	}

	return chaterrors.Wrap(err, chaterrors.CodeDeliveryFailed, "carrier send failed", chaterrors.SeverityRetryable)
}
