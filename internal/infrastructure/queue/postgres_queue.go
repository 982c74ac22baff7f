package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"concierge-server/internal/domain/chaterrors"
	"concierge-server/internal/infrastructure/database"
	"concierge-server/internal/infrastructure/database/entities"
)

// PostgresQueue implements TaskQueue on the chat_tasks table.
type PostgresQueue struct {
	db                *gorm.DB
	log               zerolog.Logger
	maxAttempts       int
	visibilityTimeout time.Duration
}

// Config tunes queue redelivery behavior.
type Config struct {
	MaxAttempts       int
	VisibilityTimeout time.Duration
}

// NewPostgresQueue creates a new PostgreSQL-backed task queue.
func NewPostgresQueue(db *gorm.DB, cfg Config, log zerolog.Logger) *PostgresQueue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 2 * time.Minute
	}
	return &PostgresQueue{
		db:                db,
		log:               log.With().Str("component", "postgres-queue").Logger(),
		maxAttempts:       cfg.MaxAttempts,
		visibilityTimeout: cfg.VisibilityTimeout,
	}
}

var _ TaskQueue = (*PostgresQueue)(nil)

// Enqueue adds a task in the queued state, immediately visible. When ctx
// carries a transaction (the dialog service enqueues while holding the
// conversation lock) the insert joins it, so the task row becomes visible
// only once the messages it refers to have committed.
func (q *PostgresQueue) Enqueue(ctx context.Context, taskType TaskType, partitionKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}

	entity := &entities.ChatTask{
		Type:         string(taskType),
		Payload:      body,
		PartitionKey: partitionKey,
		Status:       "queued",
		VisibleAt:    time.Now(),
	}
	if err := database.Conn(ctx, q.db).Create(entity).Error; err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	q.log.Debug().Uint("task_id", entity.ID).Str("type", string(taskType)).Msg("task enqueued")
	return nil
}

// Dequeue claims the next visible task. Tasks stuck in_progress past their
// visibility timeout become claimable again, which is what turns a worker
// crash into redelivery. Only the head task of each partition is claimable:
// a partition with an actively running task, or with an older queued task
// (possibly mid-claim on another worker), is skipped so tasks for one
// conversation execute one at a time in arrival order.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	var entity entities.ChatTask

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Raw(`SELECT * FROM chat_tasks t
			     WHERE (t.status = 'queued' OR t.status = 'in_progress')
			       AND t.visible_at <= now()
			       AND NOT EXISTS (
			             SELECT 1 FROM chat_tasks b
			             WHERE b.partition_key = t.partition_key
			               AND b.id <> t.id
			               AND ((b.status = 'in_progress' AND b.visible_at > now())
			                 OR (b.status IN ('queued', 'in_progress')
			                     AND (b.created_at, b.id) < (t.created_at, t.id))))
			     ORDER BY t.created_at ASC
			     LIMIT 1
			     FOR UPDATE OF t SKIP LOCKED`).
			Scan(&entity).Error
		if err != nil {
			return fmt.Errorf("select task: %w", err)
		}
		if entity.ID == 0 {
			return nil
		}

		now := time.Now()
		return tx.Model(&entities.ChatTask{}).
			Where("id = ?", entity.ID).
			Updates(map[string]interface{}{
				"status":     "in_progress",
				"attempts":   entity.Attempts + 1,
				"visible_at": now.Add(q.visibilityTimeout),
				"started_at": now,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}

	if entity.ID == 0 {
		return nil, nil // no tasks available
	}

	return &Task{
		ID:           entity.ID,
		Type:         TaskType(entity.Type),
		Payload:      json.RawMessage(entity.Payload),
		PartitionKey: entity.PartitionKey,
		Attempts:     entity.Attempts + 1,
		QueuedAt:     entity.CreatedAt,
	}, nil
}

// MarkCompleted acknowledges a task after its side effects committed.
func (q *PostgresQueue) MarkCompleted(ctx context.Context, taskID uint) error {
	now := time.Now()
	result := q.db.WithContext(ctx).
		Model(&entities.ChatTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":       "completed",
			"completed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("mark completed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task not found: %d", taskID)
	}
	return nil
}

// MarkFailed records a failure. Retryable errors re-queue the task with
// linear backoff until max attempts; fatal errors and exhausted tasks go to
// the terminal failed state.
func (q *PostgresQueue) MarkFailed(ctx context.Context, taskID uint, taskErr error) error {
	var entity entities.ChatTask
	if err := q.db.WithContext(ctx).First(&entity, taskID).Error; err != nil {
		return fmt.Errorf("load task %d: %w", taskID, err)
	}

	errText := taskErr.Error()
	now := time.Now()

	retryable := chaterrors.Classify(taskErr).IsRetryable() && entity.Attempts < q.maxAttempts
	if retryable {
		delay := time.Duration(entity.Attempts) * 10 * time.Second
		err := q.db.WithContext(ctx).Model(&entity).
			Updates(map[string]interface{}{
				"status":     "queued",
				"visible_at": now.Add(delay),
				"last_error": errText,
				"updated_at": now,
			}).Error
		if err != nil {
			return fmt.Errorf("requeue task: %w", err)
		}
		q.log.Warn().Uint("task_id", taskID).Int("attempts", entity.Attempts).Err(taskErr).Msg("task requeued")
		return nil
	}

	err := q.db.WithContext(ctx).Model(&entity).
		Updates(map[string]interface{}{
			"status":     "failed",
			"last_error": errText,
			"failed_at":  now,
			"updated_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	q.log.Error().Uint("task_id", taskID).Int("attempts", entity.Attempts).Err(taskErr).Msg("task failed terminally")
	return nil
}

// Depth returns the number of claimable tasks.
func (q *PostgresQueue) Depth(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Model(&entities.ChatTask{}).
		Where("status = ? AND visible_at <= now()", "queued").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("get queue depth: %w", err)
	}
	return count, nil
}
