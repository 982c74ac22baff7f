// Package conversation implements the conversation repository on PostgreSQL.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"concierge-server/internal/domain/chaterrors"
	domain "concierge-server/internal/domain/conversation"
	"concierge-server/internal/infrastructure/database"
	"concierge-server/internal/infrastructure/database/entities"
)

// Repository persists conversations and messages.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a conversation repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ domain.Repository = (*Repository)(nil)

// UpsertByIdentity returns the conversation for (channel, externalUserID),
// inserting it in the initial AI-active state when missing. Concurrent
// inserts for the same identity collapse onto one row via the unique index.
func (r *Repository) UpsertByIdentity(ctx context.Context, channel domain.Channel, externalUserID, displayName string) (*domain.Conversation, error) {
	entity := &entities.Conversation{
		Channel:            string(channel),
		ExternalUserID:     externalUserID,
		DisplayName:        displayName,
		State:              string(domain.StateAIActive),
		AutomationEnabled:  true,
		VisibleToOperators: true,
		LastMessageAt:      time.Now(),
	}

	err := r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel"}, {Name: "external_user_id"}},
			DoNothing: true,
		}).
		Create(entity).Error
	if err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}

	// DoNothing leaves entity.ID zero when the row already existed.
	var existing entities.Conversation
	if err := r.conn(ctx).
		Where("channel = ? AND external_user_id = ?", string(channel), externalUserID).
		First(&existing).Error; err != nil {
		return nil, fmt.Errorf("load conversation after upsert: %w", err)
	}

	if displayName != "" && existing.DisplayName == "" {
		if err := r.conn(ctx).Model(&existing).
			Update("display_name", displayName).Error; err != nil {
			return nil, fmt.Errorf("update display name: %w", err)
		}
		existing.DisplayName = displayName
	}

	return existing.EtoD(), nil
}

// FindByID fetches a conversation by its internal ID.
func (r *Repository) FindByID(ctx context.Context, id uint) (*domain.Conversation, error) {
	var entity entities.Conversation
	if err := r.conn(ctx).First(&entity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chaterrors.ErrConversationNotFound
		}
		return nil, fmt.Errorf("fetch conversation %d: %w", id, err)
	}
	return entity.EtoD(), nil
}

// FindByIdentity fetches a conversation by its carrier identity.
func (r *Repository) FindByIdentity(ctx context.Context, channel domain.Channel, externalUserID string) (*domain.Conversation, error) {
	var entity entities.Conversation
	if err := r.conn(ctx).
		Where("channel = ? AND external_user_id = ?", string(channel), externalUserID).
		First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chaterrors.ErrConversationNotFound
		}
		return nil, fmt.Errorf("fetch conversation %s/%s: %w", channel, externalUserID, err)
	}
	return entity.EtoD(), nil
}

// List fetches conversations matching the filter, most recent activity first.
func (r *Repository) List(ctx context.Context, filter domain.Filter) ([]*domain.Conversation, error) {
	query := r.conn(ctx).Model(&entities.Conversation{})

	if filter.Channel != nil {
		query = query.Where("channel = ?", string(*filter.Channel))
	}
	if filter.VisibleOnly {
		query = query.Where("visible_to_operators = ?", true)
	}
	if filter.AutomationEnabled != nil {
		query = query.Where("automation_enabled = ?", *filter.AutomationEnabled)
	}

	var rows []entities.Conversation
	if err := query.Order("last_message_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	result := make([]*domain.Conversation, len(rows))
	for i := range rows {
		result[i] = rows[i].EtoD()
	}
	return result, nil
}

// Update persists conversation mutations.
func (r *Repository) Update(ctx context.Context, conv *domain.Conversation) error {
	entity := entities.NewSchemaConversation(conv)
	if err := r.conn(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("update conversation %d: %w", conv.ID, err)
	}
	conv.UpdatedAt = entity.UpdatedAt
	return nil
}

// AddMessage appends an immutable message row. A duplicate carrier message
// id is absorbed: ON CONFLICT DO NOTHING plus a zero rows-affected check
// turns redelivery into the duplicate-event sentinel.
func (r *Repository) AddMessage(ctx context.Context, msg *domain.Message) error {
	entity := entities.NewSchemaMessage(msg)

	tx := r.conn(ctx)
	if msg.ExternalID != nil {
		tx = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		})
	}

	result := tx.Create(entity)
	if result.Error != nil {
		return fmt.Errorf("insert message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return chaterrors.ErrDuplicateEvent
	}

	msg.ID = entity.ID
	msg.CreatedAt = entity.CreatedAt
	return nil
}

// RecentMessages returns the newest messages in chronological order.
func (r *Repository) RecentMessages(ctx context.Context, conversationID uint, limit int) ([]domain.Message, error) {
	var rows []entities.Message
	if err := r.conn(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}

	// Reverse into arrival order.
	msgs := make([]domain.Message, len(rows))
	for i := range rows {
		msgs[len(rows)-1-i] = *rows[i].EtoD()
	}
	return msgs, nil
}

// MessagesSince returns all messages after a point in time, oldest first.
func (r *Repository) MessagesSince(ctx context.Context, conversationID uint, since time.Time) ([]domain.Message, error) {
	var rows []entities.Message
	if err := r.conn(ctx).
		Where("conversation_id = ? AND created_at > ?", conversationID, since).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("messages since: %w", err)
	}

	msgs := make([]domain.Message, len(rows))
	for i := range rows {
		msgs[i] = *rows[i].EtoD()
	}
	return msgs, nil
}

// WithConversationLock runs fn inside a transaction that holds the advisory
// lock for the conversation identity. pg_advisory_xact_lock releases with
// the transaction, so a crashed worker never leaks the key. Mutations inside
// fn must use the ctx it receives so they join the locking transaction; the
// queue reads the same binding, so enqueued tasks commit with the messages.
func (r *Repository) WithConversationLock(ctx context.Context, channel domain.Channel, externalUserID string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("%s:%s", channel, externalUserID)
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
			return fmt.Errorf("acquire conversation lock: %w", err)
		}
		return fn(database.WithTx(ctx, tx))
	})
}

// conn returns the transaction bound to ctx by WithConversationLock, or the
// root connection when no lock is held.
func (r *Repository) conn(ctx context.Context) *gorm.DB {
	return database.Conn(ctx, r.db)
}
