package conversation

import (
	"context"
	"time"
)

// Filter narrows conversation list queries.
type Filter struct {
	Channel           *Channel
	VisibleOnly       bool
	AutomationEnabled *bool
}

// Repository persists conversations and their messages.
type Repository interface {
	// UpsertByIdentity returns the conversation for (channel, externalUserID),
	// creating it in the initial state when it does not exist yet.
	UpsertByIdentity(ctx context.Context, channel Channel, externalUserID, displayName string) (*Conversation, error)

	FindByID(ctx context.Context, id uint) (*Conversation, error)
	FindByIdentity(ctx context.Context, channel Channel, externalUserID string) (*Conversation, error)
	List(ctx context.Context, filter Filter) ([]*Conversation, error)

	Update(ctx context.Context, conv *Conversation) error

	// AddMessage appends a message. When msg.ExternalID collides with an
	// already persisted message the duplicate-event sentinel is returned and
	// nothing is written.
	AddMessage(ctx context.Context, msg *Message) error
	RecentMessages(ctx context.Context, conversationID uint, limit int) ([]Message, error)
	MessagesSince(ctx context.Context, conversationID uint, since time.Time) ([]Message, error)

	// WithConversationLock runs fn while holding the per-conversation
	// serialization key for (channel, externalUserID). At most one state
	// transition commits at a time per conversation, across processes.
	WithConversationLock(ctx context.Context, channel Channel, externalUserID string, fn func(ctx context.Context) error) error
}
