package entities

import (
	"time"

	"concierge-server/internal/domain/conversation"
)

// Conversation represents the database schema for conversations.
type Conversation struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Channel        string `gorm:"type:varchar(20);uniqueIndex:idx_conversation_identity;not null"`
	ExternalUserID string `gorm:"type:varchar(128);uniqueIndex:idx_conversation_identity;not null"`
	DisplayName    string `gorm:"type:varchar(256)"`

	State              string  `gorm:"type:varchar(20);not null;default:'ai_active'"`
	AutomationEnabled  bool    `gorm:"not null;default:true"`
	HandoffNotified    bool    `gorm:"not null;default:false"`
	AssignedAgent      *string `gorm:"type:varchar(64)"`
	BookingIntent      *string `gorm:"type:varchar(128)"`
	VisibleToOperators bool    `gorm:"not null;default:true"`

	LastMessageAt time.Time `gorm:"index"`

	Messages []Message `gorm:"foreignKey:ConversationID"`
}

// TableName specifies the table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// Message represents the database schema for messages. Rows are immutable
// once written.
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_message_conversation_created"`

	ConversationID uint    `gorm:"not null;index:idx_message_conversation_created"`
	PublicID       string  `gorm:"type:varchar(50);uniqueIndex;not null"`
	ExternalID     *string `gorm:"type:varchar(128);uniqueIndex:idx_message_external_id"`
	SenderRole     string  `gorm:"type:varchar(10);not null"`
	Content        string  `gorm:"type:text;not null"`
	Channel        string  `gorm:"type:varchar(20);not null"`
}

// TableName specifies the table name for Message.
func (Message) TableName() string {
	return "messages"
}

// EtoD converts a database entity to the domain model.
func (c *Conversation) EtoD() *conversation.Conversation {
	msgs := make([]conversation.Message, len(c.Messages))
	for i := range c.Messages {
		msgs[i] = *c.Messages[i].EtoD()
	}
	return &conversation.Conversation{
		ID:                 c.ID,
		Channel:            conversation.Channel(c.Channel),
		ExternalUserID:     c.ExternalUserID,
		DisplayName:        c.DisplayName,
		State:              conversation.State(c.State),
		AutomationEnabled:  c.AutomationEnabled,
		HandoffNotified:    c.HandoffNotified,
		AssignedAgent:      c.AssignedAgent,
		BookingIntent:      c.BookingIntent,
		VisibleToOperators: c.VisibleToOperators,
		LastMessageAt:      c.LastMessageAt,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
		Messages:           msgs,
	}
}

// NewSchemaConversation creates a database entity from the domain model.
func NewSchemaConversation(c *conversation.Conversation) *Conversation {
	return &Conversation{
		ID:                 c.ID,
		Channel:            string(c.Channel),
		ExternalUserID:     c.ExternalUserID,
		DisplayName:        c.DisplayName,
		State:              string(c.State),
		AutomationEnabled:  c.AutomationEnabled,
		HandoffNotified:    c.HandoffNotified,
		AssignedAgent:      c.AssignedAgent,
		BookingIntent:      c.BookingIntent,
		VisibleToOperators: c.VisibleToOperators,
		LastMessageAt:      c.LastMessageAt,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

// EtoD converts a database entity to the domain model.
func (m *Message) EtoD() *conversation.Message {
	return &conversation.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		PublicID:       m.PublicID,
		ExternalID:     m.ExternalID,
		SenderRole:     conversation.SenderRole(m.SenderRole),
		Content:        m.Content,
		Channel:        conversation.Channel(m.Channel),
		CreatedAt:      m.CreatedAt,
	}
}

// NewSchemaMessage creates a database entity from the domain model.
func NewSchemaMessage(m *conversation.Message) *Message {
	return &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		PublicID:       m.PublicID,
		ExternalID:     m.ExternalID,
		SenderRole:     string(m.SenderRole),
		Content:        m.Content,
		Channel:        string(m.Channel),
		CreatedAt:      m.CreatedAt,
	}
}
