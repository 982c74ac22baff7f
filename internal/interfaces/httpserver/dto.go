package httpserver

import (
	"time"

	"concierge-server/internal/domain/conversation"
)

type chatRequest struct {
	ConversationID uint   `json:"conversation_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
}

type automationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type conversationSummary struct {
	ID                uint      `json:"id"`
	Channel           string    `json:"channel"`
	DisplayName       string    `json:"display_name"`
	State             string    `json:"state"`
	AutomationEnabled bool      `json:"automation_enabled"`
	HandoffNotified   bool      `json:"handoff_notified"`
	AssignedAgent     *string   `json:"assigned_agent,omitempty"`
	BookingIntent     *string   `json:"booking_intent,omitempty"`
	LastMessageAt     time.Time `json:"last_message_at"`
}

type messagePayload struct {
	ID         string    `json:"id"`
	SenderRole string    `json:"sender_role"`
	Content    string    `json:"content"`
	Channel    string    `json:"channel"`
	CreatedAt  time.Time `json:"created_at"`
}

func mapConversation(conv *conversation.Conversation) conversationSummary {
	return conversationSummary{
		ID:                conv.ID,
		Channel:           string(conv.Channel),
		DisplayName:       conv.DisplayName,
		State:             conv.State.String(),
		AutomationEnabled: conv.AutomationEnabled,
		HandoffNotified:   conv.HandoffNotified,
		AssignedAgent:     conv.AssignedAgent,
		BookingIntent:     conv.BookingIntent,
		LastMessageAt:     conv.LastMessageAt,
	}
}

func mapMessage(msg *conversation.Message) messagePayload {
	return messagePayload{
		ID:         msg.PublicID,
		SenderRole: string(msg.SenderRole),
		Content:    msg.Content,
		Channel:    string(msg.Channel),
		CreatedAt:  msg.CreatedAt,
	}
}
