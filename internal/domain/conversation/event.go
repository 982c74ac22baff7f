package conversation

import "time"

// InboundEvent is the canonical form every channel adapter normalizes
// provider webhooks into.
type InboundEvent struct {
	Channel        Channel
	ExternalUserID string
	DisplayName    string
	// ExternalMessageID is the carrier-provided dedup key. May be empty for
	// carriers that do not supply one.
	ExternalMessageID string
	SenderRole        SenderRole
	Text              string
	OccurredAt        time.Time
}

// OutboundMessage is the canonical form handed back to a channel adapter.
type OutboundMessage struct {
	ConversationID uint
	Channel        Channel
	ExternalUserID string
	Text           string
}

// EventKind labels realtime fan-out events.
type EventKind string

const (
	EventNewMessage           EventKind = "new_message"
	EventLiveMessage          EventKind = "live_message"
	EventRefreshConversations EventKind = "refresh_conversations"
	EventError                EventKind = "error"
)

// Event is broadcast to operator sessions after a durable write commits.
type Event struct {
	Kind           EventKind  `json:"kind"`
	ConversationID uint       `json:"conversation_id"`
	MessageID      string     `json:"message_id,omitempty"`
	SenderRole     SenderRole `json:"sender_role,omitempty"`
	Channel        Channel    `json:"channel,omitempty"`
	Content        string     `json:"content,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}
