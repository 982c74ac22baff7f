// Package conversation defines the core chat domain model: conversations,
// messages, and the ownership state machine between automation and agents.
package conversation

import (
	"errors"
	"time"
)

// Channel identifies the carrier a conversation belongs to.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelTelegram  Channel = "telegram"
	ChannelSMS       Channel = "sms"
	ChannelDashboard Channel = "dashboard"
)

// Valid reports whether the channel is one the router knows how to serve.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelTelegram, ChannelSMS, ChannelDashboard:
		return true
	}
	return false
}

// SenderRole identifies who authored a message.
type SenderRole string

const (
	RoleUser  SenderRole = "user"
	RoleAgent SenderRole = "agent"
	RoleAI    SenderRole = "ai"
)

// State represents who owns a conversation.
type State string

const (
	// StateAIActive: automation answers every user message.
	StateAIActive State = "ai_active"
	// StatePendingHandoff: automation still answers but operators are flagged.
	StatePendingHandoff State = "pending_handoff"
	// StateAgentOwned: automation suppressed, a human owns the thread.
	StateAgentOwned State = "agent_owned"
)

// ErrInvalidTransition is returned when a state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid conversation state transition")

// validTransitions defines allowed ownership transitions. There is no
// terminal state; a conversation oscillates indefinitely.
var validTransitions = map[State][]State{
	StateAIActive:       {StatePendingHandoff, StateAgentOwned},
	StatePendingHandoff: {StateAgentOwned, StateAIActive},
	StateAgentOwned:     {StateAIActive},
}

// CanTransitionTo checks whether a transition to target is valid.
func (s State) CanTransitionTo(target State) bool {
	if s == target {
		return true
	}
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo attempts to transition to the target state.
func (s State) TransitionTo(target State) (State, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Conversation is one user thread on one carrier. Identity is the
// (channel, external_user_id) pair; the numeric ID is internal.
type Conversation struct {
	ID             uint
	Channel        Channel
	ExternalUserID string
	DisplayName    string

	State              State
	AutomationEnabled  bool
	HandoffNotified    bool
	AssignedAgent      *string
	BookingIntent      *string
	VisibleToOperators bool

	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Messages []Message
}

// Message is one immutable turn inside a conversation.
type Message struct {
	ID             uint
	ConversationID uint
	PublicID       string
	// ExternalID is the carrier-provided message id used as dedup key.
	// Empty for locally-originated messages.
	ExternalID *string
	SenderRole SenderRole
	Content    string
	Channel    Channel
	CreatedAt  time.Time
}

// AssignAgent gives the thread to a human and suppresses automation.
// The handoff invariant: assigned_agent != nil implies automation off.
func (c *Conversation) AssignAgent(agentID string) {
	c.AssignedAgent = &agentID
	c.AutomationEnabled = false
	c.State = StateAgentOwned
}

// HandBack returns the thread to automation atomically.
func (c *Conversation) HandBack() {
	c.AssignedAgent = nil
	c.AutomationEnabled = true
	c.HandoffNotified = false
	c.BookingIntent = nil
	c.State = StateAIActive
}

// FlagHandoff marks the conversation for operator attention without taking
// it away from automation. Re-flagging an already flagged thread is a no-op
// so operators are only notified once.
func (c *Conversation) FlagHandoff() bool {
	first := !c.HandoffNotified
	c.HandoffNotified = true
	c.VisibleToOperators = true
	if c.State == StateAIActive {
		c.State = StatePendingHandoff
	}
	return first
}
