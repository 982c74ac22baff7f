// Package dialog implements the conversation state machine: the single
// authority deciding, for every inbound message, who answers and how the
// conversation's ownership changes.
package dialog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"concierge-server/internal/domain/chaterrors"
	"concierge-server/internal/domain/conversation"
	"concierge-server/internal/domain/intent"
	"concierge-server/internal/domain/settings"
	"concierge-server/internal/infrastructure/availability"
	"concierge-server/internal/infrastructure/observability"
	"concierge-server/internal/infrastructure/queue"
	"concierge-server/internal/infrastructure/responder"
)

// Responder produces an AI reply for a user turn. Implemented by the
// responder gateway; failures are absorbed there and surface as fallback
// replies, never as errors.
type Responder interface {
	Respond(ctx context.Context, history []responder.Turn, currentMessage, locale string) (responder.Reply, error)
}

// Publisher receives conversation events after their writes committed.
// Implemented by the realtime hub.
type Publisher interface {
	Broadcast(event conversation.Event)
}

// Config tunes the dialog service.
type Config struct {
	Locale       string
	HistoryTurns int
}

// Service is the conversation state machine.
type Service struct {
	repo       conversation.Repository
	settings   settings.Repository
	classifier *intent.Classifier
	responder  Responder
	checker    availability.Checker
	tasks      queue.TaskQueue
	publisher  Publisher
	locale     string
	history    int
	log        zerolog.Logger
}

// NewService wires the state machine.
func NewService(
	cfg Config,
	repo conversation.Repository,
	settingsRepo settings.Repository,
	resp Responder,
	checker availability.Checker,
	tasks queue.TaskQueue,
	publisher Publisher,
	log zerolog.Logger,
) *Service {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 10
	}
	return &Service{
		repo:       repo,
		settings:   settingsRepo,
		classifier: intent.NewClassifier(cfg.Locale),
		responder:  resp,
		checker:    checker,
		tasks:      tasks,
		publisher:  publisher,
		locale:     cfg.Locale,
		history:    cfg.HistoryTurns,
		log:        log.With().Str("component", "dialog").Logger(),
	}
}

// HandleInbound runs the full transition rule set for one normalized carrier
// event. All state changes happen under the per-conversation serialization
// key; fan-out happens only after the commit.
func (s *Service) HandleInbound(ctx context.Context, event *conversation.InboundEvent) error {
	if !event.Channel.Valid() {
		return chaterrors.New(chaterrors.CodeParseError, fmt.Sprintf("unknown channel %q", event.Channel), chaterrors.SeverityFatal)
	}

	ctx, span := observability.StartInboundSpan(ctx, string(event.Channel), event.ExternalUserID)
	defer span.End()

	var pending []conversation.Event

	err := s.repo.WithConversationLock(ctx, event.Channel, event.ExternalUserID, func(ctx context.Context) error {
		// Agent turns never create conversations; an unknown identity is
		// terminal for the event.
		if event.SenderRole == conversation.RoleAgent {
			conv, err := s.repo.FindByIdentity(ctx, event.Channel, event.ExternalUserID)
			if err != nil {
				return err
			}
			evts, err := s.applyAgentTurn(ctx, conv, "", event.Text)
			pending = evts
			return err
		}

		conv, err := s.repo.UpsertByIdentity(ctx, event.Channel, event.ExternalUserID, event.DisplayName)
		if err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}

		evts, err := s.applyUserTurn(ctx, conv, event)
		pending = evts
		return err
	})
	if err != nil {
		if chaterrors.IsDuplicate(err) {
			s.log.Debug().
				Str("channel", string(event.Channel)).
				Str("external_user_id", event.ExternalUserID).
				Msg("duplicate event dropped")
			return nil
		}
		observability.RecordError(span, err, chaterrors.Classify(err).String())
		return err
	}

	s.publish(pending)
	return nil
}

// HandleAgentMessage applies an operator-authored turn: the agent takes
// ownership and automation is suppressed until an explicit hand-back.
func (s *Service) HandleAgentMessage(ctx context.Context, conversationID uint, agentID, text string) error {
	conv, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}

	var pending []conversation.Event
	err = s.repo.WithConversationLock(ctx, conv.Channel, conv.ExternalUserID, func(ctx context.Context) error {
		locked, err := s.repo.FindByID(ctx, conversationID)
		if err != nil {
			return err
		}
		evts, err := s.applyAgentTurn(ctx, locked, agentID, text)
		pending = evts
		return err
	})
	if err != nil {
		return err
	}

	s.publish(pending)
	return nil
}

// HandBackToAI atomically returns a thread to automation: assigned agent
// cleared, automation re-enabled, state back to ai_active.
func (s *Service) HandBackToAI(ctx context.Context, conversationID uint) error {
	conv, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}

	err = s.repo.WithConversationLock(ctx, conv.Channel, conv.ExternalUserID, func(ctx context.Context) error {
		locked, err := s.repo.FindByID(ctx, conversationID)
		if err != nil {
			return err
		}
		locked.HandBack()
		return s.repo.Update(ctx, locked)
	})
	if err != nil {
		return err
	}

	s.log.Info().Uint("conversation_id", conversationID).Msg("conversation handed back to automation")
	s.publish([]conversation.Event{{
		Kind:           conversation.EventRefreshConversations,
		ConversationID: conversationID,
		Timestamp:      time.Now(),
	}})
	return nil
}

// SetAutomation toggles automation for a single conversation without
// touching agent assignment.
func (s *Service) SetAutomation(ctx context.Context, conversationID uint, enabled bool) error {
	conv, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}

	err = s.repo.WithConversationLock(ctx, conv.Channel, conv.ExternalUserID, func(ctx context.Context) error {
		locked, err := s.repo.FindByID(ctx, conversationID)
		if err != nil {
			return err
		}
		locked.AutomationEnabled = enabled
		return s.repo.Update(ctx, locked)
	})
	if err != nil {
		return err
	}

	s.publish([]conversation.Event{{
		Kind:           conversation.EventRefreshConversations,
		ConversationID: conversationID,
		Timestamp:      time.Now(),
	}})
	return nil
}

// applyUserTurn persists the user message and evaluates the rule pipeline.
func (s *Service) applyUserTurn(ctx context.Context, conv *conversation.Conversation, event *conversation.InboundEvent) ([]conversation.Event, error) {
	msg := &conversation.Message{
		ConversationID: conv.ID,
		PublicID:       uuid.NewString(),
		SenderRole:     conversation.RoleUser,
		Content:        event.Text,
		Channel:        event.Channel,
	}
	if event.ExternalMessageID != "" {
		id := event.ExternalMessageID
		msg.ExternalID = &id
	}
	if err := s.repo.AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	// Visibility is only ever granted at creation and in the handoff
	// branches; a plain user turn must not un-hide a soft-hidden thread.
	conv.LastMessageAt = event.OccurredAt

	pending := []conversation.Event{messageEvent(conv, msg)}

	reply, visibilityChanged, err := s.evaluateRules(ctx, conv, event.Text)
	if err != nil {
		return nil, err
	}

	if reply != "" {
		replyMsg := &conversation.Message{
			ConversationID: conv.ID,
			PublicID:       uuid.NewString(),
			SenderRole:     conversation.RoleAI,
			Content:        reply,
			Channel:        conv.Channel,
		}
		if err := s.repo.AddMessage(ctx, replyMsg); err != nil {
			return nil, fmt.Errorf("persist reply: %w", err)
		}
		if err := s.enqueueSend(ctx, conv, reply); err != nil {
			return nil, err
		}
		pending = append(pending, messageEvent(conv, replyMsg))
	}

	if err := s.repo.Update(ctx, conv); err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}

	if visibilityChanged {
		pending = append(pending, conversation.Event{
			Kind:           conversation.EventRefreshConversations,
			ConversationID: conv.ID,
			Timestamp:      time.Now(),
		})
	}
	return pending, nil
}

// evaluateRules walks the ordered rule pipeline and returns the reply to
// send, if any, plus whether operator-facing visibility changed.
func (s *Service) evaluateRules(ctx context.Context, conv *conversation.Conversation, text string) (string, bool, error) {
	result := s.classifier.Classify(text, conv.BookingIntent != nil)

	switch result.Kind {
	case intent.KindBookingAffirmation:
		first := conv.FlagHandoff()
		s.log.Info().Uint("conversation_id", conv.ID).Str("booking_intent", deref(conv.BookingIntent)).Msg("booking affirmed, handing off")
		return intent.AffirmationAckReply(s.locale, deref(conv.BookingIntent)), first, nil

	case intent.KindBookingRequest:
		first := conv.FlagHandoff()
		s.log.Info().Uint("conversation_id", conv.ID).Msg("booking request detected, handing off")
		return intent.HandoffReply(s.locale), first, nil

	case intent.KindHelpEscalation:
		conv.AutomationEnabled = false
		first := conv.FlagHandoff()
		s.log.Info().Uint("conversation_id", conv.ID).Msg("explicit escalation, automation suppressed")
		return intent.EscalationReply(s.locale), first, nil
	}

	suppressed, err := s.automationSuppressed(ctx, conv)
	if err != nil {
		return "", false, err
	}
	if suppressed {
		// Operator-owned thread: record only, a human answers.
		return "", false, nil
	}

	if result.Kind == intent.KindAvailabilityQuery && s.checker != nil {
		if reply, ok := s.answerAvailability(ctx, conv, *result.DateRange); ok {
			return reply, false, nil
		}
		// Availability lookup failed: make no claim, let the responder talk.
	}

	return s.invokeResponder(ctx, conv, text)
}

// answerAvailability resolves a date-range query against the calendar. The
// bool is false when the lookup errored and the default path should run.
func (s *Service) answerAvailability(ctx context.Context, conv *conversation.Conversation, rng intent.DateRange) (string, bool) {
	avail, err := s.checker.CheckRange(ctx, rng.From, rng.To)
	if err != nil {
		s.log.Warn().Err(err).Uint("conversation_id", conv.ID).Msg("availability check failed")
		return "", false
	}

	if !avail.Available {
		return intent.UnavailableReply(s.locale, rng), true
	}

	stored := rng.String()
	conv.BookingIntent = &stored
	s.log.Info().Uint("conversation_id", conv.ID).Str("range", stored).Msg("availability confirmed, booking intent opened")
	return intent.AvailabilityPrompt(s.locale, rng), true
}

// invokeResponder calls the gateway with bounded history. Fallback output
// and apology markers flag the conversation for handoff, once.
func (s *Service) invokeResponder(ctx context.Context, conv *conversation.Conversation, text string) (string, bool, error) {
	recent, err := s.repo.RecentMessages(ctx, conv.ID, s.history+1)
	if err != nil {
		return "", false, fmt.Errorf("load history: %w", err)
	}

	// The current turn is already persisted and arrives separately as the
	// prompt; keep it out of the history so the model does not see it twice.
	if n := len(recent); n > 0 && recent[n-1].SenderRole == conversation.RoleUser && recent[n-1].Content == text {
		recent = recent[:n-1]
	}
	if len(recent) > s.history {
		recent = recent[len(recent)-s.history:]
	}

	history := make([]responder.Turn, 0, len(recent))
	for _, m := range recent {
		history = append(history, responder.Turn{Role: m.SenderRole, Content: m.Content})
	}

	reply, err := s.responder.Respond(ctx, history, text, s.locale)
	if err != nil {
		return "", false, err
	}

	changed := false
	if reply.Fallback || intent.ContainsHandoffMarker(reply.Text, s.locale) {
		changed = conv.FlagHandoff()
		if changed {
			s.log.Info().Uint("conversation_id", conv.ID).Bool("fallback", reply.Fallback).Msg("responder signaled handoff")
		}
	}
	return reply.Text, changed, nil
}

// applyAgentTurn persists an agent message and moves the thread to
// agent_owned. The agent reply is also delivered to the user's carrier.
func (s *Service) applyAgentTurn(ctx context.Context, conv *conversation.Conversation, agentID, text string) ([]conversation.Event, error) {
	msg := &conversation.Message{
		ConversationID: conv.ID,
		PublicID:       uuid.NewString(),
		SenderRole:     conversation.RoleAgent,
		Content:        text,
		Channel:        conv.Channel,
	}
	if err := s.repo.AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	if agentID != "" {
		conv.AssignAgent(agentID)
	} else {
		conv.AutomationEnabled = false
		if conv.State.CanTransitionTo(conversation.StateAgentOwned) {
			conv.State = conversation.StateAgentOwned
		}
	}
	conv.LastMessageAt = time.Now()

	if err := s.repo.Update(ctx, conv); err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	if err := s.enqueueSend(ctx, conv, text); err != nil {
		return nil, err
	}

	return []conversation.Event{
		messageEvent(conv, msg),
		{
			Kind:           conversation.EventRefreshConversations,
			ConversationID: conv.ID,
			Timestamp:      time.Now(),
		},
	}, nil
}

// automationSuppressed reads the fleet switch fresh plus the per-thread
// flag. The switch is never cached so a toggle applies on the next turn.
func (s *Service) automationSuppressed(ctx context.Context, conv *conversation.Conversation) (bool, error) {
	if !conv.AutomationEnabled {
		return true, nil
	}
	sw, err := s.settings.GetAutomationSwitch(ctx)
	if err != nil {
		return false, fmt.Errorf("read automation switch: %w", err)
	}
	return !sw.Enabled, nil
}

func (s *Service) enqueueSend(ctx context.Context, conv *conversation.Conversation, text string) error {
	out := conversation.OutboundMessage{
		ConversationID: conv.ID,
		Channel:        conv.Channel,
		ExternalUserID: conv.ExternalUserID,
		Text:           text,
	}
	key := fmt.Sprintf("%s:%s", conv.Channel, conv.ExternalUserID)
	if err := s.tasks.Enqueue(ctx, queue.TypeOutboundSend, key, out); err != nil {
		return fmt.Errorf("enqueue outbound send: %w", err)
	}
	return nil
}

func (s *Service) publish(events []conversation.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		s.publisher.Broadcast(e)
	}
}

func messageEvent(conv *conversation.Conversation, msg *conversation.Message) conversation.Event {
	return conversation.Event{
		Kind:           conversation.EventNewMessage,
		ConversationID: conv.ID,
		MessageID:      msg.PublicID,
		SenderRole:     msg.SenderRole,
		Channel:        msg.Channel,
		Content:        msg.Content,
		Timestamp:      time.Now(),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
