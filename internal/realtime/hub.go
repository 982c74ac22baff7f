// Package realtime fans conversation events out to connected operator
// sessions over websockets. Events are only published after the underlying
// write has committed, so a connected dashboard never sees a message that
// later disappears.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"concierge-server/internal/domain/conversation"
	"concierge-server/internal/infrastructure/metrics"
)

// Commander executes operator commands arriving over the socket.
// Implemented by the dialog service.
type Commander interface {
	HandleAgentMessage(ctx context.Context, conversationID uint, agentID, text string) error
	HandBackToAI(ctx context.Context, conversationID uint) error
}

// Command is the envelope operators send over the socket.
type Command struct {
	Action         string `json:"action"`
	ConversationID uint   `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
}

const (
	actionJoin      = "join_conversation"
	actionLeave     = "leave_conversation"
	actionAgentSend = "agent_message"
	actionHandBack  = "hand_back_to_ai"
)

// Hub owns all live sessions and routes events to them.
type Hub struct {
	commander Commander
	upgrader  websocket.Upgrader
	log       zerolog.Logger

	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewHub creates an empty hub. The commander is attached afterwards with
// SetCommander; the hub and the dialog service reference each other.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Operator auth happens upstream of the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:      log.With().Str("component", "realtime-hub").Logger(),
		sessions: make(map[*Session]struct{}),
	}
}

// SetCommander attaches the command executor. Must be called before the
// first connection is served.
func (h *Hub) SetCommander(c Commander) {
	h.commander = c
}

// HandleWS upgrades the request and runs the session until disconnect.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		agentID = "operator"
	}

	session := newSession(h, conn, agentID)
	h.register(session)

	go session.writePump()
	session.readPump()
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	count := len(h.sessions)
	h.mu.Unlock()

	metrics.OperatorSessions.Set(float64(count))
	h.log.Info().Str("agent_id", s.agentID).Int("sessions", count).Msg("session connected")
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	count := len(h.sessions)
	h.mu.Unlock()

	close(s.send)
	metrics.OperatorSessions.Set(float64(count))
	h.log.Info().Str("agent_id", s.agentID).Int("sessions", count).Msg("session disconnected")
}

// Broadcast routes one committed event. new_message reaches the sessions
// joined to the conversation's room; everyone else gets the lighter
// live_message form so list views stay current. Other kinds reach every
// session.
func (h *Hub) Broadcast(event conversation.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal event")
		return
	}

	var liveBody []byte
	if event.Kind == conversation.EventNewMessage {
		live := event
		live.Kind = conversation.EventLiveMessage
		liveBody, _ = json.Marshal(live)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		if event.Kind == conversation.EventNewMessage && s.room() != event.ConversationID {
			s.enqueue(liveBody)
			continue
		}
		s.enqueue(body)
	}
}

// SendLive pushes a reply to web chat sessions as a live_message event.
// Satisfies the dashboard channel's delivery path.
func (h *Hub) SendLive(_ context.Context, msg conversation.OutboundMessage) error {
	h.Broadcast(conversation.Event{
		Kind:           conversation.EventLiveMessage,
		ConversationID: msg.ConversationID,
		SenderRole:     conversation.RoleAI,
		Channel:        msg.Channel,
		Content:        msg.Text,
		Timestamp:      time.Now(),
	})
	return nil
}

// Close disconnects every session. Called on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.conn.Close()
	}
}

// dispatch executes one operator command and reports failures back to the
// issuing session only.
func (h *Hub) dispatch(ctx context.Context, s *Session, cmd Command) {
	var err error
	switch cmd.Action {
	case actionJoin:
		s.setRoom(cmd.ConversationID)
		h.log.Debug().Str("agent_id", s.agentID).Uint("conversation_id", cmd.ConversationID).Msg("joined conversation")
	case actionLeave:
		s.setRoom(0)
	case actionAgentSend:
		err = h.commander.HandleAgentMessage(ctx, cmd.ConversationID, s.agentID, cmd.Text)
	case actionHandBack:
		err = h.commander.HandBackToAI(ctx, cmd.ConversationID)
	default:
		h.log.Warn().Str("action", cmd.Action).Msg("unknown command")
		return
	}

	if err != nil {
		h.log.Warn().Err(err).Str("action", cmd.Action).Uint("conversation_id", cmd.ConversationID).Msg("command failed")
		s.sendError(cmd.ConversationID, err.Error())
	}
}
