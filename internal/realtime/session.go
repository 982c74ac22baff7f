package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"concierge-server/internal/domain/conversation"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

// Session is one operator websocket connection. A session is joined to at
// most one conversation room; joining another replaces it.
type Session struct {
	hub     *Hub
	conn    *websocket.Conn
	agentID string
	send    chan []byte

	mu     sync.Mutex
	roomID uint
}

func newSession(hub *Hub, conn *websocket.Conn, agentID string) *Session {
	return &Session{
		hub:     hub,
		conn:    conn,
		agentID: agentID,
		send:    make(chan []byte, sendBuffer),
	}
}

func (s *Session) room() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) setRoom(id uint) {
	s.mu.Lock()
	s.roomID = id
	s.mu.Unlock()
}

// enqueue hands an encoded event to the write pump. A session that cannot
// keep up is dropped rather than allowed to block the hub.
func (s *Session) enqueue(body []byte) {
	select {
	case s.send <- body:
	default:
		s.hub.log.Warn().Str("agent_id", s.agentID).Msg("session send buffer full, dropping connection")
		s.conn.Close()
	}
}

// sendError reports a command failure to this session only.
func (s *Session) sendError(conversationID uint, detail string) {
	body, err := json.Marshal(conversation.Event{
		Kind:           conversation.EventError,
		ConversationID: conversationID,
		Content:        detail,
		Timestamp:      time.Now(),
	})
	if err != nil {
		return
	}
	s.enqueue(body)
}

// readPump consumes operator commands until the connection drops.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.log.Warn().Err(err).Str("agent_id", s.agentID).Msg("websocket read error")
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.sendError(0, "malformed command")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		s.hub.dispatch(ctx, s, cmd)
		cancel()
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case body, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
