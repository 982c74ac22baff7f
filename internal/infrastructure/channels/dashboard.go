package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"concierge-server/internal/domain/conversation"
)

// LiveSender pushes a reply to a connected web session. Implemented by the
// realtime hub.
type LiveSender interface {
	SendLive(ctx context.Context, msg conversation.OutboundMessage) error
}

// DashboardAdapter serves the embedded web chat widget. Inbound messages
// arrive over an authenticated HTTP endpoint rather than a carrier webhook,
// and replies are pushed over the websocket instead of a carrier API.
type DashboardAdapter struct {
	live LiveSender
	log  zerolog.Logger
}

// NewDashboardAdapter creates the web chat adapter.
func NewDashboardAdapter(live LiveSender, log zerolog.Logger) *DashboardAdapter {
	return &DashboardAdapter{
		live: live,
		log:  log.With().Str("component", "dashboard-adapter").Logger(),
	}
}

var _ Adapter = (*DashboardAdapter)(nil)

func (a *DashboardAdapter) Channel() conversation.Channel {
	return conversation.ChannelDashboard
}

// VerifyRequest is a no-op: the chat endpoint sits behind the server's own
// ingress, not a third-party webhook.
func (a *DashboardAdapter) VerifyRequest(*http.Request, []byte) error {
	return nil
}

type dashboardMessage struct {
	SessionID   string `json:"session_id"`
	MessageID   string `json:"message_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
}

// ParseInbound reads the widget's JSON body. The session id is the external
// user identity for this channel. The dedup key is the client-supplied
// message id when present, otherwise a uuid minted here; either way it is
// fixed before the event is enqueued, so queue redelivery of the same task
// cannot insert the message twice.
func (a *DashboardAdapter) ParseInbound(body []byte) ([]conversation.InboundEvent, error) {
	var msg dashboardMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode chat message: %w", err)
	}
	if msg.SessionID == "" || strings.TrimSpace(msg.Text) == "" {
		return nil, fmt.Errorf("chat message requires session_id and text")
	}

	name := msg.DisplayName
	if name == "" {
		name = "Web visitor"
	}
	messageID := msg.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	return []conversation.InboundEvent{{
		Channel:           conversation.ChannelDashboard,
		ExternalUserID:    msg.SessionID,
		DisplayName:       name,
		ExternalMessageID: "dash:" + messageID,
		SenderRole:        conversation.RoleUser,
		Text:              msg.Text,
		OccurredAt:        time.Now(),
	}}, nil
}

// Send pushes the reply to the visitor's live session.
func (a *DashboardAdapter) Send(ctx context.Context, msg conversation.OutboundMessage) error {
	if a.live == nil {
		return fmt.Errorf("dashboard send: no live sender configured")
	}
	return a.live.SendLive(ctx, msg)
}
