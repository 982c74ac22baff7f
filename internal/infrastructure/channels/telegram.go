package channels

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"concierge-server/internal/domain/conversation"
)

const telegramAPIURL = "https://api.telegram.org"

// TelegramConfig holds Bot API credentials.
type TelegramConfig struct {
	BotToken    string
	SecretToken string
	BaseURL     string // override for tests
}

// TelegramAdapter speaks the Telegram Bot API webhook and send formats.
type TelegramAdapter struct {
	cfg    TelegramConfig
	client *resty.Client
	log    zerolog.Logger
}

// NewTelegramAdapter creates a Telegram Bot API adapter.
func NewTelegramAdapter(cfg TelegramConfig, log zerolog.Logger) *TelegramAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = telegramAPIURL
	}
	return &TelegramAdapter{
		cfg:    cfg,
		client: resty.New().SetTimeout(15 * time.Second),
		log:    log.With().Str("component", "telegram-adapter").Logger(),
	}
}

var _ Adapter = (*TelegramAdapter)(nil)

func (a *TelegramAdapter) Channel() conversation.Channel {
	return conversation.ChannelTelegram
}

// VerifyRequest checks the secret token Telegram echoes back on every
// webhook delivery when one was registered with setWebhook.
func (a *TelegramAdapter) VerifyRequest(r *http.Request, _ []byte) error {
	got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.cfg.SecretToken)) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}

// telegramUpdate mirrors the Bot API update envelope, narrowed to text
// messages.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		From      struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Date int64  `json:"date"`
		Text string `json:"text"`
	} `json:"message"`
}

// ParseInbound extracts the update's message, if it carries text. Edited
// messages, callbacks, and service updates produce no events.
func (a *TelegramAdapter) ParseInbound(body []byte) ([]conversation.InboundEvent, error) {
	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("decode telegram update: %w", err)
	}
	if update.Message == nil || update.Message.Text == "" {
		a.log.Debug().Int64("update_id", update.UpdateID).Msg("skipping non-text telegram update")
		return nil, nil
	}

	msg := update.Message
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name == "" {
		name = msg.From.Username
	}

	return []conversation.InboundEvent{{
		Channel:           conversation.ChannelTelegram,
		ExternalUserID:    strconv.FormatInt(msg.Chat.ID, 10),
		DisplayName:       name,
		ExternalMessageID: fmt.Sprintf("%d:%d", msg.Chat.ID, msg.MessageID),
		SenderRole:        conversation.RoleUser,
		Text:              msg.Text,
		OccurredAt:        time.Unix(msg.Date, 0),
	}}, nil
}

// Send posts a sendMessage call to the Bot API.
func (a *TelegramAdapter) Send(ctx context.Context, msg conversation.OutboundMessage) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"chat_id": msg.ExternalUserID,
			"text":    msg.Text,
		}).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", a.cfg.BaseURL, a.cfg.BotToken))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram send: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
