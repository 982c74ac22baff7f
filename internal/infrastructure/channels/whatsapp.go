package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

const whatsappGraphURL = "https://graph.facebook.com/v19.0"

// WhatsAppConfig holds Cloud API credentials.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	AppSecret     string
	BaseURL       string // override for tests
}

// WhatsAppAdapter speaks the WhatsApp Cloud API webhook and send formats.
type WhatsAppAdapter struct {
	cfg    WhatsAppConfig
	client *resty.Client
	log    zerolog.Logger
}

// NewWhatsAppAdapter creates a WhatsApp Cloud API adapter.
func NewWhatsAppAdapter(cfg WhatsAppConfig, log zerolog.Logger) *WhatsAppAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = whatsappGraphURL
	}
	return &WhatsAppAdapter{
		cfg: cfg,
		client: resty.New().
			SetTimeout(15 * time.Second).
			SetAuthToken(cfg.AccessToken),
		log: log.With().Str("component", "whatsapp-adapter").Logger(),
	}
}

var (
	_ Adapter           = (*WhatsAppAdapter)(nil)
	_ ChallengeVerifier = (*WhatsAppAdapter)(nil)
)

func (a *WhatsAppAdapter) Channel() conversation.Channel {
	return conversation.ChannelWhatsApp
}

// VerifyChallenge answers the Cloud API subscription handshake: echo
// hub.challenge when hub.verify_token matches.
func (a *WhatsAppAdapter) VerifyChallenge(query map[string]string) (string, error) {
	if query["hub.mode"] != "subscribe" || query["hub.verify_token"] != a.cfg.VerifyToken {
		return "", ErrSignatureInvalid
	}
	return query["hub.challenge"], nil
}

// VerifyRequest checks the X-Hub-Signature-256 header, an HMAC-SHA256 of
// the raw body keyed with the app secret.
func (a *WhatsAppAdapter) VerifyRequest(r *http.Request, body []byte) error {
	header := r.Header.Get("X-Hub-Signature-256")
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.AppSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrSignatureInvalid
	}
	return nil
}

// whatsappWebhook mirrors the Cloud API webhook envelope, narrowed to the
// fields the router uses.
type whatsappWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseInbound flattens the webhook envelope into events. Status-only
// payloads and non-text message types produce no events.
func (a *WhatsAppAdapter) ParseInbound(body []byte) ([]conversation.InboundEvent, error) {
	var payload whatsappWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode whatsapp webhook: %w", err)
	}

	var events []conversation.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text.Body == "" {
					a.log.Debug().Str("type", msg.Type).Msg("skipping non-text whatsapp message")
					continue
				}
				occurred := time.Now()
				if secs, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
					occurred = time.Unix(secs, 0)
				}
				events = append(events, conversation.InboundEvent{
					Channel:           conversation.ChannelWhatsApp,
					ExternalUserID:    msg.From,
					DisplayName:       names[msg.From],
					ExternalMessageID: msg.ID,
					SenderRole:        conversation.RoleUser,
					Text:              msg.Text.Body,
					OccurredAt:        occurred,
				})
			}
		}
	}
	return events, nil
}

// Send posts a text message through the Cloud API.
func (a *WhatsAppAdapter) Send(ctx context.Context, msg conversation.OutboundMessage) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                msg.ExternalUserID,
		"type":              "text",
		"text":              map[string]string{"body": msg.Text},
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(fmt.Sprintf("%s/%s/messages", a.cfg.BaseURL, a.cfg.PhoneNumberID))
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("whatsapp send: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
