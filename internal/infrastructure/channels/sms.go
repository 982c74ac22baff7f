package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"concierge-server/internal/domain/conversation"
)

const smsAPIURL = "https://api.twilio.com"

// SMSConfig holds the SMS provider credentials.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string // override for tests
}

// SMSAdapter speaks the Twilio-compatible SMS webhook and send formats.
type SMSAdapter struct {
	cfg    SMSConfig
	client *resty.Client
	log    zerolog.Logger
}

// NewSMSAdapter creates an SMS adapter.
func NewSMSAdapter(cfg SMSConfig, log zerolog.Logger) *SMSAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = smsAPIURL
	}
	return &SMSAdapter{
		cfg: cfg,
		client: resty.New().
			SetTimeout(15 * time.Second).
			SetBasicAuth(cfg.AccountSID, cfg.AuthToken),
		log: log.With().Str("component", "sms-adapter").Logger(),
	}
}

var (
	_ Adapter      = (*SMSAdapter)(nil)
	_ Acknowledger = (*SMSAdapter)(nil)
)

func (a *SMSAdapter) Channel() conversation.Channel {
	return conversation.ChannelSMS
}

// VerifyRequest validates the provider signature: base64 HMAC-SHA1 over the
// full request URL concatenated with the sorted form parameters.
func (a *SMSAdapter) VerifyRequest(r *http.Request, body []byte) error {
	params, err := url.ParseQuery(string(body))
	if err != nil {
		return ErrSignatureInvalid
	}

	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	fullURL := scheme + "://" + r.Host + r.URL.RequestURI()

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(fullURL)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(params.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(a.cfg.AuthToken))
	mac.Write([]byte(sb.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	got := r.Header.Get("X-Twilio-Signature")
	if !hmac.Equal([]byte(got), []byte(expected)) {
		return ErrSignatureInvalid
	}
	return nil
}

// ParseInbound reads the form-encoded webhook body.
func (a *SMSAdapter) ParseInbound(body []byte) ([]conversation.InboundEvent, error) {
	params, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("decode sms webhook: %w", err)
	}

	from := params.Get("From")
	text := params.Get("Body")
	if from == "" || text == "" {
		a.log.Debug().Msg("skipping sms webhook without sender or body")
		return nil, nil
	}

	return []conversation.InboundEvent{{
		Channel:           conversation.ChannelSMS,
		ExternalUserID:    from,
		DisplayName:       from,
		ExternalMessageID: params.Get("MessageSid"),
		SenderRole:        conversation.RoleUser,
		Text:              text,
		OccurredAt:        time.Now(),
	}}, nil
}

// AckResponse returns the empty TwiML document the provider expects so it
// does not send an auto-reply of its own.
func (a *SMSAdapter) AckResponse() (string, string) {
	return "text/xml", `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
}

// Send posts a message through the REST API.
func (a *SMSAdapter) Send(ctx context.Context, msg conversation.OutboundMessage) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   msg.ExternalUserID,
			"From": a.cfg.FromNumber,
			"Body": msg.Text,
		}).
		Post(fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", a.cfg.BaseURL, a.cfg.AccountSID))
	if err != nil {
		return fmt.Errorf("sms send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms send: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
