package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"concierge-server/internal/domain/conversation"
)

const whatsappPayload = `{
  "entry": [{
    "changes": [{
      "value": {
        "contacts": [{"wa_id": "15550001111", "profile": {"name": "Ada"}}],
        "messages": [{
          "id": "wamid.abc123",
          "from": "15550001111",
          "timestamp": "1735000000",
          "type": "text",
          "text": {"body": "I'd like to book a room"}
        }]
      }
    }]
  }]
}`

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWhatsAppParseInbound(t *testing.T) {
	a := NewWhatsAppAdapter(WhatsAppConfig{AppSecret: "secret"}, zerolog.Nop())

	events, err := a.ParseInbound([]byte(whatsappPayload))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.Channel != conversation.ChannelWhatsApp {
		t.Errorf("channel = %s", e.Channel)
	}
	if e.ExternalUserID != "15550001111" || e.DisplayName != "Ada" {
		t.Errorf("identity = %s/%s", e.ExternalUserID, e.DisplayName)
	}
	if e.ExternalMessageID != "wamid.abc123" {
		t.Errorf("dedup key = %s", e.ExternalMessageID)
	}
	if e.Text != "I'd like to book a room" || e.SenderRole != conversation.RoleUser {
		t.Errorf("event = %+v", e)
	}
}

func TestWhatsAppParseSkipsNonText(t *testing.T) {
	a := NewWhatsAppAdapter(WhatsAppConfig{}, zerolog.Nop())

	payload := `{"entry":[{"changes":[{"value":{"messages":[{"id":"wamid.x","from":"1","type":"image"}]}}]}]}`
	events, err := a.ParseInbound([]byte(payload))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want 0 for non-text payload", len(events))
	}
}

func TestWhatsAppVerifyRequest(t *testing.T) {
	a := NewWhatsAppAdapter(WhatsAppConfig{AppSecret: "secret"}, zerolog.Nop())
	body := []byte(whatsappPayload)

	tests := []struct {
		name   string
		header string
		ok     bool
	}{
		{"valid signature", signBody("secret", body), true},
		{"wrong key", signBody("other", body), false},
		{"missing prefix", "deadbeef", false},
		{"empty header", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(string(body)))
			if tt.header != "" {
				r.Header.Set("X-Hub-Signature-256", tt.header)
			}
			err := a.VerifyRequest(r, body)
			if (err == nil) != tt.ok {
				t.Errorf("VerifyRequest err = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestWhatsAppVerifyChallenge(t *testing.T) {
	a := NewWhatsAppAdapter(WhatsAppConfig{VerifyToken: "expected"}, zerolog.Nop())

	challenge, err := a.VerifyChallenge(map[string]string{
		"hub.mode":         "subscribe",
		"hub.verify_token": "expected",
		"hub.challenge":    "12345",
	})
	if err != nil || challenge != "12345" {
		t.Errorf("VerifyChallenge = %q, %v", challenge, err)
	}

	if _, err := a.VerifyChallenge(map[string]string{
		"hub.mode":         "subscribe",
		"hub.verify_token": "wrong",
		"hub.challenge":    "12345",
	}); err == nil {
		t.Error("token mismatch accepted")
	}
}

func TestWhatsAppSend(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/555000/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	}))
	defer server.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{
		AccessToken:   "token",
		PhoneNumberID: "555000",
		BaseURL:       server.URL,
	}, zerolog.Nop())

	err := a.Send(context.Background(), conversation.OutboundMessage{
		ExternalUserID: "15550001111",
		Text:           "See you soon!",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["to"] != "15550001111" {
		t.Errorf("to = %v", got["to"])
	}
	if text, ok := got["text"].(map[string]any); !ok || text["body"] != "See you soon!" {
		t.Errorf("text = %v", got["text"])
	}
}

func TestTelegramParseInbound(t *testing.T) {
	a := NewTelegramAdapter(TelegramConfig{}, zerolog.Nop())

	payload := `{
	  "update_id": 99,
	  "message": {
	    "message_id": 7,
	    "from": {"id": 1234, "first_name": "Grace", "last_name": "Hopper"},
	    "chat": {"id": 5678},
	    "date": 1735000000,
	    "text": "any rooms available?"
	  }
	}`
	events, err := a.ParseInbound([]byte(payload))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.ExternalUserID != "5678" {
		t.Errorf("external user id = %s, want chat id", e.ExternalUserID)
	}
	if e.DisplayName != "Grace Hopper" {
		t.Errorf("display name = %s", e.DisplayName)
	}
	if e.ExternalMessageID != "5678:7" {
		t.Errorf("dedup key = %s", e.ExternalMessageID)
	}
}

func TestTelegramParseSkipsNonMessageUpdates(t *testing.T) {
	a := NewTelegramAdapter(TelegramConfig{}, zerolog.Nop())

	events, err := a.ParseInbound([]byte(`{"update_id": 100}`))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want 0", len(events))
	}
}

func TestTelegramVerifyRequest(t *testing.T) {
	a := NewTelegramAdapter(TelegramConfig{SecretToken: "hunter2"}, zerolog.Nop())

	r := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", nil)
	r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hunter2")
	if err := a.VerifyRequest(r, nil); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}

	r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	if err := a.VerifyRequest(r, nil); err == nil {
		t.Error("wrong token accepted")
	}
}

func TestSMSParseInbound(t *testing.T) {
	a := NewSMSAdapter(SMSConfig{}, zerolog.Nop())

	body := url.Values{
		"From":       {"+15550002222"},
		"Body":       {"necesito ayuda"},
		"MessageSid": {"SM123"},
	}.Encode()

	events, err := a.ParseInbound([]byte(body))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.ExternalUserID != "+15550002222" || e.Text != "necesito ayuda" || e.ExternalMessageID != "SM123" {
		t.Errorf("event = %+v", e)
	}
}

func TestSMSAckResponse(t *testing.T) {
	a := NewSMSAdapter(SMSConfig{}, zerolog.Nop())
	contentType, body := a.AckResponse()
	if contentType != "text/xml" {
		t.Errorf("content type = %s", contentType)
	}
	if !strings.Contains(body, "<Response>") {
		t.Errorf("ack body = %s", body)
	}
}

func TestDashboardParseInbound(t *testing.T) {
	a := NewDashboardAdapter(nil, zerolog.Nop())

	events, err := a.ParseInbound([]byte(`{"session_id":"sess-1","display_name":"Visitor","text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if events[0].ExternalUserID != "sess-1" || events[0].Channel != conversation.ChannelDashboard {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].ExternalMessageID == "" {
		t.Error("no dedup key minted for widget message")
	}

	if _, err := a.ParseInbound([]byte(`{"text":"no session"}`)); err == nil {
		t.Error("missing session id accepted")
	}
}

func TestDashboardParseKeepsClientMessageID(t *testing.T) {
	a := NewDashboardAdapter(nil, zerolog.Nop())

	events, err := a.ParseInbound([]byte(`{"session_id":"sess-1","message_id":"msg-42","text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if events[0].ExternalMessageID != "dash:msg-42" {
		t.Errorf("dedup key = %s, want dash:msg-42", events[0].ExternalMessageID)
	}

	// The same body parses to the same key, so a retried request dedups.
	again, err := a.ParseInbound([]byte(`{"session_id":"sess-1","message_id":"msg-42","text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if again[0].ExternalMessageID != events[0].ExternalMessageID {
		t.Error("retried request produced a different dedup key")
	}
}

func TestRegistryLookup(t *testing.T) {
	wa := NewWhatsAppAdapter(WhatsAppConfig{}, zerolog.Nop())
	registry := NewRegistry(wa)

	got, err := registry.Get(conversation.ChannelWhatsApp)
	if err != nil || got != Adapter(wa) {
		t.Errorf("Get(whatsapp) = %v, %v", got, err)
	}
	if _, err := registry.Get(conversation.Channel("carrier-x")); err == nil {
		t.Error("unknown channel resolved")
	}
}
