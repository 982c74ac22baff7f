package responder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"concierge-server/internal/domain/conversation"
	"concierge-server/internal/domain/intent"
	"concierge-server/internal/domain/retry"
)

type recordingAlerter struct {
	authFailures int32
}

func (r *recordingAlerter) AuthFailure(context.Context, string) {
	atomic.AddInt32(&r.authFailures, 1)
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func newTestGateway(t *testing.T, handler http.HandlerFunc, alerter Alerter) (*Gateway, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw := NewGateway(Config{
		APIKey:       "test-key",
		BaseURL:      server.URL + "/v1",
		Model:        "test-model",
		HistoryTurns: 10,
		RetryPolicy:  testPolicy(),
		Breaker:      CircuitBreakerConfig{FailureThreshold: 3, Cooldown: time.Hour},
	}, alerter, zerolog.Nop())
	return gw, server
}

func completionBody(content string) string {
	return `{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"` + content + `"},"finish_reason":"stop"}]}`
}

func TestRespondSuccess(t *testing.T) {
	var calls int32
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("Breakfast runs 7 to 10.")))
	}, nil)

	history := []Turn{{Role: conversation.RoleUser, Content: "hi"}}
	reply, err := gw.Respond(context.Background(), history, "what time is breakfast", "en")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Fallback {
		t.Error("success flagged as fallback")
	}
	if reply.Text != "Breakfast runs 7 to 10." {
		t.Errorf("text = %q", reply.Text)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestRespondAuthFailureIsNeverRetried(t *testing.T) {
	var calls int32
	alerter := &recordingAlerter{}
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`))
	}, alerter)

	reply, err := gw.Respond(context.Background(), nil, "hello", "en")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !reply.Fallback || reply.Text != intent.FallbackReply("en") {
		t.Errorf("reply = %+v, want fallback text", reply)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1 (no retry on auth failure)", n)
	}
	if alerter.authFailures != 1 {
		t.Errorf("auth failure alerts = %d, want 1", alerter.authFailures)
	}
}

func TestRespondRetriesTransientErrors(t *testing.T) {
	var calls int32
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"upstream hiccup","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("Recovered.")))
	}, nil)

	reply, err := gw.Respond(context.Background(), nil, "hello", "en")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Fallback || reply.Text != "Recovered." {
		t.Errorf("reply = %+v, want recovered text", reply)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("upstream calls = %d, want 3", n)
	}
}

func TestRespondEmptyContentDegradesToFallback(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("   ")))
	}, nil)

	reply, err := gw.Respond(context.Background(), nil, "hello", "es")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !reply.Fallback || reply.Text != intent.FallbackReply("es") {
		t.Errorf("reply = %+v, want spanish fallback", reply)
	}
	if gw.breaker.State() != StateClosed {
		t.Error("empty content opened the breaker")
	}
}

func TestRespondFailsFastWhenBreakerOpen(t *testing.T) {
	var calls int32
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"down","type":"server_error"}}`))
	}, nil)

	ctx := context.Background()
	// Three exhausted invocations open the breaker.
	for i := 0; i < 3; i++ {
		if _, err := gw.Respond(ctx, nil, "hello", "en"); err != nil {
			t.Fatalf("Respond %d: %v", i, err)
		}
	}
	if gw.breaker.State() != StateOpen {
		t.Fatalf("breaker state = %s, want open", gw.breaker.State())
	}

	before := atomic.LoadInt32(&calls)
	reply, err := gw.Respond(ctx, nil, "hello", "en")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !reply.Fallback {
		t.Error("open breaker did not return fallback")
	}
	if after := atomic.LoadInt32(&calls); after != before {
		t.Errorf("upstream called while breaker open: %d -> %d", before, after)
	}
}

func TestBuildRequestTrimsHistory(t *testing.T) {
	gw := NewGateway(Config{
		APIKey:       "test-key",
		Model:        "test-model",
		SystemPrompt: "be helpful",
		HistoryTurns: 10,
		RetryPolicy:  testPolicy(),
	}, nil, zerolog.Nop())

	history := make([]Turn, 25)
	for i := range history {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAI
		}
		history[i] = Turn{Role: role, Content: strings.Repeat("x", i+1)}
	}

	req := gw.buildRequest(history, "latest")
	// system + 10 trimmed turns + current message
	if len(req.Messages) != 12 {
		t.Fatalf("messages = %d, want 12", len(req.Messages))
	}
	if req.Messages[0].Role != "system" {
		t.Errorf("first message role = %s, want system", req.Messages[0].Role)
	}
	if got := req.Messages[1].Content; len(got) != 16 {
		t.Errorf("oldest retained turn has length %d, want 16", len(got))
	}
	if last := req.Messages[len(req.Messages)-1]; last.Content != "latest" || last.Role != "user" {
		t.Errorf("last message = %+v", last)
	}
}
