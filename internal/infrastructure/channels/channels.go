// Package channels normalizes carrier-specific webhook payloads into the
// canonical inbound event and delivers canonical outbound messages back to
// each carrier.
package channels

import (
	"context"
	"errors"
	"net/http"

	"concierge-server/internal/domain/conversation"
)

// ErrUnknownChannel is returned when no adapter is registered for a channel.
var ErrUnknownChannel = errors.New("unknown channel")

// ErrSignatureInvalid is returned when webhook authentication fails.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// Adapter translates between one carrier's wire format and the canonical
// conversation types.
type Adapter interface {
	// Channel returns the carrier this adapter serves.
	Channel() conversation.Channel

	// VerifyRequest authenticates an incoming webhook. body is the raw
	// request body, already read.
	VerifyRequest(r *http.Request, body []byte) error

	// ParseInbound extracts zero or more normalized events from a verified
	// webhook body. Non-message payloads (status updates, read receipts)
	// yield an empty slice, not an error.
	ParseInbound(body []byte) ([]conversation.InboundEvent, error)

	// Send delivers one reply to the carrier.
	Send(ctx context.Context, msg conversation.OutboundMessage) error
}

// ChallengeVerifier is implemented by adapters whose carrier performs a GET
// subscription handshake before delivering webhooks.
type ChallengeVerifier interface {
	// VerifyChallenge validates the handshake query parameters and returns
	// the response body to echo back.
	VerifyChallenge(query map[string]string) (string, error)
}

// Acknowledger is implemented by adapters whose carrier expects a specific
// response body on webhook receipt instead of a bare 200.
type Acknowledger interface {
	// AckResponse returns the content type and body of the webhook ack.
	AckResponse() (contentType, body string)
}

// Registry maps channels to their adapters.
type Registry struct {
	adapters map[conversation.Channel]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[conversation.Channel]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Channel()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for a channel.
func (r *Registry) Get(ch conversation.Channel) (Adapter, error) {
	a, ok := r.adapters[ch]
	if !ok {
		return nil, ErrUnknownChannel
	}
	return a, nil
}

// Channels lists the registered channels.
func (r *Registry) Channels() []conversation.Channel {
	out := make([]conversation.Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	return out
}
