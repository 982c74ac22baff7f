// Package alerting pushes operator-facing alerts to a configured webhook.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"concierge-server/internal/domain/retry"
)

// Alert is the JSON body posted to the operator alert webhook.
type Alert struct {
	Kind           string    `json:"kind"`
	ConversationID uint      `json:"conversation_id,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	Detail         string    `json:"detail"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Notifier delivers alerts. A Notifier with an empty URL is a no-op, which
// keeps call sites unconditional.
type Notifier struct {
	client *resty.Client
	url    string
	policy retry.Policy
	log    zerolog.Logger
}

// NewNotifier builds a webhook notifier. url may be empty to disable alerts.
func NewNotifier(url string, log zerolog.Logger) *Notifier {
	return &Notifier{
		client: resty.New().SetTimeout(10 * time.Second),
		url:    url,
		policy: retry.DeliveryPolicy(),
		log:    log.With().Str("component", "alerting").Logger(),
	}
}

// AuthFailure alerts operators that the responder credentials are rejected.
func (n *Notifier) AuthFailure(ctx context.Context, detail string) {
	n.post(ctx, Alert{
		Kind:       "auth_failure",
		Detail:     detail,
		OccurredAt: time.Now(),
	})
}

// DeliveryFailure alerts operators that an outbound reply could not reach
// its carrier after exhausting retries.
func (n *Notifier) DeliveryFailure(ctx context.Context, conversationID uint, channel, detail string) {
	n.post(ctx, Alert{
		Kind:           "delivery_failure",
		ConversationID: conversationID,
		Channel:        channel,
		Detail:         detail,
		OccurredAt:     time.Now(),
	})
}

func (n *Notifier) post(ctx context.Context, alert Alert) {
	if n.url == "" {
		return
	}

	err := retry.Execute(ctx, n.policy, func(ctx context.Context, attempt int) error {
		resp, err := n.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(alert).
			Post(n.url)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return &statusError{code: resp.StatusCode()}
		}
		return nil
	})
	if err != nil {
		// Alerts are best effort; losing one never fails the caller.
		n.log.Error().Err(err).Str("kind", alert.Kind).Msg("alert delivery failed")
		return
	}
	n.log.Info().Str("kind", alert.Kind).Msg("alert delivered")
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("alert webhook returned status %d", e.code)
}
