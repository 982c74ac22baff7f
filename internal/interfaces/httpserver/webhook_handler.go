package httpserver

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"concierge-server/internal/domain/conversation"
	"concierge-server/internal/infrastructure/channels"
	"concierge-server/internal/infrastructure/metrics"
	"concierge-server/internal/infrastructure/queue"
)

const maxWebhookBody = 1 << 20

// WebhookHandler terminates carrier webhooks: verify, normalize, enqueue,
// ack. Processing happens in the worker pool so the carrier sees a fast
// response regardless of downstream latency.
type WebhookHandler struct {
	registry *channels.Registry
	tasks    queue.TaskQueue
	log      zerolog.Logger
}

func newWebhookHandler(registry *channels.Registry, tasks queue.TaskQueue, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		registry: registry,
		tasks:    tasks,
		log:      log.With().Str("handler", "webhook").Logger(),
	}
}

// Handshake handles GET /webhooks/:carrier, the subscription verification
// some carriers perform. Idempotent and side-effect free.
func (h *WebhookHandler) Handshake(c *gin.Context) {
	adapter, err := h.adapter(c)
	if err != nil {
		return
	}

	verifier, ok := adapter.(channels.ChallengeVerifier)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	query := map[string]string{}
	for k, vals := range c.Request.URL.Query() {
		if len(vals) > 0 {
			query[k] = vals[0]
		}
	}

	challenge, err := verifier.VerifyChallenge(query)
	if err != nil {
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

// Receive handles POST /webhooks/:carrier.
func (h *WebhookHandler) Receive(c *gin.Context) {
	adapter, err := h.adapter(c)
	if err != nil {
		return
	}
	channel := string(adapter.Channel())

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		metrics.InboundEventsTotal.WithLabelValues(channel, "read_error").Inc()
		c.Status(http.StatusBadRequest)
		return
	}

	if err := adapter.VerifyRequest(c.Request, body); err != nil {
		h.log.Warn().Str("channel", channel).Msg("webhook signature rejected")
		metrics.InboundEventsTotal.WithLabelValues(channel, "unauthorized").Inc()
		c.Status(http.StatusForbidden)
		return
	}

	events, err := adapter.ParseInbound(body)
	if err != nil {
		h.log.Warn().Err(err).Str("channel", channel).Msg("webhook parse failed")
		metrics.InboundEventsTotal.WithLabelValues(channel, "parse_error").Inc()
		c.Status(http.StatusBadRequest)
		return
	}

	for _, event := range events {
		key := fmt.Sprintf("%s:%s", event.Channel, event.ExternalUserID)
		if err := h.tasks.Enqueue(c.Request.Context(), queue.TypeInboundMessage, key, event); err != nil {
			// A 500 makes the carrier redeliver; dedup absorbs any overlap.
			h.log.Error().Err(err).Str("channel", channel).Msg("enqueue inbound event failed")
			metrics.InboundEventsTotal.WithLabelValues(channel, "enqueue_error").Inc()
			c.Status(http.StatusInternalServerError)
			return
		}
		metrics.InboundEventsTotal.WithLabelValues(channel, "accepted").Inc()
	}

	if acker, ok := adapter.(channels.Acknowledger); ok {
		contentType, ackBody := acker.AckResponse()
		c.Data(http.StatusOK, contentType, []byte(ackBody))
		return
	}
	c.Status(http.StatusOK)
}

func (h *WebhookHandler) adapter(c *gin.Context) (channels.Adapter, error) {
	carrier := conversation.Channel(c.Param("carrier"))
	adapter, err := h.registry.Get(carrier)
	if err != nil {
		c.Status(http.StatusNotFound)
		return nil, err
	}
	return adapter, nil
}
