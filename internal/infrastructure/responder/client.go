// Package responder wraps the external chat-completion service behind one
// retry and circuit-breaker policy. Every transient failure is absorbed
// here and converted to fallback text; callers never observe raw upstream
// errors.
package responder

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"concierge-server/internal/domain/chaterrors"
	"concierge-server/internal/domain/conversation"
	"concierge-server/internal/domain/intent"
	"concierge-server/internal/domain/retry"
	"concierge-server/internal/infrastructure/metrics"
	"concierge-server/internal/infrastructure/observability"
)

// Turn is one prior exchange handed to the responder as context.
type Turn struct {
	Role    conversation.SenderRole
	Content string
}

// Reply is the canonical responder output. Fallback is true when the text
// is the canned degradation message rather than model output.
type Reply struct {
	Text     string
	Fallback bool
}

// Config tunes the responder gateway.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	HistoryTurns int
	RetryPolicy  retry.Policy
	Breaker      CircuitBreakerConfig
}

// Alerter receives operator-visible alerts for fatal responder failures.
type Alerter interface {
	AuthFailure(ctx context.Context, detail string)
}

// Gateway invokes the chat-completion service with bounded history.
type Gateway struct {
	client       *openai.Client
	model        string
	systemPrompt string
	historyTurns int
	policy       retry.Policy
	breaker      *CircuitBreaker
	alerter      Alerter
	log          zerolog.Logger
}

// NewGateway builds the responder gateway.
func NewGateway(cfg Config, alerter Alerter, log zerolog.Logger) *Gateway {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 10
	}

	gwLog := log.With().Str("component", "responder").Logger()
	return &Gateway{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		historyTurns: cfg.HistoryTurns,
		policy:       cfg.RetryPolicy,
		breaker:      NewCircuitBreaker(cfg.Breaker, gwLog),
		alerter:      alerter,
		log:          gwLog,
	}
}

// Respond invokes the model with the trimmed history plus the current user
// message and returns either model output or locale-appropriate fallback
// text. The returned error is non-nil only for context cancellation.
func (g *Gateway) Respond(ctx context.Context, history []Turn, currentMessage, locale string) (Reply, error) {
	if !g.breaker.Allow() {
		g.log.Warn().Err(chaterrors.ErrCircuitOpen).Msg("responder call rejected")
		metrics.ResponderCallsTotal.WithLabelValues("circuit_open").Inc()
		return Reply{Text: intent.FallbackReply(locale), Fallback: true}, nil
	}

	ctx, span := observability.StartResponderSpan(ctx, g.model, len(history))
	defer span.End()

	started := time.Now()
	req := g.buildRequest(history, currentMessage)

	text, err := retry.ExecuteWithResult(ctx, g.policy, func(ctx context.Context, attempt int) (string, error) {
		if attempt > 0 {
			g.log.Debug().Int("attempt", attempt).Msg("retrying responder call")
		}
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", classify(err)
		}
		if len(resp.Choices) == 0 {
			return "", chaterrors.New(chaterrors.CodeProviderError, "responder returned no choices", chaterrors.SeverityFallback)
		}
		return resp.Choices[0].Message.Content, nil
	})
	metrics.ResponderDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Reply{}, err
		}
		g.breaker.RecordFailure()
		observability.RecordError(span, err, chaterrors.Classify(err).String())
		g.observeFailure(ctx, err)
		return Reply{Text: intent.FallbackReply(locale), Fallback: true}, nil
	}

	// Empty or whitespace output is a soft failure; never propagate it.
	if strings.TrimSpace(text) == "" {
		g.breaker.RecordSuccess()
		g.log.Warn().Msg("responder returned empty content, degrading to fallback")
		metrics.ResponderCallsTotal.WithLabelValues("empty").Inc()
		return Reply{Text: intent.FallbackReply(locale), Fallback: true}, nil
	}

	g.breaker.RecordSuccess()
	metrics.ResponderCallsTotal.WithLabelValues("success").Inc()
	return Reply{Text: strings.TrimSpace(text)}, nil
}

func (g *Gateway) buildRequest(history []Turn, currentMessage string) openai.ChatCompletionRequest {
	// Bound resource usage: only the most recent turns go upstream.
	if len(history) > g.historyTurns {
		history = history[len(history)-g.historyTurns:]
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if g.systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: g.systemPrompt,
		})
	}
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == conversation.RoleAI || turn.Role == conversation.RoleAgent {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: currentMessage,
	})

	return openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: msgs,
	}
}

func (g *Gateway) observeFailure(ctx context.Context, err error) {
	severity := chaterrors.Classify(err)
	var ce *chaterrors.ChatError
	code := chaterrors.CodeProviderError
	if errors.As(err, &ce) {
		code = ce.Code
	}

	if code == chaterrors.CodeAuthFailed {
		// Fatal: misconfigured credentials will not heal on retry.
		g.log.Error().Err(err).Msg("responder authentication failed")
		metrics.ResponderCallsTotal.WithLabelValues("auth_failed").Inc()
		if g.alerter != nil {
			g.alerter.AuthFailure(ctx, err.Error())
		}
		return
	}

	g.log.Warn().Err(err).Str("severity", severity.String()).Msg("responder call failed, degrading to fallback")
	metrics.ResponderCallsTotal.WithLabelValues("error").Inc()
}

// classify maps upstream errors onto the chat error taxonomy so the retry
// policy can tell transient failures from fatal ones.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return chaterrors.Wrap(err, chaterrors.CodeAuthFailed, "responder rejected credentials", chaterrors.SeverityFatal)
		case http.StatusTooManyRequests:
			return chaterrors.Wrap(err, chaterrors.CodeRateLimit, "responder rate limited", chaterrors.SeverityRetryable)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return chaterrors.Wrap(err, chaterrors.CodeProviderError, "responder upstream error", chaterrors.SeverityRetryable)
		}
		return chaterrors.Wrap(err, chaterrors.CodeProviderError, "responder request rejected", chaterrors.SeverityFallback)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return chaterrors.Wrap(err, chaterrors.CodeTimeout, "responder call timed out", chaterrors.SeverityRetryable)
	}
	return chaterrors.Wrap(err, chaterrors.CodeServiceUnavail, "responder unreachable", chaterrors.SeverityRetryable)
}
