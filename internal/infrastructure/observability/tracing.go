package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "concierge-server"

// GetTracer returns the service tracer.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartInboundSpan starts a span covering one inbound event's transition.
func StartInboundSpan(ctx context.Context, channel, externalUserID string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "dialog.handle_inbound",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("conversation.channel", channel),
			attribute.String("conversation.external_user_id", externalUserID),
		),
	)
}

// StartResponderSpan starts a span covering one responder gateway call.
func StartResponderSpan(ctx context.Context, model string, historyLen int) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "responder.respond",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("responder.model", model),
			attribute.Int("responder.history_turns", historyLen),
		),
	)
}

// StartDeliverySpan starts a span covering one carrier send.
func StartDeliverySpan(ctx context.Context, channel string, conversationID uint) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "delivery.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("delivery.channel", channel),
			attribute.Int64("conversation.id", int64(conversationID)),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error, severity string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.severity", severity))
}
