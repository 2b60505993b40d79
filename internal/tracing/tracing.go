// Package tracing wraps the OpenTelemetry span a Session keeps open for
// its whole lifetime, generalized from this codebase's habit of wrapping
// external-facing operations in one span per request.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/relaycore/relay"

// Tracer returns the package's tracer. Callers that don't configure an
// SDK TracerProvider get otel's no-op implementation, so this is always
// safe to call.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSession opens the one span that spans a Session's entire
// lifetime, from construction to terminal state.
func StartSession(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "relay.session",
		trace.WithAttributes(attribute.String("relay.session_id", sessionID)))
}

// AddTransitionEvent records one fsm transition as a span event.
func AddTransitionEvent(span trace.Span, from, to, event string) {
	span.AddEvent("relay.transition", trace.WithAttributes(
		attribute.String("relay.state_from", from),
		attribute.String("relay.state_to", to),
		attribute.String("relay.event", event),
	))
}

// EndTerminal closes the span with the outcome's reason and byte count,
// marking the span as an error for any non-finished reason.
func EndTerminal(span trace.Span, finalState, reason string, bytesTransferred int64) {
	span.SetAttributes(
		attribute.String("relay.final_state", finalState),
		attribute.String("relay.reason", reason),
		attribute.Int64("relay.bytes_transferred", bytesTransferred),
	)
	if reason == "" || finalState == "FINISHED" {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, reason)
	}
	span.End()
}
