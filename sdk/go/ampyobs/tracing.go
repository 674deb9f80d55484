package ampyobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ampyobs"

// MessageAttrs captures stable, low-cardinality attributes for relay spans.
type MessageAttrs struct {
	System    string // "aws_sqs" | "nats" | "rabbitmq" | "kafka" | "memory"
	Queue     string
	MessageID string
	RequestID string
}

func (a MessageAttrs) keyValues() []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, 4)
	if a.System != "" {
		out = append(out, attribute.String("messaging.system", a.System))
	}
	if a.Queue != "" {
		out = append(out, attribute.String("messaging.destination.name", a.Queue))
	}
	if a.MessageID != "" {
		out = append(out, attribute.String("messaging.message.id", a.MessageID))
	}
	if a.RequestID != "" {
		out = append(out, attribute.String("request_id", a.RequestID))
	}
	return out
}

// StartSpan creates a span with a conventional name and kind.
func (h *Handle) StartSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := h.Tracer(tracerName)
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	}
	return tr.Start(ctx, name, opts...)
}

// StartRemoteSpan extracts trace context from g and starts name as its child.
// With nothing to extract the span becomes a new root; resumed reports which
// of the two happened.
func (h *Handle) StartRemoteSpan(ctx context.Context, g Getter, name string, kind trace.SpanKind, a MessageAttrs) (_ context.Context, _ trace.Span, resumed bool) {
	remoteCtx := h.Propagator.Extract(ctx, g)
	resumed = trace.SpanContextFromContext(remoteCtx).IsRemote()

	ctx, span := h.StartSpan(remoteCtx, name, kind, a.keyValues()...)
	return ctx, span, resumed
}
