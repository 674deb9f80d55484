package ampyobs

import (
	"context"

	"go.uber.org/zap"
)

type messageKey struct{}

// MessageContext carries per-invocation identifiers that end up on every log line.
type MessageContext struct {
	RequestID    string
	MessageID    string
	Queue        string
	FunctionName string
}

func WithMessageContext(ctx context.Context, mc MessageContext) context.Context {
	return context.WithValue(ctx, messageKey{}, mc)
}

func FromMessageContext(ctx context.Context) (MessageContext, bool) {
	if ctx == nil {
		return MessageContext{}, false
	}
	v := ctx.Value(messageKey{})
	if v == nil {
		return MessageContext{}, false
	}
	mc, ok := v.(MessageContext)
	return mc, ok
}

func (m MessageContext) toZapFields() []zap.Field {
	out := make([]zap.Field, 0, 4)
	if m.RequestID != "" {
		out = append(out, zap.String("request_id", m.RequestID))
	}
	if m.MessageID != "" {
		out = append(out, zap.String("message_id", m.MessageID))
	}
	if m.Queue != "" {
		out = append(out, zap.String("queue", m.Queue))
	}
	if m.FunctionName != "" {
		out = append(out, zap.String("function_name", m.FunctionName))
	}
	return out
}
