package ampyobs

import (
	"github.com/aws/aws-lambda-go/events"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderTraceParent = "traceparent"
	HeaderTraceState  = "tracestate"
	HeaderBaggage     = "baggage"

	// DataTypeString is the only attribute data type written by the relay.
	DataTypeString = "String"
)

// Getter reads propagation fields from a carrier.
type Getter interface {
	Values(key string) []string
	Keys() []string
}

// Setter writes propagation fields into a carrier.
type Setter interface {
	Set(key, value string)
}

// EventHeaderCarrier adapts the headers of an inbound request event.
// Keys are matched exactly as received.
type EventHeaderCarrier map[string]string

var _ propagation.TextMapCarrier = EventHeaderCarrier(nil)

// Values returns the header value as a single element slice, or nil when absent.
func (c EventHeaderCarrier) Values(key string) []string {
	v, ok := c[key]
	if !ok {
		return nil
	}
	return []string{v}
}

// Get returns the header value or "".
func (c EventHeaderCarrier) Get(key string) string {
	return first(c.Values(key))
}

// Set stores value under key, replacing any previous value.
func (c EventHeaderCarrier) Set(key, value string) {
	c[key] = value
}

// Keys lists all header names.
func (c EventHeaderCarrier) Keys() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}

// MessageAttributeCarrier adapts queue message attributes, where every value is
// a typed record rather than a bare string.
type MessageAttributeCarrier map[string]events.SQSMessageAttribute

var _ propagation.TextMapCarrier = MessageAttributeCarrier(nil)

// Values unwraps the attribute's string value. A missing attribute or an
// attribute without a string value yields nil.
func (c MessageAttributeCarrier) Values(key string) []string {
	attr, ok := c[key]
	if !ok || attr.StringValue == nil {
		return nil
	}
	return []string{*attr.StringValue}
}

// Get returns the attribute's string value or "".
func (c MessageAttributeCarrier) Get(key string) string {
	return first(c.Values(key))
}

// Set wraps value as a String attribute, replacing any previous entry.
func (c MessageAttributeCarrier) Set(key, value string) {
	v := value
	c[key] = events.SQSMessageAttribute{
		StringValue: &v,
		DataType:    DataTypeString,
	}
}

// Keys lists all attribute names.
func (c MessageAttributeCarrier) Keys() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}
