package relay_test

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ampy.local/ampy-tracerelay/sdk/go/ampyobs"
	"ampy.local/ampy-tracerelay/sdk/go/queue"
	"ampy.local/ampy-tracerelay/sdk/go/relay"
)

const (
	inboundTraceParent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	inboundTraceID     = "4bf92f3577b34da6a3ce929d0e0e4736"
	inboundSpanID      = "00f067aa0ba902b7"
)

type harness struct {
	obs   *ampyobs.Handle
	inst  *relay.Instruments
	spans *tracetest.SpanRecorder
	logs  *observer.ObservedLogs
}

func newHarness(t *testing.T) harness {
	t.Helper()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	core, logs := observer.New(zap.DebugLevel)

	cfg := ampyobs.Config{ServiceName: "relay-test", Environment: "test"}
	obs, err := ampyobs.Init(context.Background(), cfg,
		ampyobs.WithTracerProvider(tp),
		ampyobs.WithMeterProvider(mp),
		ampyobs.WithLogger(ampyobs.NewZapLogger(zap.New(core), cfg)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return harness{obs: obs, inst: relay.NewInstruments(obs.Metrics), spans: rec, logs: logs}
}

func (h harness) ended(name string) []sdktrace.ReadOnlySpan {
	var out []sdktrace.ReadOnlySpan
	for _, s := range h.spans.Ended() {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

// recordingSender captures every message it is asked to send.
type recordingSender struct {
	msgs []queue.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, m queue.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.err != nil {
		return "", s.err
	}
	s.msgs = append(s.msgs, m)
	return "msg-1", nil
}

func attr(v string) events.SQSMessageAttribute {
	return events.SQSMessageAttribute{DataType: "String", StringValue: &v}
}
