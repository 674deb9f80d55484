package relay_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/trace"

	"ampy.local/ampy-tracerelay/sdk/go/relay"
)

func TestSimulatedWork_OpensInternalChildSpan(t *testing.T) {
	h := newHarness(t)
	c := relay.NewConsumer(h.obs, relay.SimulatedWork{Obs: h.obs}, h.inst, relay.ConsumerConfig{Queue: "orders"})

	resp, err := c.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		tracedRecord("m1", "1111111111111111"),
	}})
	require.NoError(t, err)
	require.Empty(t, resp.BatchItemFailures)

	top := h.ended(relay.SpanConsumer)
	inner := h.ended(relay.SpanInternalWork)
	require.Len(t, top, 1)
	require.Len(t, inner, 1)

	assert.Equal(t, trace.SpanKindInternal, inner[0].SpanKind())
	assert.Equal(t, top[0].SpanContext().SpanID(), inner[0].Parent().SpanID())
	assert.Equal(t, inboundTraceID, inner[0].SpanContext().TraceID().String())

	entries := h.logs.FilterMessage("message received").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "body-m1", entries[0].ContextMap()["body"])
	assert.Equal(t, inner[0].SpanContext().SpanID().String(), entries[0].ContextMap()["span_id"])
}

func TestSimulatedWork_WaitsOnClock(t *testing.T) {
	h := newHarness(t)
	clock := clockz.NewFakeClock()
	w := relay.SimulatedWork{Obs: h.obs, Clock: clock, Delay: 2 * time.Second, InternalDelay: time.Second}

	done := make(chan error, 1)
	go func() { done <- w.Work(context.Background(), tracedRecord("m1", "1111111111111111")) }()

	require.Eventually(t, func() bool {
		clock.Advance(500 * time.Millisecond)
		select {
		case err := <-done:
			assert.NoError(t, err)
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, h.ended(relay.SpanInternalWork), 1)
}

func TestSimulatedWork_CanceledBeforeWork(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := relay.SimulatedWork{Obs: h.obs, Delay: time.Hour}.Work(ctx, events.SQSMessage{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.ended(relay.SpanInternalWork))
}
