package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"ampy.local/ampy-tracerelay/sdk/go/ampyobs"
	"ampy.local/ampy-tracerelay/sdk/go/queue"
	"ampy.local/ampy-tracerelay/sdk/go/relay"
)

const traceParent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestProxyRequest_LowercasesHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/messages", nil)
	r.Header.Set("Traceparent", traceParent)
	r.Header.Add("X-Multi", "a")
	r.Header.Add("X-Multi", "b")
	r.Header.Set("X-Request-Id", "req-7")

	ev := proxyRequest(r, "hi")
	assert.Equal(t, traceParent, ev.Headers["traceparent"])
	assert.Equal(t, "a", ev.Headers["x-multi"])
	assert.Equal(t, []string{"a", "b"}, ev.MultiValueHeaders["x-multi"])
	assert.Equal(t, "req-7", ev.RequestContext.RequestID)
	assert.Equal(t, "hi", ev.Body)
	assert.Equal(t, http.MethodPost, ev.HTTPMethod)
}

func TestProxyRequest_GeneratesRequestID(t *testing.T) {
	ev := proxyRequest(httptest.NewRequest(http.MethodPost, "/messages", nil), "")
	assert.NotEmpty(t, ev.RequestContext.RequestID)
}

func TestMessagesHandler_EnqueuesWithTraceContext(t *testing.T) {
	obs, err := ampyobs.Init(context.Background(), ampyobs.Config{ServiceName: "relay-local-test"}, ampyobs.WithLogger(ampyobs.NopLogger()))
	require.NoError(t, err)

	mem := queue.NewMemory("q")
	p := relay.NewProducer(obs, mem, nil, relay.ProducerConfig{Queue: "q"})

	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader("payload"))
	req.Header.Set("traceparent", traceParent)
	rr := httptest.NewRecorder()
	messagesHandler(p).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Message accepted!"}`, rr.Body.String())

	batch := mem.Receive(0)
	require.Len(t, batch, 1)
	assert.Equal(t, "payload", batch[0].Body)
	assert.Contains(t, batch[0].MessageAttributes, relay.AttrRequestID)
}

func TestMessagesHandler_EmptyBody(t *testing.T) {
	obs, err := ampyobs.Init(context.Background(), ampyobs.Config{}, ampyobs.WithLogger(ampyobs.NopLogger()))
	require.NoError(t, err)

	mem := queue.NewMemory("q")
	rr := httptest.NewRecorder()
	messagesHandler(relay.NewProducer(obs, mem, nil, relay.ProducerConfig{})).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/messages", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, mem.Len())
}

func TestAllFailed(t *testing.T) {
	got := allFailed([]events.SQSMessage{{MessageId: "a"}, {MessageId: "b"}})
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "a"}, {ItemIdentifier: "b"}}, got)
}

func TestSend_CarriesTraceIntoRelay(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	obs, err := ampyobs.Init(context.Background(), ampyobs.Config{}, ampyobs.WithTracerProvider(tp), ampyobs.WithLogger(ampyobs.NopLogger()))
	require.NoError(t, err)

	mem := queue.NewMemory("q")
	srv := httptest.NewServer(messagesHandler(relay.NewProducer(obs, mem, nil, relay.ProducerConfig{Queue: "q"})))
	defer srv.Close()

	traceID, status, err := send(context.Background(), obs, srv.Client(), srv.URL, "hello")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	batch := mem.Receive(0)
	require.Len(t, batch, 1)
	injected := ampyobs.MessageAttributeCarrier(batch[0].MessageAttributes).Get("traceparent")
	assert.Contains(t, injected, traceID)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{spanClient, relay.SpanProducer}, names)
}

func TestMessagesHandler_RejectsOversizedBody(t *testing.T) {
	obs, err := ampyobs.Init(context.Background(), ampyobs.Config{}, ampyobs.WithLogger(ampyobs.NopLogger()))
	require.NoError(t, err)

	mem := queue.NewMemory("q")
	h := messagesHandler(relay.NewProducer(obs, mem, nil, relay.ProducerConfig{Queue: "q"}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(strings.Repeat("x", maxBodyBytes+100))))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Message body exceeds 262144 bytes"}`, rr.Body.String())
	assert.Zero(t, mem.Len(), "nothing is enqueued")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(strings.Repeat("x", maxBodyBytes))))
	assert.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, mem.Len())
	assert.Len(t, mem.Receive(1)[0].Body, maxBodyBytes)
}
