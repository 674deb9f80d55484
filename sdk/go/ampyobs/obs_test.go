package ampyobs

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		hostport string
		insecure bool
	}{
		{"", "localhost:4317", true},
		{"http://collector:4317", "collector:4317", true},
		{"https://collector.example.com:4318", "collector.example.com:4318", false},
		{"collector:4317", "collector:4317", true},
		{":4317", "localhost:4317", true},
		{"collector", "collector", true},
	}
	for _, c := range cases {
		t.Run(c.raw, func(t *testing.T) {
			hp, insecure := parseEndpoint(c.raw)
			assert.Equal(t, c.hostport, hp)
			assert.Equal(t, c.insecure, insecure)
		})
	}
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(Config{}).Description(), "ParentBased{root:AlwaysOnSampler")
	assert.Contains(t, newSampler(Config{Sampler: "ratio", SampleRatio: 0.5}).Description(), "TraceIDRatioBased{0.5}")
	assert.Contains(t, newSampler(Config{Sampler: "ratio", SampleRatio: 7}).Description(), "root:AlwaysOnSampler")
	assert.Equal(t, "AlwaysOnSampler", newSampler(Config{Sampler: "always"}).Description())
	assert.Equal(t, "AlwaysOffSampler", newSampler(Config{Sampler: "NEVER"}).Description())
}

func TestNewResource(t *testing.T) {
	res, err := newResource(Config{
		ServiceName:    "relay",
		ServiceVersion: "1.2.3",
		Environment:    "prod",
		ResourceAttributes: map[string]string{
			"service.name": "ignored",
			"faas.name":    "fn",
		},
	})
	require.NoError(t, err)

	set := res.Set()
	v, ok := set.Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "relay", v.AsString())

	v, ok = set.Value(attribute.Key("faas.name"))
	require.True(t, ok)
	assert.Equal(t, "fn", v.AsString())
}

func TestInit_Defaults(t *testing.T) {
	var buf bytes.Buffer
	obs, err := Init(context.Background(), Config{ServiceName: "svc"}, WithLogOutput(&buf))
	require.NoError(t, err)
	require.NotNil(t, obs.Propagator)
	require.NotNil(t, obs.Bus)
	require.NotNil(t, obs.Metrics)

	_, span := obs.StartSpan(context.Background(), "noop", trace.SpanKindInternal)
	require.False(t, span.SpanContext().IsValid(), "tracing disabled yields a noop tracer")
	span.End()

	require.NoError(t, obs.Flush(context.Background()))
	require.NoError(t, obs.Shutdown(context.Background()))

	obs.Logger.Info(context.Background(), "hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "svc", line["service"])
}

func TestInit_BadPropagator(t *testing.T) {
	_, err := Init(context.Background(), Config{Propagators: []string{"jaeger"}}, WithLogger(NopLogger()))
	require.Error(t, err)
}

func TestInit_UnsupportedProtocol(t *testing.T) {
	_, err := Init(context.Background(), Config{EnableTracing: true, TraceProtocol: "thrift"}, WithLogger(NopLogger()))
	require.ErrorContains(t, err, "unsupported trace protocol")
}

func TestFlush_UsesProvidedTracerProvider(t *testing.T) {
	h := newHarness(t)

	_, span := h.obs.StartSpan(context.Background(), "op", trace.SpanKindInternal)
	span.End()

	require.NoError(t, h.obs.Flush(context.Background()))
	require.Len(t, h.spans.Ended(), 1)
}
