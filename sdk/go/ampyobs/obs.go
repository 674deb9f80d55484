package ampyobs

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"
)

type Config struct {
	ServiceName        string
	ServiceVersion     string
	Environment        string            // dev | staging | prod
	CollectorEndpoint  string            // e.g. "http://localhost:4317" or "localhost:4317"
	TraceProtocol      string            // "grpc" | "http" (default: "grpc")
	EnableMetrics      bool              // OTLP metrics to collector
	EnableTracing      bool              // OTLP traces to collector
	Sampler            string            // "parent" | "ratio" | "always" | "never"
	SampleRatio        float64
	Propagators        []string          // OTEL_PROPAGATORS names
	ResourceAttributes map[string]string // extra resource attributes (cloud.*, faas.*)
	LogLevel           string
}

type Handle struct {
	cfg        Config
	tp         trace.TracerProvider
	Logger     Logger
	Metrics    *Metrics
	Bus        *BusMetrics
	Propagator *Propagator

	flushers  []func(context.Context) error
	shutdowns []func(context.Context) error
}

type options struct {
	tp     trace.TracerProvider
	mp     metric.MeterProvider
	logger Logger
	logOut io.Writer
}

// Option customises Init, mostly for tests and embedding.
type Option func(*options)

// WithTracerProvider uses tp instead of building an OTLP pipeline.
func WithTracerProvider(tp trace.TracerProvider) Option { return func(o *options) { o.tp = tp } }

// WithMeterProvider uses mp instead of building an OTLP pipeline.
func WithMeterProvider(mp metric.MeterProvider) Option { return func(o *options) { o.mp = mp } }

// WithLogger replaces the JSON stdout logger.
func WithLogger(l Logger) Option { return func(o *options) { o.logger = l } }

// WithLogOutput redirects the JSON logger.
func WithLogOutput(w io.Writer) Option { return func(o *options) { o.logOut = w } }

// SetErrorHandler sets a custom error handler for OTel errors
func SetErrorHandler(handler func(error)) {
	otel.SetErrorHandler(errorHandlerFunc(handler))
}

type errorHandlerFunc func(error)

func (f errorHandlerFunc) Handle(err error) { f(err) }

// getMetricViews returns views for customizing histogram buckets
func getMetricViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: metricBusDeliveryLatency},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: histogramBoundariesMs(),
				},
			},
		),
	}
}

func Init(ctx context.Context, cfg Config, opts ...Option) (*Handle, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h := &Handle{cfg: cfg, Metrics: NewMetrics()}

	// ----- Logging -----
	h.Logger = o.logger
	if h.Logger == nil {
		h.Logger = newLogger(cfg, o.logOut)
	}

	// ----- Propagation (W3C) -----
	prop, err := NewPropagator(h.Logger, cfg.Propagators...)
	if err != nil {
		return nil, err
	}
	h.Propagator = prop

	// ----- Resource -----
	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}

	// ----- Tracing -----
	switch {
	case o.tp != nil:
		h.tp = o.tp
		if f, ok := o.tp.(interface{ ForceFlush(context.Context) error }); ok {
			h.flushers = append(h.flushers, f.ForceFlush)
		}
	case cfg.EnableTracing:
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		h.tp = tp
		h.flushers = append(h.flushers, tp.ForceFlush)
		h.shutdowns = append(h.shutdowns, tp.Shutdown)
	default:
		h.tp = tracenoop.NewTracerProvider()
	}

	// ----- Metrics -----
	mp := o.mp
	if mp == nil && cfg.EnableMetrics {
		smp, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		mp = smp
		h.flushers = append(h.flushers, smp.ForceFlush)
		h.shutdowns = append(h.shutdowns, smp.Shutdown)

		// Runtime metrics (GC, mem, goroutines, etc.)
		if err := runtime.Start(
			runtime.WithMinimumReadMemStatsInterval(10*time.Second),
			runtime.WithMeterProvider(smp),
		); err != nil {
			h.Logger.Warn(ctx, "runtime metrics disabled", F("error", err.Error()))
		}
	}
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}

	bus, err := NewBusMetrics(mp, cfg)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	h.Bus = bus

	return h, nil
}

func (h *Handle) Config() Config { return h.cfg }

func (h *Handle) Tracer(name string) trace.Tracer {
	return h.tp.Tracer(name)
}

// Flush pushes buffered spans and metrics. Serverless hosts may freeze the
// process right after an invocation returns, so call it before returning.
func (h *Handle) Flush(ctx context.Context) error {
	var errs []error
	for _, f := range h.flushers {
		if err := f(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handle) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	for i := len(h.shutdowns) - 1; i >= 0; i-- {
		if err := h.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	}

	keys := make([]string, 0, len(cfg.ResourceAttributes))
	for k := range cfg.ResourceAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == string(semconv.ServiceNameKey) {
			continue
		}
		attrs = append(attrs, attribute.String(k, cfg.ResourceAttributes[k]))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg)),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithBatchTimeout(5*time.Second)),
	)
	return tp, nil
}

func newSpanExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	endpoint, insecure := parseEndpoint(cfg.CollectorEndpoint)
	protocol := strings.ToLower(cfg.TraceProtocol)
	if protocol == "" {
		protocol = "grpc" // default
	}

	switch protocol {
	case "http", "http/protobuf":
		// HTTP exporter (port 4318)
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
		}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlptrace http exporter: %w", err)
		}
		return exp, nil
	case "grpc":
		// gRPC exporter (port 4317)
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(endpoint),
		}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{})))
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlptrace grpc exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported trace protocol: %s (use 'grpc' or 'http')", cfg.TraceProtocol)
	}
}

func newSampler(cfg Config) sdktrace.Sampler {
	switch strings.ToLower(cfg.Sampler) {
	case "ratio":
		if cfg.SampleRatio >= 0 && cfg.SampleRatio <= 1 {
			return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
		}
	case "always":
		return sdktrace.AlwaysSample()
	case "never":
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	endpoint, insecure := parseEndpoint(cfg.CollectorEndpoint)

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(endpoint),
	}
	if insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{})))
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlpmetric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exp,
		sdkmetric.WithInterval(10*time.Second),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(getMetricViews()...),
	)
	return mp, nil
}

func parseEndpoint(raw string) (hostport string, insecure bool) {
	if raw == "" {
		return "localhost:4317", true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		// likely "host:port"
		host, port, _ := net.SplitHostPort(raw)
		if port == "" {
			return raw, true
		}
		if host == "" {
			return "localhost:" + port, true
		}
		return raw, true
	}
	insecure = (u.Scheme == "http")
	return u.Host, insecure
}
