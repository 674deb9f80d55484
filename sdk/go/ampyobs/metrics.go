package ampyobs

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

type Metrics struct {
	reg *prometheus.Registry

	httpOnce sync.Once
	httpReqs *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{reg: prometheus.NewRegistry()}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in OpenMetrics format so exemplars are exposed.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// NewCounter registers a counter vec. Without labels it uses domain, outcome
// and reason.
func (m *Metrics) NewCounter(namespace, name, help string, constLabels prometheus.Labels, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: constLabels,
	}, labelsOr(labels, "domain", "outcome", "reason"))
	m.reg.MustRegister(cv)
	return cv
}

// NewHistogram registers a histogram vec labelled by domain unless labels are given.
func (m *Metrics) NewHistogram(namespace, name, help string, buckets []float64, constLabels prometheus.Labels, labels ...string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: constLabels,
	}, labelsOr(labels, "domain"))
	m.reg.MustRegister(hv)
	return hv
}

// NewGauge registers a gauge vec labelled by domain unless labels are given.
func (m *Metrics) NewGauge(namespace, name, help string, constLabels prometheus.Labels, labels ...string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: constLabels,
	}, labelsOr(labels, "domain"))
	m.reg.MustRegister(gv)
	return gv
}

// httpRequests is registered once per registry and shared by every middleware.
func (m *Metrics) httpRequests() *prometheus.CounterVec {
	m.httpOnce.Do(func() {
		m.httpReqs = m.NewCounter("ampy_relay", "http_requests_total", "HTTP requests served by the relay.", nil,
			"method", "status_class")
	})
	return m.httpReqs
}

func labelsOr(labels []string, def ...string) []string {
	if len(labels) == 0 {
		return def
	}
	return labels
}

// IncWithTrace increments c, attaching trace/span ids as an exemplar when ctx has a span.
func IncWithTrace(ctx context.Context, c prometheus.Counter) {
	if ea, ok := c.(prometheus.ExemplarAdder); ok {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			ea.AddWithExemplar(1, traceExemplar(sc))
			return
		}
	}
	c.Inc()
}

// ObserveWithTrace records v on o with a trace exemplar when possible.
func ObserveWithTrace(ctx context.Context, o prometheus.Observer, v float64) {
	if eo, ok := o.(prometheus.ExemplarObserver); ok {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			eo.ObserveWithExemplar(v, traceExemplar(sc))
			return
		}
	}
	o.Observe(v)
}

func traceExemplar(sc trace.SpanContext) prometheus.Labels {
	return prometheus.Labels{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}
}

// histogramBoundariesMs returns consistent bucket boundaries for latency histograms
func histogramBoundariesMs() []float64 {
	return []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000} // ms
}

// LatencyBucketsMs exposes the shared latency buckets for prometheus histograms.
func LatencyBucketsMs() []float64 { return histogramBoundariesMs() }
