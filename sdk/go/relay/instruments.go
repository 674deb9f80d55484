package relay

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ampy.local/ampy-tracerelay/sdk/go/ampyobs"
)

const (
	domainProducer = "producer"
	domainConsumer = "consumer"
)

// Instruments are the prometheus series shared by producer and consumer.
// Build one per registry; a nil *Instruments records nothing.
type Instruments struct {
	messages *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	depth    *prometheus.GaugeVec
}

func NewInstruments(m *ampyobs.Metrics) *Instruments {
	return &Instruments{
		messages: m.NewCounter("ampy_relay", "messages_total", "Messages handled by outcome.", nil),
		latency:  m.NewHistogram("ampy_relay", "work_latency_ms", "Handler work latency in ms.", ampyobs.LatencyBucketsMs(), nil),
		depth:    m.NewGauge("ampy_relay", "queue_depth", "Messages waiting in the local queue.", nil, "queue"),
	}
}

func (i *Instruments) message(ctx context.Context, domain, outcome, reason string) {
	if i == nil {
		return
	}
	ampyobs.IncWithTrace(ctx, i.messages.WithLabelValues(domain, outcome, reason))
}

func (i *Instruments) observe(ctx context.Context, domain string, d time.Duration) {
	if i == nil {
		return
	}
	ampyobs.ObserveWithTrace(ctx, i.latency.WithLabelValues(domain), float64(d.Milliseconds()))
}

// SetQueueDepth publishes the number of waiting messages for a queue.
func (i *Instruments) SetQueueDepth(queue string, n int) {
	if i == nil {
		return
	}
	i.depth.WithLabelValues(queue).Set(float64(n))
}
