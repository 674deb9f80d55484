package ampyobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Public enums (bounded label values)
const (
	OutcomeOK      = "ok"
	OutcomeReject  = "reject"
	OutcomeFailed  = "failed"
	OutcomeNoTrace = "no_trace"
)

const (
	metricBusProduced        = "ampy.bus.produced_total"
	metricBusConsumed        = "ampy.bus.consumed_total"
	metricBusDeliveryLatency = "ampy.bus.delivery_latency_ms"
)

// BusMetrics holds the OTel instruments describing queue traffic.
type BusMetrics struct {
	cfg Config

	produced        metric.Int64Counter
	consumed        metric.Int64Counter
	deliveryLatency metric.Float64Histogram
}

// NewBusMetrics constructs instruments on mp's "ampyobs" meter.
func NewBusMetrics(mp metric.MeterProvider, cfg Config) (*BusMetrics, error) {
	meter := mp.Meter("ampyobs")
	b := &BusMetrics{cfg: cfg}

	var err error
	b.produced, err = meter.Int64Counter(
		metricBusProduced,
		metric.WithDescription("Messages handed to the queue transport"),
	)
	if err != nil {
		return nil, err
	}

	b.consumed, err = meter.Int64Counter(
		metricBusConsumed,
		metric.WithDescription("Messages drained from the queue"),
	)
	if err != nil {
		return nil, err
	}

	b.deliveryLatency, err = meter.Float64Histogram(
		metricBusDeliveryLatency,
		metric.WithDescription("Queue end-to-end delivery latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// ProducedAdd increments the produced counter for a queue and outcome.
func (b *BusMetrics) ProducedAdd(ctx context.Context, queue, outcome string, n int64) {
	b.produced.Add(ctx, n, metric.WithAttributes(b.attrs(queue, outcome)...))
}

// ConsumedAdd increments the consumed counter for a queue and outcome.
func (b *BusMetrics) ConsumedAdd(ctx context.Context, queue, outcome string, n int64) {
	b.consumed.Add(ctx, n, metric.WithAttributes(b.attrs(queue, outcome)...))
}

// DeliveryLatencyMs records send-to-receive latency for a queue.
func (b *BusMetrics) DeliveryLatencyMs(ctx context.Context, queue string, ms float64) {
	b.deliveryLatency.Record(ctx, ms,
		metric.WithAttributes(
			attribute.String("queue", queue),
			attribute.String("service", b.cfg.ServiceName),
			attribute.String("env", b.cfg.Environment),
		),
	)
}

func (b *BusMetrics) attrs(queue, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("queue", queue),
		attribute.String("outcome", outcome),
		attribute.String("service", b.cfg.ServiceName),
		attribute.String("env", b.cfg.Environment),
	}
}
