package relay

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ampy.local/ampy-tracerelay/sdk/go/ampyobs"
)

const SpanConsumer = "sqs-consumer-function-top-level"

// Worker performs the business work for one message.
type Worker interface {
	Work(ctx context.Context, msg events.SQSMessage) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, msg events.SQSMessage) error

func (f WorkerFunc) Work(ctx context.Context, msg events.SQSMessage) error { return f(ctx, msg) }

type ConsumerConfig struct {
	Queue  string
	System string
}

type Consumer struct {
	obs    *ampyobs.Handle
	worker Worker
	inst   *Instruments
	clock  clockz.Clock
	cfg    ConsumerConfig
}

func NewConsumer(obs *ampyobs.Handle, worker Worker, inst *Instruments, cfg ConsumerConfig, opts ...Option) *Consumer {
	o := buildOptions(opts)
	return &Consumer{obs: obs, worker: worker, inst: inst, clock: o.clock, cfg: cfg}
}

// Handle processes records one at a time in delivery order. Each record gets
// its own span; a record whose work fails is reported in BatchItemFailures and
// does not affect the others.
func (c *Consumer) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := c.process(ctx, rec); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (c *Consumer) process(ctx context.Context, rec events.SQSMessage) (err error) {
	ctx = ampyobs.WithMessageContext(ctx, ampyobs.MessageContext{
		MessageID: rec.MessageId,
		Queue:     c.cfg.Queue,
		RequestID: requestIDOf(rec),
	})

	ctx, span, resumed := c.obs.StartRemoteSpan(ctx, ampyobs.MessageAttributeCarrier(rec.MessageAttributes), SpanConsumer, trace.SpanKindServer,
		ampyobs.MessageAttrs{System: c.cfg.System, Queue: c.cfg.Queue, MessageID: rec.MessageId})
	defer span.End()

	start := c.clock.Now()
	if ms, ok := deliveryLatencyMs(rec, start.UnixMilli()); ok {
		c.obs.Bus.DeliveryLatencyMs(ctx, c.cfg.Queue, ms)
	}

	outcome, reason := ampyobs.OutcomeOK, "none"
	if !resumed {
		outcome, reason = ampyobs.OutcomeNoTrace, "missing_context"
		c.obs.Logger.Debug(ctx, "message carries no trace context, starting a new trace")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
		c.inst.observe(ctx, domainConsumer, c.clock.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.obs.Logger.Error(ctx, "message processing failed", ampyobs.F("error", err.Error()))
			outcome, reason = ampyobs.OutcomeFailed, "work"
		}
		c.obs.Bus.ConsumedAdd(ctx, c.cfg.Queue, outcome, 1)
		c.inst.message(ctx, domainConsumer, outcome, reason)
	}()

	return c.worker.Work(ctx, rec)
}

func requestIDOf(rec events.SQSMessage) string {
	return ampyobs.MessageAttributeCarrier(rec.MessageAttributes).Get(AttrRequestID)
}

// deliveryLatencyMs derives queue latency from the SentTimestamp system attribute.
func deliveryLatencyMs(rec events.SQSMessage, nowMs int64) (float64, bool) {
	raw, ok := rec.Attributes["SentTimestamp"]
	if !ok {
		return 0, false
	}
	sent, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sent > nowMs {
		return 0, false
	}
	return float64(nowMs - sent), true
}
