// Package relay holds the two ends of the traced queue hop: a producer that
// accepts a request and enqueues its body, and a consumer that drains batches
// and resumes the trace per message.
package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ampy.local/ampy-tracerelay/sdk/go/ampyobs"
	"ampy.local/ampy-tracerelay/sdk/go/queue"
)

const (
	SpanProducer = "sqs-producer-function-top-level"

	// AttrRequestID carries the inbound request id to the consumer.
	AttrRequestID = "RequestId"
)

type ProducerConfig struct {
	Queue     string
	System    string
	WorkDelay time.Duration
	// Attributes are added to every outbound message next to the trace context.
	Attributes map[string]string
}

type Producer struct {
	obs    *ampyobs.Handle
	sender queue.Sender
	inst   *Instruments
	clock  clockz.Clock
	cfg    ProducerConfig
}

// Option tweaks a Producer or Consumer.
type Option func(*options)

type options struct {
	clock clockz.Clock
}

// WithClock drives simulated work delays from clock.
func WithClock(c clockz.Clock) Option { return func(o *options) { o.clock = c } }

func buildOptions(opts []Option) options {
	o := options{clock: clockz.RealClock}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewProducer(obs *ampyobs.Handle, sender queue.Sender, inst *Instruments, cfg ProducerConfig, opts ...Option) *Producer {
	o := buildOptions(opts)
	return &Producer{obs: obs, sender: sender, inst: inst, clock: o.clock, cfg: cfg}
}

// Handle forwards the request body to the queue with the caller's trace context
// attached. Failures are reported in the response; the error is always nil.
func (p *Producer) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if req.Body == "" {
		p.inst.message(ctx, domainProducer, ampyobs.OutcomeReject, "no_body")
		return response(http.StatusBadRequest, msgNoBody), nil
	}

	requestID := req.RequestContext.RequestID
	if lc, ok := lambdacontext.FromContext(ctx); ok && requestID == "" {
		requestID = lc.AwsRequestID
	}
	ctx = ampyobs.WithMessageContext(ctx, ampyobs.MessageContext{
		RequestID:    requestID,
		Queue:        p.cfg.Queue,
		FunctionName: lambdacontext.FunctionName,
	})

	ctx, span, resumed := p.obs.StartRemoteSpan(ctx, ampyobs.EventHeaderCarrier(req.Headers), SpanProducer, trace.SpanKindServer,
		ampyobs.MessageAttrs{System: p.cfg.System, Queue: p.cfg.Queue, RequestID: requestID})
	defer span.End()

	start := p.clock.Now()
	defer func() { p.inst.observe(ctx, domainProducer, p.clock.Since(start)) }()

	if !resumed {
		p.obs.Logger.Debug(ctx, "no upstream trace context, starting a new trace")
	}

	if err := sleep(ctx, p.clock, p.cfg.WorkDelay); err != nil {
		return p.fail(ctx, span, err), nil
	}

	attrs := p.attributes(requestID)
	p.obs.Propagator.Inject(ctx, ampyobs.MessageAttributeCarrier(attrs))

	id, err := p.sender.Send(ctx, queue.Message{Body: req.Body, Attributes: attrs})
	if err != nil {
		return p.fail(ctx, span, err), nil
	}

	span.SetAttributes(attribute.String("messaging.message.id", id))
	p.obs.Bus.ProducedAdd(ctx, p.cfg.Queue, ampyobs.OutcomeOK, 1)
	p.inst.message(ctx, domainProducer, ampyobs.OutcomeOK, "none")
	p.obs.Logger.Info(ctx, "message accepted", ampyobs.F("queue_message_id", id))

	return response(http.StatusOK, msgAccepted), nil
}

// fail records a transport failure. The span keeps its default status: the
// trace itself is intact even though the send did not happen.
func (p *Producer) fail(ctx context.Context, span trace.Span, err error) events.APIGatewayProxyResponse {
	span.RecordError(err)
	fields := []zap.Field{ampyobs.F("error", err.Error())}
	var se *queue.SendError
	if errors.As(err, &se) {
		fields = append(fields, ampyobs.F("driver", se.Driver))
	}
	p.obs.Logger.Error(ctx, "sending message to queue failed", fields...)
	p.obs.Bus.ProducedAdd(ctx, p.cfg.Queue, ampyobs.OutcomeFailed, 1)
	p.inst.message(ctx, domainProducer, ampyobs.OutcomeFailed, "send")
	return response(http.StatusInternalServerError, err.Error())
}

func (p *Producer) attributes(requestID string) map[string]events.SQSMessageAttribute {
	attrs := make(map[string]events.SQSMessageAttribute, len(p.cfg.Attributes)+3)
	carrier := ampyobs.MessageAttributeCarrier(attrs)
	for k, v := range p.cfg.Attributes {
		carrier.Set(k, v)
	}
	if requestID != "" {
		carrier.Set(AttrRequestID, requestID)
	}
	return attrs
}

// sleep waits d on clock unless ctx ends first.
func sleep(ctx context.Context, clock clockz.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
