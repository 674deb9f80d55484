package relay

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/trace"

	"ampy.local/ampy-tracerelay/sdk/go/ampyobs"
	"ampy.local/ampy-tracerelay/sdk/go/queue"
)

const SpanInternalWork = "sqs-consumer-function-some-internal-work"

// SimulatedWork stands in for real message handling: it waits, opens an
// internal span, logs the message and waits again.
type SimulatedWork struct {
	Obs           *ampyobs.Handle
	Clock         clockz.Clock
	Delay         time.Duration
	InternalDelay time.Duration
}

var _ Worker = SimulatedWork{}

func (w SimulatedWork) Work(ctx context.Context, msg events.SQSMessage) error {
	clock := w.Clock
	if clock == nil {
		clock = clockz.RealClock
	}

	if err := sleep(ctx, clock, w.Delay); err != nil {
		return err
	}

	ctx, span := w.Obs.StartSpan(ctx, SpanInternalWork, trace.SpanKindInternal)
	defer span.End()

	w.Obs.Logger.Info(ctx, "message received",
		ampyobs.F("body", msg.Body),
		ampyobs.F("attributes", queue.Headers(msg.MessageAttributes)),
	)

	return sleep(ctx, clock, w.InternalDelay)
}
