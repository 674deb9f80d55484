package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"ampy.local/ampy-tracerelay/sdk/go/ampyobs"
	"ampy.local/ampy-tracerelay/sdk/go/config"
	"ampy.local/ampy-tracerelay/sdk/go/queue"
	"ampy.local/ampy-tracerelay/sdk/go/relay"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("")
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	obs, err := ampyobs.Init(ctx, cfg.Observability())
	if err != nil {
		panic(fmt.Sprintf("Failed to init ampyobs: %v", err))
	}

	// Set error handler to catch OTel errors
	ampyobs.SetErrorHandler(func(err error) {
		obs.Logger.Warn(ctx, "otel error", ampyobs.F("error", err.Error()))
	})

	worker := relay.SimulatedWork{
		Obs:           obs,
		Delay:         cfg.Work.ConsumerDelay,
		InternalDelay: cfg.Work.InternalDelay,
	}
	consumer := relay.NewConsumer(obs, worker, relay.NewInstruments(obs.Metrics), relay.ConsumerConfig{
		Queue:  cfg.Queue.Destination(),
		System: queue.System(cfg.Queue.Driver),
	})

	handler := func(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
		defer flush(obs)
		return consumer.Handle(ctx, ev)
	}

	lambda.StartWithOptions(handler, lambda.WithEnableSIGTERM(func() {
		_ = obs.Shutdown(context.Background())
	}))
}

// flush exports spans before the runtime freezes the sandbox.
func flush(obs *ampyobs.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := obs.Flush(ctx); err != nil {
		obs.Logger.Warn(ctx, "flush telemetry", ampyobs.F("error", err.Error()))
	}
}
