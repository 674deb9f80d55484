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

	sender, cleanup, err := queue.Open(ctx, cfg.Queue)
	if err != nil {
		panic(fmt.Sprintf("open queue: %v", err))
	}

	producer := relay.NewProducer(obs, sender, relay.NewInstruments(obs.Metrics), relay.ProducerConfig{
		Queue:      cfg.Queue.Destination(),
		System:     queue.System(cfg.Queue.Driver),
		WorkDelay:  cfg.Work.ProducerDelay,
		Attributes: cfg.MessageAttributes,
	})

	handler := func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		defer flush(obs)
		return producer.Handle(ctx, req)
	}

	lambda.StartWithOptions(handler, lambda.WithEnableSIGTERM(func() {
		cleanup()
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
