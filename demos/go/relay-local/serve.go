package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"ampy.local/ampy-tracerelay/sdk/go/ampyobs"
	"ampy.local/ampy-tracerelay/sdk/go/config"
	"ampy.local/ampy-tracerelay/sdk/go/queue"
	"ampy.local/ampy-tracerelay/sdk/go/relay"
)

const (
	drainBatch    = 10
	drainInterval = 500 * time.Millisecond
	maxBodyBytes  = 256 << 10 // SQS message size limit
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /messages and drain the local queue.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file (defaults to $RELAY_CONFIG)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http_addr")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	obs, err := ampyobs.Init(ctx, cfg.Observability())
	if err != nil {
		return fmt.Errorf("init obs: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(sctx)
	}()

	ampyobs.SetErrorHandler(func(err error) {
		obs.Logger.Warn(ctx, "otel error", ampyobs.F("error", err.Error()))
	})

	inst := relay.NewInstruments(obs.Metrics)
	system := queue.System(cfg.Queue.Driver)

	// Only the memory driver can be drained in-process; other drivers are
	// consumed by their own Lambda or worker.
	var (
		sender queue.Sender
		mem    *queue.Memory
	)
	if cfg.Queue.Driver == queue.DriverMemory {
		mem = queue.NewMemory(cfg.Queue.Name)
		sender = mem
	} else {
		s, cleanup, err := queue.Open(ctx, cfg.Queue)
		if err != nil {
			return err
		}
		defer cleanup()
		sender = s
	}

	producer := relay.NewProducer(obs, sender, inst, relay.ProducerConfig{
		Queue:      cfg.Queue.Destination(),
		System:     system,
		WorkDelay:  cfg.Work.ProducerDelay,
		Attributes: cfg.MessageAttributes,
	})

	r := mux.NewRouter()
	r.Handle("/messages", messagesHandler(producer)).Methods(http.MethodPost)
	r.Handle("/metrics", obs.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           ampyobs.HTTPServerMiddleware(obs)(r),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if mem != nil {
		consumer := relay.NewConsumer(obs, relay.SimulatedWork{
			Obs:           obs,
			Delay:         cfg.Work.ConsumerDelay,
			InternalDelay: cfg.Work.InternalDelay,
		}, inst, relay.ConsumerConfig{Queue: mem.Name(), System: system})
		go drain(ctx, obs, mem, consumer, inst)
	}

	errc := make(chan error, 1)
	go func() {
		obs.Logger.Info(ctx, "relay-local serving", ampyobs.F("addr", cfg.HTTPAddr), ampyobs.F("driver", cfg.Queue.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// messagesHandler adapts a plain HTTP request into the API Gateway event the
// producer expects.
func messagesHandler(p *relay.Producer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeMessage(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Message body exceeds %d bytes", tooLarge.Limit))
				return
			}
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		resp, _ := p.Handle(r.Context(), proxyRequest(r, string(body)))
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = io.WriteString(w, resp.Body)
	})
}

// writeMessage answers in the same {"message": ...} shape the producer uses.
func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Message string `json:"message"`
	}{message})
}

// proxyRequest keeps the first value of each header under its lower-case name,
// the way API Gateway HTTP APIs deliver them.
func proxyRequest(r *http.Request, body string) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(r.Header))
	multi := make(map[string][]string, len(r.Header))
	for k, vs := range r.Header {
		if len(vs) == 0 {
			continue
		}
		name := strings.ToLower(k)
		headers[name] = vs[0]
		multi[name] = vs
	}

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return events.APIGatewayProxyRequest{
		Resource:          r.URL.Path,
		Path:              r.URL.Path,
		HTTPMethod:        r.Method,
		Headers:           headers,
		MultiValueHeaders: multi,
		Body:              body,
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:  requestID,
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
		},
	}
}

// drain feeds the memory queue into the consumer until ctx ends. Records the
// consumer reports as failed go back on the queue.
func drain(ctx context.Context, obs *ampyobs.Handle, q *queue.Memory, c *relay.Consumer, inst *relay.Instruments) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		inst.SetQueueDepth(q.Name(), q.Len())
		batch := q.Receive(drainBatch)
		if len(batch) == 0 {
			continue
		}

		resp, err := c.Handle(ctx, events.SQSEvent{Records: batch})
		if err != nil {
			obs.Logger.Error(ctx, "consumer batch failed", ampyobs.F("error", err.Error()))
			resp.BatchItemFailures = allFailed(batch)
		}
		if n := q.Settle(batch, resp.BatchItemFailures); n > 0 {
			obs.Logger.Warn(ctx, "requeued failed messages", ampyobs.F("count", n))
		}
		inst.SetQueueDepth(q.Name(), q.Len())
	}
}

func allFailed(batch []events.SQSMessage) []events.SQSBatchItemFailure {
	out := make([]events.SQSBatchItemFailure, len(batch))
	for i, rec := range batch {
		out[i] = events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId}
	}
	return out
}
