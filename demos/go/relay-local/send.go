package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ampy.local/ampy-tracerelay/sdk/go/ampyobs"
	"ampy.local/ampy-tracerelay/sdk/go/config"
)

const spanClient = "relay-local-send"

func newSendCmd() *cobra.Command {
	var (
		configPath string
		target     string
		count      int
		body       string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "POST traced messages to a running relay.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			obs, err := ampyobs.Init(cmd.Context(), cfg.Observability())
			if err != nil {
				return fmt.Errorf("init obs: %w", err)
			}
			defer func() { _ = obs.Shutdown(context.Background()) }()

			client := &http.Client{Timeout: 30 * time.Second}
			for i := 0; i < count; i++ {
				traceID, status, err := send(cmd.Context(), obs, client, target, fmt.Sprintf("%s #%d", body, i))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "status=%d trace_id=%s\n", status, traceID)
			}
			return obs.Flush(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file (defaults to $RELAY_CONFIG)")
	cmd.Flags().StringVar(&target, "url", "http://localhost:8080/messages", "relay endpoint")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of messages")
	cmd.Flags().StringVar(&body, "body", "hello", "message body prefix")
	return cmd
}

// send opens a client span and carries it to the relay in the request headers.
func send(ctx context.Context, obs *ampyobs.Handle, client *http.Client, target, body string) (string, int, error) {
	ctx, span := obs.StartSpan(ctx, spanClient, trace.SpanKindClient,
		attribute.String("http.request.method", http.MethodPost),
		attribute.String("url.full", target),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	headers := ampyobs.EventHeaderCarrier{}
	obs.Propagator.Inject(ctx, headers)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", 0, fmt.Errorf("post %s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return span.SpanContext().TraceID().String(), resp.StatusCode, nil
}
