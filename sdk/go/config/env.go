package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("OTEL_SERVICE_NAME", &cfg.Service.Name)
	str("SERVICE_VERSION", &cfg.Service.Version)
	str("DEPLOYMENT_ENVIRONMENT", &cfg.Service.Environment)

	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)
	str("OTEL_EXPORTER_OTLP_PROTOCOL", &cfg.Telemetry.Protocol)
	str("OTEL_TRACES_SAMPLER", &cfg.Telemetry.Sampler)
	str("OTEL_RESOURCE_ATTRIBUTES", &cfg.Telemetry.ResourceAttrs)
	list("OTEL_PROPAGATORS", &cfg.Telemetry.Propagators)

	str("QUEUE_DRIVER", &cfg.Queue.Driver)
	str("QUEUE_URL", &cfg.Queue.URL)
	str("QUEUE_NAME", &cfg.Queue.Name)
	str("AWS_REGION", &cfg.Queue.Region)
	str("NATS_URL", &cfg.Queue.NATSURL)
	str("AMQP_URL", &cfg.Queue.AMQPURL)
	list("KAFKA_BROKERS", &cfg.Queue.KafkaBrokers)

	if v, ok := lookup("MESSAGE_ATTRIBUTES"); ok && v != "" {
		cfg.MessageAttributes = parsePairs(v)
	}

	str("LOG_LEVEL", &cfg.LogLevel)
	str("HTTP_ADDR", &cfg.HTTPAddr)

	str("AWS_LAMBDA_FUNCTION_NAME", &cfg.Lambda.FunctionName)
	str("AWS_LAMBDA_FUNCTION_VERSION", &cfg.Lambda.FunctionVersion)
	str("AWS_REGION", &cfg.Lambda.Region)

	if v, ok := lookup("OTEL_TRACES_SAMPLER_ARG"); ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OTEL_TRACES_SAMPLER_ARG: %w", err)
		}
		cfg.Telemetry.SampleRatio = r
	}

	for key, dst := range map[string]*bool{
		"OTEL_TRACING_ENABLED": &cfg.Telemetry.Tracing,
		"OTEL_METRICS_ENABLED": &cfg.Telemetry.Metrics,
	} {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	for key, dst := range map[string]*time.Duration{
		"PRODUCER_WORK_DELAY":     &cfg.Work.ProducerDelay,
		"CONSUMER_WORK_DELAY":     &cfg.Work.ConsumerDelay,
		"CONSUMER_INTERNAL_DELAY": &cfg.Work.InternalDelay,
	} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	return nil
}

// ResourceAttributes parses OTEL_RESOURCE_ATTRIBUTES ("k=v,k=v") on top of the
// Lambda identity. The Lambda keys come first, so configured values win on
// conflict; service.name falls back to the function name.
func ResourceAttributes(raw string, l Lambda) map[string]string {
	out := make(map[string]string)
	if l.FunctionName != "" {
		out["service.name"] = l.FunctionName
		out["cloud.provider"] = "aws"
		out["cloud.region"] = l.Region
		out["faas.name"] = l.FunctionName
		out["faas.version"] = l.FunctionVersion
	}
	for k, v := range parsePairs(raw) {
		out[k] = v
	}
	return out
}

// parsePairs reads "k=v,k=v"; entries without a key are skipped.
func parsePairs(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitList(raw) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
