// Package config loads relay settings from an optional .env file, an optional
// YAML file and the process environment, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ampy.local/ampy-tracerelay/sdk/go/ampyobs"
	"ampy.local/ampy-tracerelay/sdk/go/queue"
)

type Service struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

type Telemetry struct {
	Endpoint      string   `yaml:"endpoint"`
	Protocol      string   `yaml:"protocol"`
	Tracing       bool     `yaml:"tracing"`
	Metrics       bool     `yaml:"metrics"`
	Sampler       string   `yaml:"sampler"`
	SampleRatio   float64  `yaml:"sample_ratio"`
	Propagators   []string `yaml:"propagators"`
	ResourceAttrs string   `yaml:"resource_attributes"` // OTEL_RESOURCE_ATTRIBUTES syntax
}

type Work struct {
	ProducerDelay time.Duration `yaml:"producer_delay"`
	ConsumerDelay time.Duration `yaml:"consumer_delay"`
	InternalDelay time.Duration `yaml:"internal_delay"`
}

// Lambda mirrors the runtime-provided function identity.
type Lambda struct {
	FunctionName    string
	FunctionVersion string
	Region          string
}

type Config struct {
	Service   Service      `yaml:"service"`
	Telemetry Telemetry    `yaml:"telemetry"`
	Queue     queue.Config `yaml:"queue"`
	Work      Work         `yaml:"work"`
	// MessageAttributes are static String attributes sent with every message.
	MessageAttributes map[string]string `yaml:"message_attributes"`
	LogLevel          string            `yaml:"log_level"`
	HTTPAddr          string            `yaml:"http_addr"`
	Lambda            Lambda            `yaml:"-"`
}

// DefaultMessageAttributes is the attribute the consumer expects to find and log.
func DefaultMessageAttributes() map[string]string {
	return map[string]string{"AttributeName": "AttributeValue"}
}

// Defaults match the timings of the reference deployment.
func Defaults() Config {
	return Config{
		Service: Service{
			Name:        "ampy-tracerelay",
			Version:     "0.1.0",
			Environment: "dev",
		},
		Telemetry: Telemetry{
			Protocol:    "grpc",
			Tracing:     true,
			Sampler:     "parent",
			SampleRatio: 1.0,
			Propagators: []string{"tracecontext"},
		},
		Queue: queue.Config{Driver: queue.DriverSQS},
		Work: Work{
			ProducerDelay: 2 * time.Second,
			ConsumerDelay: 2 * time.Second,
			InternalDelay: 1 * time.Second,
		},
		MessageAttributes: DefaultMessageAttributes(),
		LogLevel:          "debug",
		HTTPAddr:          ":8080",
	}
}

// Load reads ".env" (if present), then the YAML file at path or $RELAY_CONFIG
// (if any), then environment overrides.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()

	if path == "" {
		path = os.Getenv("RELAY_CONFIG")
	}
	if path != "" {
		// yaml.v3 merges into a non-nil map; a configured map replaces the default.
		cfg.MessageAttributes = nil

		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if cfg.MessageAttributes == nil {
		cfg.MessageAttributes = DefaultMessageAttributes()
	}
	return cfg, nil
}

// Observability builds the ampyobs configuration, folding in Lambda resource
// attributes.
func (c Config) Observability() ampyobs.Config {
	attrs := ResourceAttributes(c.Telemetry.ResourceAttrs, c.Lambda)

	name := c.Service.Name
	if v, ok := attrs["service.name"]; ok && v != "" {
		name = v
	}

	return ampyobs.Config{
		ServiceName:        name,
		ServiceVersion:     c.Service.Version,
		Environment:        c.Service.Environment,
		CollectorEndpoint:  c.Telemetry.Endpoint,
		TraceProtocol:      c.Telemetry.Protocol,
		EnableTracing:      c.Telemetry.Tracing,
		EnableMetrics:      c.Telemetry.Metrics,
		Sampler:            c.Telemetry.Sampler,
		SampleRatio:        c.Telemetry.SampleRatio,
		Propagators:        c.Telemetry.Propagators,
		ResourceAttributes: attrs,
		LogLevel:           c.LogLevel,
	}
}
