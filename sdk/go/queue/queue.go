// Package queue holds the transports the relay hands messages to.
//
// Every driver accepts the same Message: a raw body plus SQS-shaped attributes.
// Transports without typed attributes (NATS, RabbitMQ, Kafka) receive the
// string attributes flattened into headers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

const (
	DriverSQS      = "sqs"
	DriverNATS     = "nats"
	DriverRabbitMQ = "rabbitmq"
	DriverKafka    = "kafka"
	DriverMemory   = "memory"
)

// Message is the unit handed to a Sender.
type Message struct {
	Body       string
	Attributes map[string]events.SQSMessageAttribute
}

// Sender delivers a message and returns the transport's message id.
// Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, m Message) (string, error)
}

// Config selects and configures a driver.
type Config struct {
	Driver       string        `yaml:"driver"`
	URL          string        `yaml:"url"`  // SQS queue URL
	Name         string        `yaml:"name"` // subject, topic, routing key or memory queue name
	Region       string        `yaml:"region"`
	NATSURL      string        `yaml:"nats_url"`
	AMQPURL      string        `yaml:"amqp_url"`
	KafkaBrokers []string      `yaml:"kafka_brokers"`
	ConnTimeout  time.Duration `yaml:"conn_timeout"`
}

// Destination names the queue for logs and span attributes.
func (c Config) Destination() string {
	if c.Name != "" {
		return c.Name
	}
	return c.URL
}

// System maps a driver to its messaging.system attribute value.
func System(driver string) string {
	switch driver {
	case DriverSQS, "":
		return "aws_sqs"
	case DriverRabbitMQ:
		return "rabbitmq"
	default:
		return driver
	}
}

// Open builds the Sender named by cfg.Driver. The cleanup is never nil.
func Open(ctx context.Context, cfg Config) (Sender, func(), error) {
	switch cfg.Driver {
	case DriverSQS, "":
		s, err := NewSQSFromConfig(ctx, cfg)
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() {}, nil
	case DriverNATS:
		s, cleanup, err := DialNATS(cfg)
		if err != nil {
			return nil, func() {}, err
		}
		return s, cleanup, nil
	case DriverRabbitMQ:
		s, cleanup, err := DialRabbitMQ(cfg)
		if err != nil {
			return nil, func() {}, err
		}
		return s, cleanup, nil
	case DriverKafka:
		s, cleanup, err := DialKafka(cfg)
		if err != nil {
			return nil, func() {}, err
		}
		return s, cleanup, nil
	case DriverMemory:
		return NewMemory(cfg.Name), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// Headers flattens string-valued attributes into plain headers.
// Binary attributes have no header form and are skipped.
func Headers(attrs map[string]events.SQSMessageAttribute) map[string]string {
	h := make(map[string]string, len(attrs))
	for k, a := range attrs {
		if a.StringValue == nil {
			continue
		}
		h[k] = *a.StringValue
	}
	return h
}

// wrapSendErr keeps context errors intact so callers can tell cancellation apart.
func wrapSendErr(driver string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &SendError{Driver: driver, Err: err}
}

// SendError is a transport failure. It matches ErrSendFailed under errors.Is
// and reads as the transport's own message.
type SendError struct {
	Driver string
	Err    error
}

func (e *SendError) Error() string { return e.Err.Error() }

func (e *SendError) Unwrap() []error { return []error{ErrSendFailed, e.Err} }

func ready(ctx context.Context, driver string, configured bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !configured {
		return fmt.Errorf("%s send: %w", driver, ErrNotConfigured)
	}
	return nil
}
