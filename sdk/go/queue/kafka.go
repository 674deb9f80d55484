package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaWriter is a minimal Kafka-like writer interface.
type KafkaWriter interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Kafka produces each message to a fixed topic keyed by a fresh message id.
type Kafka struct {
	Writer KafkaWriter
	Topic  string
}

var _ Sender = (*Kafka)(nil)

func NewKafka(w KafkaWriter, topic string) *Kafka { return &Kafka{Writer: w, Topic: topic} }

func (k *Kafka) Send(ctx context.Context, m Message) (string, error) {
	if err := ready(ctx, DriverKafka, k.Writer != nil && k.Topic != ""); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := k.Writer.Write(ctx, k.Topic, []byte(id), []byte(m.Body), Headers(m.Attributes)); err != nil {
		return "", wrapSendErr(DriverKafka, err)
	}
	return id, nil
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}
	return w.cl.ProduceSync(ctx, rec).FirstErr()
}

// DialKafka builds a franz-go client for cfg.KafkaBrokers. The cleanup closes it.
func DialKafka(cfg Config) (*Kafka, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", ErrNotConfigured)
	}
	if cfg.Name == "" {
		return nil, nil, fmt.Errorf("%w: kafka topic required", ErrNotConfigured)
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.ClientID("ampy-tracerelay"),
		kgo.DefaultProduceTopic(cfg.Name),
	}
	if cfg.ConnTimeout > 0 {
		opts = append(opts, kgo.DialTimeout(cfg.ConnTimeout))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", ErrNotConfigured, err)
	}
	return NewKafka(kgoWriter{cl: cl}, cfg.Name), cl.Close, nil
}
