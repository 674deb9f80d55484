package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type PubMsg struct {
	Exchange   string
	RoutingKey string
	MessageID  string
	Body       []byte
	Headers    map[string]string
}

type AMQPPublisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// RabbitMQ publishes to the default exchange, routed to a named queue.
type RabbitMQ struct {
	Publisher  AMQPPublisher
	Exchange   string
	RoutingKey string
}

var _ Sender = (*RabbitMQ)(nil)

func NewRabbitMQ(p AMQPPublisher, routingKey string) *RabbitMQ {
	return &RabbitMQ{Publisher: p, RoutingKey: routingKey}
}

func (r *RabbitMQ) Send(ctx context.Context, m Message) (string, error) {
	if err := ready(ctx, DriverRabbitMQ, r.Publisher != nil && r.RoutingKey != ""); err != nil {
		return "", err
	}

	id := uuid.NewString()
	msg := PubMsg{
		Exchange:   r.Exchange,
		RoutingKey: r.RoutingKey,
		MessageID:  id,
		Body:       []byte(m.Body),
		Headers:    Headers(m.Attributes),
	}
	if err := r.Publisher.Publish(ctx, msg); err != nil {
		return "", wrapSendErr(DriverRabbitMQ, err)
	}
	return id, nil
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	var h amqp.Table
	if len(m.Headers) > 0 {
		h = amqp.Table{}
		for k, v := range m.Headers {
			h[k] = v
		}
	}

	return p.ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			MessageId:    m.MessageID,
			Headers:      h,
			ContentType:  "text/plain",
			Body:         m.Body,
		},
	)
}

// DialRabbitMQ connects to cfg.AMQPURL and declares the durable queue cfg.Name.
func DialRabbitMQ(cfg Config) (*RabbitMQ, func(), error) {
	if cfg.AMQPURL == "" {
		return nil, nil, fmt.Errorf("%w: amqp url required", ErrNotConfigured)
	}
	if cfg.Name == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq queue name required", ErrNotConfigured)
	}

	conn, err := amqp.DialConfig(cfg.AMQPURL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "ampy-tracerelay"},
		Dial:       amqp.DefaultDial(cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: amqp dial: %w", ErrNotConfigured, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: amqp channel: %w", ErrNotConfigured, err)
	}
	if _, err := ch.QueueDeclare(cfg.Name, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: amqp queue declare: %w", ErrNotConfigured, err)
	}

	cleanup := func() {
		_ = ch.Close()
		_ = conn.Close()
	}
	return NewRabbitMQ(amqpChannelPublisher{ch: ch}, cfg.Name), cleanup, nil
}
