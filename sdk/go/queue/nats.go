package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATSClient is a minimal NATS-like publisher interface decoupled from any concrete library.
type NATSClient interface {
	Publish(subject string, data []byte, headers map[string]string) error
}

// NATS publishes each message on a fixed subject, attributes as headers.
type NATS struct {
	Client  NATSClient
	Subject string
}

var _ Sender = (*NATS)(nil)

func NewNATS(c NATSClient, subject string) *NATS { return &NATS{Client: c, Subject: subject} }

func (n *NATS) Send(ctx context.Context, m Message) (string, error) {
	if err := ready(ctx, DriverNATS, n.Client != nil && n.Subject != ""); err != nil {
		return "", err
	}

	id := uuid.NewString()
	headers := Headers(m.Attributes)
	headers[nats.MsgIdHdr] = id

	if err := n.Client.Publish(n.Subject, []byte(m.Body), headers); err != nil {
		return "", wrapSendErr(DriverNATS, err)
	}
	return id, nil
}

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data}

	if len(headers) > 0 {
		msg.Header = nats.Header{}
		for k, v := range headers {
			msg.Header.Set(k, v)
		}
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	return c.nc.Flush()
}

// DialNATS connects to cfg.NATSURL and returns a sender plus cleanup.
func DialNATS(cfg Config) (*NATS, func(), error) {
	if cfg.NATSURL == "" {
		return nil, nil, fmt.Errorf("%w: nats url required", ErrNotConfigured)
	}
	if cfg.Name == "" {
		return nil, nil, fmt.Errorf("%w: nats subject required", ErrNotConfigured)
	}

	opts := []nats.Option{nats.Name("ampy-tracerelay")}
	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: nats connect: %w", ErrNotConfigured, err)
	}

	cleanup := func() {
		if !nc.IsClosed() {
			_ = nc.Drain() // best-effort shutdown
			nc.Close()
		}
	}
	return NewNATS(natsClient{nc: nc}, cfg.Name), cleanup, nil
}
