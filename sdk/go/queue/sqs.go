package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the slice of the SQS client the sender needs.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS sends messages to a single SQS queue.
type SQS struct {
	Client   SQSAPI
	QueueURL string
}

var _ Sender = (*SQS)(nil)

func NewSQS(c SQSAPI, queueURL string) *SQS { return &SQS{Client: c, QueueURL: queueURL} }

// NewSQSFromConfig loads AWS credentials from the default chain.
func NewSQSFromConfig(ctx context.Context, cfg Config) (*SQS, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: sqs queue url required", ErrNotConfigured)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: aws config: %w", ErrNotConfigured, err)
	}

	return NewSQS(sqs.NewFromConfig(awsCfg), cfg.URL), nil
}

func (s *SQS) Send(ctx context.Context, m Message) (string, error) {
	if err := ready(ctx, DriverSQS, s.Client != nil && s.QueueURL != ""); err != nil {
		return "", err
	}

	out, err := s.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.QueueURL),
		MessageBody:       aws.String(m.Body),
		MessageAttributes: sqsAttributes(m),
	})
	if err != nil {
		return "", wrapSendErr(DriverSQS, err)
	}

	return aws.ToString(out.MessageId), nil
}

func sqsAttributes(m Message) map[string]types.MessageAttributeValue {
	if len(m.Attributes) == 0 {
		return nil
	}
	out := make(map[string]types.MessageAttributeValue, len(m.Attributes))
	for k, a := range m.Attributes {
		dt := a.DataType
		if dt == "" {
			dt = "String"
		}
		out[k] = types.MessageAttributeValue{
			DataType:    aws.String(dt),
			StringValue: a.StringValue,
			BinaryValue: a.BinaryValue,
		}
	}
	return out
}
