package queue

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// Memory is a thread-safe in-process queue that hands out SQS-shaped records.
// It backs local runs and tests.
type Memory struct {
	mu      sync.Mutex
	name    string
	clock   clockz.Clock
	pending []events.SQSMessage
}

var _ Sender = (*Memory)(nil)

func NewMemory(name string) *Memory {
	return NewMemoryWithClock(name, clockz.RealClock)
}

// NewMemoryWithClock stamps SentTimestamp from clock.
func NewMemoryWithClock(name string, clock clockz.Clock) *Memory {
	if name == "" {
		name = "local"
	}
	return &Memory{name: name, clock: clock}
}

func (q *Memory) Name() string { return q.name }

func (q *Memory) Send(ctx context.Context, m Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	attrs := make(map[string]events.SQSMessageAttribute, len(m.Attributes))
	for k, v := range m.Attributes {
		attrs[k] = v
	}

	id := uuid.NewString()
	rec := events.SQSMessage{
		MessageId:         id,
		ReceiptHandle:     uuid.NewString(),
		Body:              m.Body,
		MessageAttributes: attrs,
		Attributes: map[string]string{
			"SentTimestamp":           strconv.FormatInt(q.clock.Now().UnixMilli(), 10),
			"ApproximateReceiveCount": "0",
		},
		EventSource:    "aws:sqs",
		EventSourceARN: "arn:aws:sqs:local:000000000000:" + q.name,
		AWSRegion:      "local",
	}

	q.mu.Lock()
	q.pending = append(q.pending, rec)
	q.mu.Unlock()

	return id, nil
}

// Receive pops up to max records in FIFO order.
func (q *Memory) Receive(max int) []events.SQSMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	if max <= 0 || max > len(q.pending) {
		max = len(q.pending)
	}
	out := make([]events.SQSMessage, max)
	copy(out, q.pending[:max])
	q.pending = q.pending[max:]

	for i := range out {
		out[i].Attributes = bumpReceiveCount(out[i].Attributes)
	}
	return out
}

// Settle re-enqueues the records of batch listed in failures; the rest are dropped.
func (q *Memory) Settle(batch []events.SQSMessage, failures []events.SQSBatchItemFailure) int {
	if len(failures) == 0 {
		return 0
	}
	failed := make(map[string]struct{}, len(failures))
	for _, f := range failures {
		failed[f.ItemIdentifier] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, rec := range batch {
		if _, ok := failed[rec.MessageId]; ok {
			q.pending = append(q.pending, rec)
			n++
		}
	}
	return n
}

// Len reports how many records are waiting.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func bumpReceiveCount(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		out[k] = v
	}
	n, _ := strconv.Atoi(out["ApproximateReceiveCount"])
	out["ApproximateReceiveCount"] = strconv.Itoa(n + 1)
	return out
}
