package queue_test

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"ampy.local/ampy-tracerelay/sdk/go/queue"
)

func TestMemory_SendReceive(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	q := queue.NewMemoryWithClock("orders", clock)

	id, err := q.Send(t.Context(), traced())
	require.NoError(t, err)
	require.Equal(t, 1, q.Len())

	batch := q.Receive(10)
	require.Len(t, batch, 1)
	require.Zero(t, q.Len())

	rec := batch[0]
	require.Equal(t, id, rec.MessageId)
	require.NotEmpty(t, rec.ReceiptHandle)
	require.Equal(t, "hello", rec.Body)
	require.Equal(t, tp, *rec.MessageAttributes["traceparent"].StringValue)
	require.Equal(t, "1700000000000", rec.Attributes["SentTimestamp"])
	require.Equal(t, "1", rec.Attributes["ApproximateReceiveCount"])
	require.Equal(t, "arn:aws:sqs:local:000000000000:orders", rec.EventSourceARN)
}

func TestMemory_ReceiveIsFIFOAndBounded(t *testing.T) {
	q := queue.NewMemory("")
	require.Equal(t, "local", q.Name())

	for i := 0; i < 5; i++ {
		_, err := q.Send(t.Context(), queue.Message{Body: strconv.Itoa(i)})
		require.NoError(t, err)
	}

	first := q.Receive(2)
	require.Equal(t, []string{"0", "1"}, bodies(first))
	require.Equal(t, []string{"2", "3", "4"}, bodies(q.Receive(0)))
	require.Empty(t, q.Receive(1))
}

func TestMemory_SettleRequeuesFailures(t *testing.T) {
	q := queue.NewMemory("q")
	for _, b := range []string{"a", "b", "c"} {
		_, err := q.Send(t.Context(), queue.Message{Body: b})
		require.NoError(t, err)
	}

	batch := q.Receive(3)
	n := q.Settle(batch, []events.SQSBatchItemFailure{{ItemIdentifier: batch[1].MessageId}})
	require.Equal(t, 1, n)

	again := q.Receive(0)
	require.Equal(t, []string{"b"}, bodies(again))
	require.Equal(t, "2", again[0].Attributes["ApproximateReceiveCount"])

	require.Zero(t, q.Settle(again, nil))
}

func TestMemory_SendCopiesAttributes(t *testing.T) {
	q := queue.NewMemory("q")
	m := traced()
	_, err := q.Send(t.Context(), m)
	require.NoError(t, err)

	delete(m.Attributes, "traceparent")
	require.Contains(t, q.Receive(1)[0].MessageAttributes, "traceparent")
}

func TestMemory_ConcurrentSend(t *testing.T) {
	q := queue.NewMemory("q")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Send(t.Context(), queue.Message{Body: "x"})
		}()
	}
	wg.Wait()
	require.Equal(t, 50, q.Len())
}

func bodies(recs []events.SQSMessage) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Body
	}
	return out
}
