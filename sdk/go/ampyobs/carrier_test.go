package ampyobs

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

func TestEventHeaderCarrier(t *testing.T) {
	c := EventHeaderCarrier{"traceparent": "x", "Content-Type": "text/plain"}

	require.Equal(t, []string{"x"}, c.Values("traceparent"))
	require.Nil(t, c.Values("tracestate"))
	require.Equal(t, "", c.Get("Traceparent"), "lookup is case sensitive")
	require.ElementsMatch(t, []string{"traceparent", "Content-Type"}, c.Keys())

	c.Set("traceparent", "y")
	require.Equal(t, "y", c.Get("traceparent"))
}

func TestMessageAttributeCarrier(t *testing.T) {
	v := "abc"
	c := MessageAttributeCarrier{
		"traceparent": {DataType: "String", StringValue: &v},
		"bin":         {DataType: "Binary", BinaryValue: []byte{1}},
	}

	require.Equal(t, []string{"abc"}, c.Values("traceparent"))
	require.Nil(t, c.Values("bin"))
	require.Nil(t, c.Values("missing"))
	require.ElementsMatch(t, []string{"traceparent", "bin"}, c.Keys())

	c.Set("tracestate", "k=v")
	got := c["tracestate"]
	require.Equal(t, DataTypeString, got.DataType)
	require.NotNil(t, got.StringValue)
	require.Equal(t, "k=v", *got.StringValue)
}

func TestMessageAttributeCarrier_SetDoesNotAlias(t *testing.T) {
	attrs := map[string]events.SQSMessageAttribute{}
	c := MessageAttributeCarrier(attrs)

	c.Set("a", "1")
	c.Set("b", "2")
	require.Equal(t, "1", *attrs["a"].StringValue)
	require.Equal(t, "2", *attrs["b"].StringValue)
}
