package transport

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"
)

func TestGoChannelBackend_RoundTrip(t *testing.T) {
	b, err := NewBackend(context.Background(), DefaultSettings())
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscriber().Subscribe(ctx, "test.topic")
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"hello":"world"}`))
	msg.Metadata.Set("correlation_id", "c1")
	require.NoError(t, b.Publisher().Publish("test.topic", msg))

	select {
	case got := <-ch:
		require.JSONEq(t, `{"hello":"world"}`, string(got.Payload))
		require.Equal(t, "c1", got.Metadata.Get("correlation_id"))
		got.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}
