package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	broker := NewRedisBroker(client, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 1)
	require.NoError(t, broker.Subscribe(ctx, "events:test", func(_ context.Context, e Event) error {
		got <- e
		return nil
	}))

	require.NoError(t, broker.Publish(ctx, "events:test", Event{Type: "weights.updated", Timestamp: 42}))

	select {
	case e := <-got:
		assert.Equal(t, "weights.updated", e.Type)
		assert.Equal(t, int64(42), e.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
