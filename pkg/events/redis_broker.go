package events

import (
	"context"
	"encoding/json"
	"fmt"

	"catalog-search/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisBroker fans events out to every process over Redis pub/sub. Delivery
// is best effort: subscribers that are down miss the message.
type RedisBroker struct {
	client redis.UniversalClient
	logger *logger.Logger
}

func NewRedisBroker(client redis.UniversalClient, l *logger.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger.OrNop(l)}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.client.Publish(ctx, channel, data).Err()
}

// Subscribe returns once the subscription is active. Handling stops when ctx
// is cancelled.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warnf("dropping malformed event on %s: %v", channel, err)
					continue
				}
				if err := handler(ctx, event); err != nil {
					b.logger.Errorf("handling %s event on %s: %v", event.Type, channel, err)
				}
			}
		}
	}()

	return nil
}
