package redis

import (
	"context"
	"errors"
	"log"

	goredis "github.com/redis/go-redis/v9"

	"control-cloud/internal/bus"
)

// Bus implements bus.Publisher and bus.Subscriber over Redis pub/sub.
type Bus struct {
	client goredis.UniversalClient
	logger *log.Logger
}

// NewBus constructs a Redis-backed bus.
func NewBus(client goredis.UniversalClient, logger *log.Logger) (*Bus, error) {
	if client == nil {
		return nil, errors.New("redis bus: nil client")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{client: client, logger: logger}, nil
}

// Publish sends the payload and returns the PUBLISH reply, which is the
// number of clients that received it.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) (int, error) {
	if channel == "" {
		return 0, bus.ErrEmptyChannel
	}
	count, err := b.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Subscribe confirms the subscription with the server and then delivers
// messages to handler on a dedicated goroutine until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler bus.Handler) error {
	if channel == "" {
		return bus.ErrEmptyChannel
	}
	if handler == nil {
		return bus.ErrNilHandler
	}
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}

	go func() {
		defer func() {
			if err := ps.Close(); err != nil {
				b.logger.Printf("redis bus close: channel=%s err=%v", channel, err)
			}
		}()
		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					b.logger.Printf("redis bus subscription closed: channel=%s", channel)
					return
				}
				handler(ctx, msg.Channel, []byte(msg.Payload))
			}
		}
	}()
	b.logger.Printf("redis bus subscribed: channel=%s", channel)
	return nil
}
