package bus

import (
	"context"
	"errors"
)

// Handler receives a raw message delivered on a channel.
type Handler func(ctx context.Context, channel string, payload []byte)

// Publisher publishes raw payloads to a channel.
type Publisher interface {
	// Publish returns the number of subscribers that received the message.
	Publish(ctx context.Context, channel string, payload []byte) (int, error)
}

// Subscriber registers handlers for a channel until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler Handler) error
}

// ErrEmptyChannel is returned when a channel name is missing.
var ErrEmptyChannel = errors.New("bus: empty channel")

// ErrNilHandler is returned when subscribing a nil handler.
var ErrNilHandler = errors.New("bus: nil handler")
