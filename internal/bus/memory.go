package bus

import (
	"context"
	"sync"
)

// InMemoryBus is a minimal in-process pub/sub bus. Publish dispatches
// synchronously on the caller's goroutine.
type InMemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

// NewInMemoryBus constructs a new in-memory bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string]map[int]Handler),
	}
}

// Publish dispatches the payload to every handler of the channel and returns
// how many handlers received it.
func (b *InMemoryBus) Publish(ctx context.Context, channel string, payload []byte) (int, error) {
	if channel == "" {
		return 0, ErrEmptyChannel
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[channel]))
	for _, handler := range b.handlers[channel] {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, channel, append([]byte(nil), payload...))
	}
	return len(handlers), nil
}

// Subscribe registers a handler for a channel. The handler is removed when
// ctx is done.
func (b *InMemoryBus) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if channel == "" {
		return ErrEmptyChannel
	}
	if handler == nil {
		return ErrNilHandler
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.handlers[channel] == nil {
		b.handlers[channel] = make(map[int]Handler)
	}
	b.handlers[channel][id] = handler
	b.mu.Unlock()

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			b.remove(channel, id)
		}()
	}
	return nil
}

// Subscribers returns the number of handlers on a channel.
func (b *InMemoryBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[channel])
}

func (b *InMemoryBus) remove(channel string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers[channel], id)
	if len(b.handlers[channel]) == 0 {
		delete(b.handlers, channel)
	}
}
