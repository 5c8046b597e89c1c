package interfaces

import (
	"context"
	"errors"
	"log"
	"sync"

	"control-cloud/internal/bus"
	"control-cloud/internal/commands/application/events"
	"control-cloud/internal/observability/metrics"
)

// DefaultResultChannel is where collectors publish execution results.
const DefaultResultChannel = "control:result"

const (
	dropReasonDecode    = "decode"
	dropReasonRequestID = "missing_request_id"
)

// ResultHandler applies a decoded execution result.
type ResultHandler interface {
	HandleExecutionResult(ctx context.Context, result events.ExecutionResult)
}

// ResultConsumer decodes collector results and hands them to the tracker.
// Undecodable messages are dropped.
type ResultConsumer struct {
	subscriber bus.Subscriber
	handler    ResultHandler
	channel    string
	logger     *log.Logger

	startOnce sync.Once
}

// NewResultConsumer constructs a consumer.
func NewResultConsumer(subscriber bus.Subscriber, handler ResultHandler, channel string, logger *log.Logger) (*ResultConsumer, error) {
	if subscriber == nil || handler == nil {
		return nil, errors.New("result consumer: nil dependency")
	}
	if channel == "" {
		channel = DefaultResultChannel
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ResultConsumer{subscriber: subscriber, handler: handler, channel: channel, logger: logger}, nil
}

// Start subscribes to the result channel. Messages are consumed until ctx
// is done. Calling Start twice is an error.
func (c *ResultConsumer) Start(ctx context.Context) error {
	err := errors.New("result consumer: already started")
	c.startOnce.Do(func() {
		err = c.subscriber.Subscribe(ctx, c.channel, c.Handle)
	})
	if err != nil {
		return err
	}
	c.logger.Printf("result consumer started: channel=%s", c.channel)
	return nil
}

// Handle processes one raw result message.
func (c *ResultConsumer) Handle(ctx context.Context, channel string, payload []byte) {
	result, err := events.DecodeExecutionResult(payload)
	if err != nil {
		reason := dropReasonDecode
		if errors.Is(err, events.ErrMissingRequestID) {
			reason = dropReasonRequestID
		}
		metrics.IncResultDropped(reason)
		c.logger.Printf("result consumer dropped: channel=%s reason=%s err=%v", channel, reason, err)
		return
	}
	c.handler.HandleExecutionResult(ctx, result)
}
