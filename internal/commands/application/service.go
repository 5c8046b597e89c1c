package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"control-cloud/internal/bus"
	"control-cloud/internal/commands/application/events"
	commands "control-cloud/internal/commands/domain"
)

// DefaultCommandChannelPrefix addresses a collector by id.
const DefaultCommandChannelPrefix = "cmd:collector:"

// WriteRequest is a validated point write from an upstream caller.
type WriteRequest struct {
	RequestID    string `json:"request_id,omitempty"`
	TenantID     string `json:"tenant_id"`
	SiteID       string `json:"site_id"`
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	CollectorID  string `json:"collector_id"`
	DeviceID     string `json:"device_id"`
	DeviceName   string `json:"device_name"`
	ProtocolType string `json:"protocol_type"`
	PointID      string `json:"point_id"`
	PointName    string `json:"point_name"`
	Address      string `json:"address"`
	OldValue     string `json:"old_value,omitempty"`
	Value        string `json:"value"`
}

// WriteResponse reports what was published.
type WriteResponse struct {
	RequestID       string    `json:"request_id"`
	Channel         string    `json:"channel"`
	SubscriberCount int       `json:"subscriber_count"`
	RequestedAt     time.Time `json:"requested_at"`
}

// Service publishes write commands to collectors and hands tracking to the
// Tracker.
type Service struct {
	tracker   *Tracker
	publisher bus.Publisher
	prefix    string
	logger    *log.Logger

	// record runs delivery bookkeeping off the publish path.
	record func(func())
}

// NewService constructs a command service.
func NewService(tracker *Tracker, publisher bus.Publisher, channelPrefix string, logger *log.Logger) (*Service, error) {
	if tracker == nil {
		return nil, errors.New("commands: nil tracker")
	}
	if publisher == nil {
		return nil, errors.New("commands: nil publisher")
	}
	if channelPrefix == "" {
		channelPrefix = DefaultCommandChannelPrefix
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		tracker:   tracker,
		publisher: publisher,
		prefix:    channelPrefix,
		logger:    logger,
		record:    func(f func()) { go f() },
	}, nil
}

// IssueWrite records the command, publishes it on the collector channel and
// records the delivery outcome asynchronously. Only validation and publish
// errors are returned; tracking failures are logged.
func (s *Service) IssueWrite(ctx context.Context, req WriteRequest) (*WriteResponse, error) {
	if err := validateWrite(req); err != nil {
		return nil, err
	}

	rec := &commands.CommandRecord{
		RequestID:      req.RequestID,
		TenantID:       req.TenantID,
		SiteID:         req.SiteID,
		UserID:         req.UserID,
		Username:       req.Username,
		DeviceID:       req.DeviceID,
		DeviceName:     req.DeviceName,
		ProtocolType:   req.ProtocolType,
		PointID:        req.PointID,
		PointName:      req.PointName,
		Address:        req.Address,
		CollectorID:    req.CollectorID,
		OldValue:       req.OldValue,
		RequestedValue: req.Value,
	}
	requestID, err := s.tracker.CreateCommand(ctx, rec)
	if err != nil {
		return nil, err
	}

	payload, err := events.ControlRequest{
		Command:   events.CommandWrite,
		DeviceID:  req.DeviceID,
		PointID:   req.PointID,
		Value:     req.Value,
		RequestID: requestID,
	}.Encode()
	if err != nil {
		return nil, err
	}

	channel := s.prefix + req.CollectorID
	count, err := s.publisher.Publish(ctx, channel, payload)
	if err != nil {
		s.logger.Printf("commands publish failed: request_id=%s channel=%s err=%v", requestID, channel, err)
		return nil, fmt.Errorf("commands: publish %s: %w", channel, err)
	}

	trackCtx := context.WithoutCancel(ctx)
	s.record(func() {
		s.tracker.RecordDeliveryOutcome(trackCtx, requestID, count)
	})

	return &WriteResponse{
		RequestID:       requestID,
		Channel:         channel,
		SubscriberCount: count,
		RequestedAt:     rec.RequestedAt,
	}, nil
}

func validateWrite(req WriteRequest) error {
	if strings.TrimSpace(req.CollectorID) == "" {
		return fmt.Errorf("%w: collector_id required", commands.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		return fmt.Errorf("%w: device_id required", commands.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.PointID) == "" {
		return fmt.Errorf("%w: point_id required", commands.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Value) == "" {
		return fmt.Errorf("%w: value required", commands.ErrInvalidRequest)
	}
	return nil
}
