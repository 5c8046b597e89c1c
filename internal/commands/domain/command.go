package commands

import (
	"errors"
	"time"
)

// DeliveryStatus tracks whether a collector received the command.
type DeliveryStatus string

const (
	DeliveryPending     DeliveryStatus = "pending"
	DeliveryDelivered   DeliveryStatus = "delivered"
	DeliveryNoCollector DeliveryStatus = "no_collector"
)

// ExecutionResult is the collector's report on the protocol write.
type ExecutionResult string

const (
	ExecutionPending         ExecutionResult = "pending"
	ExecutionProtocolSuccess ExecutionResult = "protocol_success"
	ExecutionProtocolFailure ExecutionResult = "protocol_failure"
	ExecutionProtocolAsync   ExecutionResult = "protocol_async"
	ExecutionTimeout         ExecutionResult = "timeout"
)

// VerificationResult is the outcome of reading the point back.
type VerificationResult string

const (
	VerificationPending    VerificationResult = "pending"
	VerificationVerified   VerificationResult = "verified"
	VerificationUnverified VerificationResult = "unverified"
	VerificationSkipped    VerificationResult = "skipped"
)

// FinalStatus summarizes the command. Every value except pending is terminal.
type FinalStatus string

const (
	FinalPending FinalStatus = "pending"
	FinalSuccess FinalStatus = "success"
	FinalFailure FinalStatus = "failure"
	FinalPartial FinalStatus = "partial"
	FinalTimeout FinalStatus = "timeout"
)

// IsTerminal reports whether the status can no longer change.
func (s FinalStatus) IsTerminal() bool {
	return s != "" && s != FinalPending
}

// Valid reports whether s is a known final status.
func (s FinalStatus) Valid() bool {
	switch s {
	case FinalPending, FinalSuccess, FinalFailure, FinalPartial, FinalTimeout:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a command record does not exist.
	ErrNotFound = errors.New("commands: not found")
	// ErrInvalidRequest is returned for malformed write requests.
	ErrInvalidRequest = errors.New("commands: invalid request")
)

// CommandRecord is the audit row tracking one control write.
type CommandRecord struct {
	RequestID string `json:"request_id"`

	TenantID string `json:"tenant_id"`
	SiteID   string `json:"site_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`

	DeviceID     string `json:"device_id"`
	DeviceName   string `json:"device_name"`
	ProtocolType string `json:"protocol_type"`
	PointID      string `json:"point_id"`
	PointName    string `json:"point_name"`
	Address      string `json:"address"`
	CollectorID  string `json:"collector_id"`

	OldValue       string `json:"old_value,omitempty"`
	RequestedValue string `json:"requested_value"`

	DeliveryStatus     DeliveryStatus     `json:"delivery_status"`
	ExecutionResult    ExecutionResult    `json:"execution_result"`
	VerificationResult VerificationResult `json:"verification_result"`
	FinalStatus        FinalStatus        `json:"final_status"`

	SubscriberCount int       `json:"subscriber_count"`
	RequestedAt     time.Time `json:"requested_at"`
	DeliveredAt     time.Time `json:"delivered_at"`
	ExecutedAt      time.Time `json:"executed_at"`
	DurationMS      int64     `json:"duration_ms"`
	ExecutionError  string    `json:"execution_error,omitempty"`
	VerifiedValue   string    `json:"verified_value,omitempty"`
	VerifiedAt      time.Time `json:"verified_at"`
	LinkedAlarmID   string    `json:"linked_alarm_id,omitempty"`
	AlarmMatchedAt  time.Time `json:"alarm_matched_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewRecord returns a record with every status field pending.
func NewRecord(requestID string, requestedAt time.Time) CommandRecord {
	return CommandRecord{
		RequestID:          requestID,
		DeliveryStatus:     DeliveryPending,
		ExecutionResult:    ExecutionPending,
		VerificationResult: VerificationPending,
		FinalStatus:        FinalPending,
		RequestedAt:        requestedAt.UTC(),
		UpdatedAt:          requestedAt.UTC(),
	}
}
