package http

import (
	"time"

	commandsapp "control-cloud/internal/commands/application"
	commands "control-cloud/internal/commands/domain"
)

// CommandView is the JSON form of a command record. Unresolved timestamps
// are null.
type CommandView struct {
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

	DeliveryStatus     commands.DeliveryStatus     `json:"delivery_status"`
	ExecutionResult    commands.ExecutionResult    `json:"execution_result"`
	VerificationResult commands.VerificationResult `json:"verification_result"`
	FinalStatus        commands.FinalStatus        `json:"final_status"`

	SubscriberCount int        `json:"subscriber_count"`
	RequestedAt     time.Time  `json:"requested_at"`
	DeliveredAt     *time.Time `json:"delivered_at"`
	ExecutedAt      *time.Time `json:"executed_at"`
	DurationMS      *int64     `json:"duration_ms"`
	ExecutionError  string     `json:"execution_error,omitempty"`
	VerifiedValue   string     `json:"verified_value,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at"`
	LinkedAlarmID   string     `json:"linked_alarm_id,omitempty"`
	AlarmMatchedAt  *time.Time `json:"alarm_matched_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ListView is one page of command views.
type ListView struct {
	Rows  []CommandView `json:"rows"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// NewCommandView converts a record.
func NewCommandView(rec commands.CommandRecord) CommandView {
	view := CommandView{
		RequestID:          rec.RequestID,
		TenantID:           rec.TenantID,
		SiteID:             rec.SiteID,
		UserID:             rec.UserID,
		Username:           rec.Username,
		DeviceID:           rec.DeviceID,
		DeviceName:         rec.DeviceName,
		ProtocolType:       rec.ProtocolType,
		PointID:            rec.PointID,
		PointName:          rec.PointName,
		Address:            rec.Address,
		CollectorID:        rec.CollectorID,
		OldValue:           rec.OldValue,
		RequestedValue:     rec.RequestedValue,
		DeliveryStatus:     rec.DeliveryStatus,
		ExecutionResult:    rec.ExecutionResult,
		VerificationResult: rec.VerificationResult,
		FinalStatus:        rec.FinalStatus,
		SubscriberCount:    rec.SubscriberCount,
		RequestedAt:        rec.RequestedAt,
		DeliveredAt:        optionalTime(rec.DeliveredAt),
		ExecutedAt:         optionalTime(rec.ExecutedAt),
		ExecutionError:     rec.ExecutionError,
		VerifiedValue:      rec.VerifiedValue,
		VerifiedAt:         optionalTime(rec.VerifiedAt),
		LinkedAlarmID:      rec.LinkedAlarmID,
		AlarmMatchedAt:     optionalTime(rec.AlarmMatchedAt),
		UpdatedAt:          rec.UpdatedAt,
	}
	if !rec.ExecutedAt.IsZero() {
		duration := rec.DurationMS
		view.DurationMS = &duration
	}
	return view
}

// NewListView converts a query page.
func NewListView(result commandsapp.ListResult) ListView {
	rows := make([]CommandView, 0, len(result.Rows))
	for _, rec := range result.Rows {
		rows = append(rows, NewCommandView(rec))
	}
	return ListView{Rows: rows, Total: result.Total, Page: result.Page, Limit: result.Limit}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
