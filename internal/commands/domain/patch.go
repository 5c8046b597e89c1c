package commands

import "time"

// Guard restricts a patch to records still in a given state.
type Guard int

const (
	GuardNone Guard = iota
	// GuardExecutionPending applies only while execution_result is pending.
	GuardExecutionPending
	// GuardFinalPending applies only while final_status is pending.
	GuardFinalPending
	// GuardNotExecuted applies only while executed_at is unset.
	GuardNotExecuted
)

// StatusPatch is a partial update of a command record. Zero-valued fields
// are left untouched.
type StatusPatch struct {
	Guard Guard

	DeliveryStatus     DeliveryStatus
	ExecutionResult    ExecutionResult
	VerificationResult VerificationResult
	FinalStatus        FinalStatus

	SubscriberCount *int
	DeliveredAt     time.Time
	ExecutedAt      time.Time
	DurationMS      *int64
	ExecutionError  string
	VerifiedValue   *string
	VerifiedAt      time.Time
	LinkedAlarmID   string
	AlarmMatchedAt  time.Time
}

// IsEmpty reports whether the patch writes nothing.
func (p StatusPatch) IsEmpty() bool {
	return p.DeliveryStatus == "" &&
		p.ExecutionResult == "" &&
		p.VerificationResult == "" &&
		p.FinalStatus == "" &&
		p.SubscriberCount == nil &&
		p.DeliveredAt.IsZero() &&
		p.ExecutedAt.IsZero() &&
		p.DurationMS == nil &&
		p.ExecutionError == "" &&
		p.VerifiedValue == nil &&
		p.VerifiedAt.IsZero() &&
		p.LinkedAlarmID == "" &&
		p.AlarmMatchedAt.IsZero()
}

// Allows reports whether the guard admits the patch for rec.
func (p StatusPatch) Allows(rec CommandRecord) bool {
	switch p.Guard {
	case GuardExecutionPending:
		return rec.ExecutionResult == ExecutionPending
	case GuardFinalPending:
		return rec.FinalStatus == FinalPending
	case GuardNotExecuted:
		return rec.ExecutedAt.IsZero()
	}
	return true
}

// ApplyTo merges the patch into rec without checking the guard.
func (p StatusPatch) ApplyTo(rec *CommandRecord) {
	if rec == nil {
		return
	}
	if p.DeliveryStatus != "" {
		rec.DeliveryStatus = p.DeliveryStatus
	}
	if p.ExecutionResult != "" {
		rec.ExecutionResult = p.ExecutionResult
	}
	if p.VerificationResult != "" {
		rec.VerificationResult = p.VerificationResult
	}
	if p.FinalStatus != "" {
		rec.FinalStatus = p.FinalStatus
	}
	if p.SubscriberCount != nil {
		rec.SubscriberCount = *p.SubscriberCount
	}
	if !p.DeliveredAt.IsZero() {
		rec.DeliveredAt = p.DeliveredAt.UTC()
	}
	if !p.ExecutedAt.IsZero() {
		rec.ExecutedAt = p.ExecutedAt.UTC()
	}
	if p.DurationMS != nil {
		rec.DurationMS = *p.DurationMS
	}
	if p.ExecutionError != "" {
		rec.ExecutionError = p.ExecutionError
	}
	if p.VerifiedValue != nil {
		rec.VerifiedValue = *p.VerifiedValue
	}
	if !p.VerifiedAt.IsZero() {
		rec.VerifiedAt = p.VerifiedAt.UTC()
	}
	if p.LinkedAlarmID != "" {
		rec.LinkedAlarmID = p.LinkedAlarmID
	}
	if !p.AlarmMatchedAt.IsZero() {
		rec.AlarmMatchedAt = p.AlarmMatchedAt.UTC()
	}
}
