package commands

import "time"

// NoCollectorError is recorded when a publish reached no subscriber.
const NoCollectorError = "no collector subscribed"

// DeliveryPatch computes the update for a publish that reached
// subscriberCount collectors. With no subscriber the record is finalized,
// unless an execution result was already recorded.
func DeliveryPatch(subscriberCount int, at time.Time) StatusPatch {
	if subscriberCount < 0 {
		subscriberCount = 0
	}
	count := subscriberCount
	if count == 0 {
		return StatusPatch{
			Guard:              GuardExecutionPending,
			DeliveryStatus:     DeliveryNoCollector,
			ExecutionResult:    ExecutionProtocolFailure,
			VerificationResult: VerificationSkipped,
			FinalStatus:        FinalFailure,
			SubscriberCount:    &count,
			ExecutionError:     NoCollectorError,
		}
	}
	return StatusPatch{
		DeliveryStatus:  DeliveryDelivered,
		DeliveredAt:     at.UTC(),
		SubscriberCount: &count,
	}
}

// ClassifyExecution maps a collector report onto the execution lattice.
func ClassifyExecution(success, isAsync bool) ExecutionResult {
	switch {
	case isAsync:
		return ExecutionProtocolAsync
	case success:
		return ExecutionProtocolSuccess
	default:
		return ExecutionProtocolFailure
	}
}

// ExecutionPatch computes the update for an execution result. It applies
// only while the execution result is still pending.
func ExecutionPatch(success, isAsync bool, errMsg string, durationMS int64, at time.Time) StatusPatch {
	result := ClassifyExecution(success, isAsync)
	patch := StatusPatch{
		Guard:           GuardExecutionPending,
		ExecutionResult: result,
		ExecutedAt:      at.UTC(),
		DurationMS:      &durationMS,
		ExecutionError:  errMsg,
	}
	switch result {
	case ExecutionProtocolAsync:
		patch.FinalStatus = FinalPartial
		patch.VerificationResult = VerificationSkipped
	case ExecutionProtocolSuccess:
		patch.FinalStatus = FinalPending
		patch.VerificationResult = VerificationPending
	default:
		patch.FinalStatus = FinalFailure
		patch.VerificationResult = VerificationSkipped
	}
	return patch
}

// ExecutionAnnotation records a late execution report on a record whose
// execution was already resolved, without touching the status vector.
func ExecutionAnnotation(errMsg string, durationMS int64, at time.Time) StatusPatch {
	return StatusPatch{
		Guard:          GuardNotExecuted,
		ExecutedAt:     at.UTC(),
		DurationMS:     &durationMS,
		ExecutionError: errMsg,
	}
}

// NeedsVerification reports whether an execution result schedules a
// value read-back.
func NeedsVerification(result ExecutionResult) bool {
	return result == ExecutionProtocolSuccess
}

// NeedsAlarmMatch reports whether an execution result schedules alarm
// correlation.
func NeedsAlarmMatch(result ExecutionResult) bool {
	return result == ExecutionProtocolSuccess || result == ExecutionProtocolAsync
}

// VerificationPatch computes the update for a value read-back. It applies
// only while the final status is pending.
func VerificationPatch(verified bool, value string, at time.Time) StatusPatch {
	patch := StatusPatch{
		Guard:              GuardFinalPending,
		VerificationResult: VerificationUnverified,
		FinalStatus:        FinalPartial,
		VerifiedValue:      &value,
		VerifiedAt:         at.UTC(),
	}
	if verified {
		patch.VerificationResult = VerificationVerified
		patch.FinalStatus = FinalSuccess
	}
	return patch
}

// VerificationAnnotation keeps the read-back value on a record that already
// reached a terminal state.
func VerificationAnnotation(value string, at time.Time) StatusPatch {
	return StatusPatch{
		VerifiedValue: &value,
		VerifiedAt:    at.UTC(),
	}
}

// AlarmPatch links an alarm occurrence. Alarm correlation never changes the
// final status.
func AlarmPatch(alarmID string, at time.Time) StatusPatch {
	return StatusPatch{
		LinkedAlarmID:  alarmID,
		AlarmMatchedAt: at.UTC(),
	}
}

// TimeoutPatch finalizes a delivered command that never reported back.
func TimeoutPatch() StatusPatch {
	return StatusPatch{
		Guard:              GuardExecutionPending,
		ExecutionResult:    ExecutionTimeout,
		VerificationResult: VerificationSkipped,
		FinalStatus:        FinalTimeout,
	}
}
