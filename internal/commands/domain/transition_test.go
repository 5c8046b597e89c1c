package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func TestDeliveryPatch_NoCollectorFinalizes(t *testing.T) {
	rec := NewRecord("req-1", testNow)
	patch := DeliveryPatch(0, testNow)

	require.True(t, patch.Allows(rec))
	patch.ApplyTo(&rec)

	assert.Equal(t, DeliveryNoCollector, rec.DeliveryStatus)
	assert.Equal(t, ExecutionProtocolFailure, rec.ExecutionResult)
	assert.Equal(t, VerificationSkipped, rec.VerificationResult)
	assert.Equal(t, FinalFailure, rec.FinalStatus)
	assert.Equal(t, NoCollectorError, rec.ExecutionError)
	assert.Equal(t, 0, rec.SubscriberCount)
	assert.True(t, rec.DeliveredAt.IsZero())
}

func TestDeliveryPatch_NoCollectorKeepsRecordedExecution(t *testing.T) {
	rec := NewRecord("req-1", testNow)
	ExecutionPatch(true, false, "", 40, testNow).ApplyTo(&rec)
	require.Equal(t, FinalPending, rec.FinalStatus)

	assert.False(t, DeliveryPatch(0, testNow.Add(time.Second)).Allows(rec))
}

func TestDeliveryPatch_Delivered(t *testing.T) {
	rec := NewRecord("req-1", testNow)
	DeliveryPatch(3, testNow.Add(time.Second)).ApplyTo(&rec)

	assert.Equal(t, DeliveryDelivered, rec.DeliveryStatus)
	assert.Equal(t, 3, rec.SubscriberCount)
	assert.Equal(t, testNow.Add(time.Second), rec.DeliveredAt)
	assert.Equal(t, ExecutionPending, rec.ExecutionResult)
	assert.Equal(t, FinalPending, rec.FinalStatus)
}

func TestExecutionPatch_Table(t *testing.T) {
	cases := []struct {
		name         string
		success      bool
		async        bool
		execution    ExecutionResult
		final        FinalStatus
		verification VerificationResult
		verify       bool
		alarm        bool
	}{
		{"sync success", true, false, ExecutionProtocolSuccess, FinalPending, VerificationPending, true, true},
		{"sync failure", false, false, ExecutionProtocolFailure, FinalFailure, VerificationSkipped, false, false},
		{"async accepted", true, true, ExecutionProtocolAsync, FinalPartial, VerificationSkipped, false, true},
		{"async wins over failure flag", false, true, ExecutionProtocolAsync, FinalPartial, VerificationSkipped, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := NewRecord("req-1", testNow)
			patch := ExecutionPatch(tc.success, tc.async, "", 42, testNow)
			require.True(t, patch.Allows(rec))
			patch.ApplyTo(&rec)

			assert.Equal(t, tc.execution, rec.ExecutionResult)
			assert.Equal(t, tc.final, rec.FinalStatus)
			assert.Equal(t, tc.verification, rec.VerificationResult)
			assert.Equal(t, int64(42), rec.DurationMS)
			assert.Equal(t, testNow, rec.ExecutedAt)
			assert.Equal(t, tc.verify, NeedsVerification(rec.ExecutionResult))
			assert.Equal(t, tc.alarm, NeedsAlarmMatch(rec.ExecutionResult))
		})
	}
}

func TestExecutionPatch_RejectedAfterTimeout(t *testing.T) {
	rec := NewRecord("req-1", testNow)
	TimeoutPatch().ApplyTo(&rec)

	patch := ExecutionPatch(true, false, "", 10, testNow)
	assert.False(t, patch.Allows(rec))

	annotation := ExecutionAnnotation("late", 10, testNow)
	require.True(t, annotation.Allows(rec))
	annotation.ApplyTo(&rec)
	assert.Equal(t, FinalTimeout, rec.FinalStatus)
	assert.Equal(t, ExecutionTimeout, rec.ExecutionResult)
	assert.Equal(t, "late", rec.ExecutionError)
	assert.False(t, ExecutionAnnotation("again", 11, testNow).Allows(rec))
}

func TestVerificationPatch(t *testing.T) {
	rec := NewRecord("req-1", testNow)
	ExecutionPatch(true, false, "", 5, testNow).ApplyTo(&rec)

	verified := VerificationPatch(true, "1", testNow.Add(20*time.Second))
	require.True(t, verified.Allows(rec))
	verified.ApplyTo(&rec)
	assert.Equal(t, VerificationVerified, rec.VerificationResult)
	assert.Equal(t, FinalSuccess, rec.FinalStatus)
	assert.Equal(t, "1", rec.VerifiedValue)

	again := VerificationPatch(false, "2", testNow.Add(30*time.Second))
	assert.False(t, again.Allows(rec), "terminal status must not be overwritten")
}

func TestVerificationPatch_Unverified(t *testing.T) {
	rec := NewRecord("req-1", testNow)
	ExecutionPatch(true, false, "", 5, testNow).ApplyTo(&rec)
	VerificationPatch(false, "7", testNow).ApplyTo(&rec)

	assert.Equal(t, VerificationUnverified, rec.VerificationResult)
	assert.Equal(t, FinalPartial, rec.FinalStatus)
	assert.Equal(t, "7", rec.VerifiedValue)
}

func TestTimeoutPatch_NoOpWhenExecuted(t *testing.T) {
	rec := NewRecord("req-1", testNow)
	ExecutionPatch(false, false, "write failed", 5, testNow).ApplyTo(&rec)
	assert.False(t, TimeoutPatch().Allows(rec))

	fresh := NewRecord("req-2", testNow)
	require.True(t, TimeoutPatch().Allows(fresh))
	TimeoutPatch().ApplyTo(&fresh)
	assert.Equal(t, ExecutionTimeout, fresh.ExecutionResult)
	assert.Equal(t, FinalTimeout, fresh.FinalStatus)
	assert.Equal(t, VerificationSkipped, fresh.VerificationResult)
}

func TestAlarmPatch_LeavesFinalStatus(t *testing.T) {
	rec := NewRecord("req-1", testNow)
	TimeoutPatch().ApplyTo(&rec)
	AlarmPatch("alarm-9", testNow).ApplyTo(&rec)

	assert.Equal(t, "alarm-9", rec.LinkedAlarmID)
	assert.Equal(t, FinalTimeout, rec.FinalStatus)
}

func TestStatusPatch_IsEmpty(t *testing.T) {
	assert.True(t, StatusPatch{Guard: GuardFinalPending}.IsEmpty())
	assert.False(t, TimeoutPatch().IsEmpty())
	zero := 0
	assert.False(t, StatusPatch{SubscriberCount: &zero}.IsEmpty())
}

func TestFinalStatus_IsTerminal(t *testing.T) {
	assert.False(t, FinalPending.IsTerminal())
	for _, s := range []FinalStatus{FinalSuccess, FinalFailure, FinalPartial, FinalTimeout} {
		assert.True(t, s.IsTerminal(), s)
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, FinalStatus("bogus").Valid())
}
