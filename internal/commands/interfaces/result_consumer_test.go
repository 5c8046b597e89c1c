package interfaces

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"control-cloud/internal/bus"
	commandsapp "control-cloud/internal/commands/application"
	"control-cloud/internal/commands/application/events"
	commands "control-cloud/internal/commands/domain"
	"control-cloud/internal/commands/infrastructure/memory"
	telemetry "control-cloud/internal/telemetry/domain"
)

type recordingHandler struct {
	mu      sync.Mutex
	results []events.ExecutionResult
}

func (h *recordingHandler) HandleExecutionResult(ctx context.Context, result events.ExecutionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
}

type staticValues struct {
	value string
}

func (s staticValues) ReadCurrentValue(ctx context.Context, pointID string) (telemetry.CurrentValue, bool, error) {
	return telemetry.CurrentValue{PointID: pointID, Value: s.value, Quality: telemetry.QualityGood}, true, nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestResultConsumer_DecodesAndDrops(t *testing.T) {
	memBus := bus.NewInMemoryBus()
	handler := &recordingHandler{}
	consumer, err := NewResultConsumer(memBus, handler, "", quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, consumer.Start(ctx))
	assert.Error(t, consumer.Start(ctx))

	_, err = memBus.Publish(ctx, DefaultResultChannel, []byte(`{"request_id":"R","success":true,"is_async":false,"duration_ms":12}`))
	require.NoError(t, err)
	_, err = memBus.Publish(ctx, DefaultResultChannel, []byte(`{"success":true}`))
	require.NoError(t, err)
	_, err = memBus.Publish(ctx, DefaultResultChannel, []byte(`garbage`))
	require.NoError(t, err)

	require.Len(t, handler.results, 1)
	assert.Equal(t, events.ExecutionResult{RequestID: "R", Success: true, DurationMS: 12}, handler.results[0])
}

func TestNewResultConsumer_Validates(t *testing.T) {
	_, err := NewResultConsumer(nil, &recordingHandler{}, "", nil)
	assert.Error(t, err)
	_, err = NewResultConsumer(bus.NewInMemoryBus(), nil, "", nil)
	assert.Error(t, err)
}

// A write travels to a simulated collector, the result comes back over the
// bus and the read-back confirms the requested value.
func TestEndToEnd_WriteExecutedAndVerified(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	memBus := bus.NewInMemoryBus()
	store := memory.NewCommandRepository()
	tracker, err := commandsapp.NewTracker(store, staticValues{value: "1"}, nil, quietLogger(),
		commandsapp.WithVerifyDelay(10*time.Millisecond),
		commandsapp.WithDeliveryTimeout(time.Minute),
	)
	require.NoError(t, err)
	defer tracker.Close()

	consumer, err := NewResultConsumer(memBus, tracker, "", quietLogger())
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))

	require.NoError(t, memBus.Subscribe(ctx, "cmd:collector:7", func(ctx context.Context, channel string, payload []byte) {
		var req events.ControlRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return
		}
		result, _ := json.Marshal(events.ExecutionResult{RequestID: req.RequestID, Success: true, DurationMS: 40, PointID: req.PointID})
		_, _ = memBus.Publish(ctx, DefaultResultChannel, result)
	}))

	svc, err := commandsapp.NewService(tracker, memBus, "", quietLogger())
	require.NoError(t, err)

	resp, err := svc.IssueWrite(ctx, commandsapp.WriteRequest{
		RequestID:   "R",
		CollectorID: "7",
		DeviceID:    "D1",
		PointID:     "P",
		Value:       "1",
	})
	require.NoError(t, err)
	assert.Equal(t, "R", resp.RequestID)
	assert.Equal(t, 1, resp.SubscriberCount)

	assert.Eventually(t, func() bool {
		rec, err := store.GetByID(ctx, "R")
		return err == nil && rec != nil &&
			rec.DeliveryStatus == commands.DeliveryDelivered &&
			rec.FinalStatus == commands.FinalSuccess
	}, 2*time.Second, 5*time.Millisecond)

	rec, err := store.GetByID(ctx, "R")
	require.NoError(t, err)
	assert.Equal(t, commands.ExecutionProtocolSuccess, rec.ExecutionResult)
	assert.Equal(t, commands.VerificationVerified, rec.VerificationResult)
	assert.Equal(t, "1", rec.VerifiedValue)
	assert.Equal(t, int64(40), rec.DurationMS)
	assert.Equal(t, 0, tracker.Timers().Len())
}
