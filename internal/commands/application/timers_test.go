package application

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerRegistry_FireRemovesEntry(t *testing.T) {
	sched := newManualScheduler(testNow)
	registry := NewTimerRegistry(sched)

	fired := 0
	registry.Arm("r-1", TimerDeliveryTimeout, 30*time.Second, func() { fired++ })
	assert.Equal(t, 1, registry.Pending("r-1"))
	assert.Equal(t, 1, registry.Len())

	sched.Advance(29 * time.Second)
	assert.Equal(t, 0, fired)

	sched.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, registry.Pending("r-1"))
	assert.False(t, registry.Cancel("r-1", TimerDeliveryTimeout))
}

func TestTimerRegistry_CancelPreventsFire(t *testing.T) {
	sched := newManualScheduler(testNow)
	registry := NewTimerRegistry(sched)

	fired := 0
	registry.Arm("r-1", TimerDeliveryTimeout, 30*time.Second, func() { fired++ })
	assert.True(t, registry.Cancel("r-1", TimerDeliveryTimeout))
	assert.False(t, registry.Cancel("r-1", TimerDeliveryTimeout))

	sched.Advance(time.Minute)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 0, registry.Len())
}

func TestTimerRegistry_RearmReplaces(t *testing.T) {
	sched := newManualScheduler(testNow)
	registry := NewTimerRegistry(sched)

	var calls []string
	registry.Arm("r-1", TimerDeliveryTimeout, 10*time.Second, func() { calls = append(calls, "first") })
	registry.Arm("r-1", TimerDeliveryTimeout, 20*time.Second, func() { calls = append(calls, "second") })
	assert.Equal(t, 1, registry.Len())

	sched.Advance(time.Minute)
	assert.Equal(t, []string{"second"}, calls)
}

func TestTimerRegistry_StaleCallbackDoesNotRun(t *testing.T) {
	sched := newManualScheduler(testNow)
	registry := NewTimerRegistry(sched)

	// Captures the first timer's callback so it can be run after a re-arm,
	// as a real timer would when Stop loses the race.
	var stale func()
	capture := &capturingScheduler{inner: sched, capture: func(f func()) { stale = f }}
	registry.scheduler = capture

	ran := 0
	registry.Arm("r-1", TimerDeliveryTimeout, time.Second, func() { ran++ })
	registry.scheduler = sched
	registry.Arm("r-1", TimerDeliveryTimeout, time.Hour, func() {})

	require.NotNil(t, stale)
	stale()
	assert.Equal(t, 0, ran)
	assert.Equal(t, 1, registry.Pending("r-1"))
}

func TestTimerRegistry_Close(t *testing.T) {
	sched := newManualScheduler(testNow)
	registry := NewTimerRegistry(sched)

	fired := 0
	registry.Arm("r-1", TimerDeliveryTimeout, time.Second, func() { fired++ })
	registry.Arm("r-2", TimerDeliveryTimeout, time.Second, func() { fired++ })
	registry.Close()
	registry.Arm("r-3", TimerDeliveryTimeout, time.Second, func() { fired++ })

	sched.Advance(time.Minute)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 0, registry.Len())
}

func TestTimerRegistry_FireCancelRaceExactlyOnce(t *testing.T) {
	for i := 0; i < 200; i++ {
		registry := NewTimerRegistry(nil)
		var fired, cancelled int32
		registry.Arm("r-1", TimerDeliveryTimeout, time.Microsecond, func() { atomic.AddInt32(&fired, 1) })

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if registry.Cancel("r-1", TimerDeliveryTimeout) {
				atomic.AddInt32(&cancelled, 1)
			}
		}()
		wg.Wait()
		time.Sleep(time.Millisecond)
		assert.Eventually(t, func() bool {
			return atomic.LoadInt32(&fired)+atomic.LoadInt32(&cancelled) == 1
		}, time.Second, time.Millisecond)
		assert.Equal(t, 0, registry.Len())
	}
}

type capturingScheduler struct {
	inner   Scheduler
	capture func(func())
}

func (s *capturingScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.capture(f)
	return s.inner.AfterFunc(d, f)
}
