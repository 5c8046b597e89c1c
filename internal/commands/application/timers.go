package application

import (
	"sync"
	"time"

	"control-cloud/internal/observability/metrics"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// TimerKind names the purpose of a registered timer.
type TimerKind string

// TimerDeliveryTimeout fires when no execution result arrives in time.
const TimerDeliveryTimeout TimerKind = "delivery_timeout"

type timerKey struct {
	requestID string
	kind      TimerKind
}

type pendingTimer struct {
	timer Timer
}

// TimerRegistry tracks cancellable per-command timers. Each entry is removed
// exactly once, by whichever of fire or Cancel takes it from the map first.
type TimerRegistry struct {
	scheduler Scheduler

	mu     sync.Mutex
	timers map[timerKey]*pendingTimer
	closed bool
}

// NewTimerRegistry constructs a registry. A nil scheduler uses time.AfterFunc.
func NewTimerRegistry(scheduler Scheduler) *TimerRegistry {
	if scheduler == nil {
		scheduler = systemScheduler{}
	}
	return &TimerRegistry{
		scheduler: scheduler,
		timers:    make(map[timerKey]*pendingTimer),
	}
}

// Arm schedules callback after delay, replacing any timer already armed for
// the same request and kind.
func (r *TimerRegistry) Arm(requestID string, kind TimerKind, delay time.Duration, callback func()) {
	if r == nil || requestID == "" || callback == nil {
		return
	}
	key := timerKey{requestID: requestID, kind: kind}
	entry := &pendingTimer{}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if existing, ok := r.timers[key]; ok && existing.timer != nil {
		existing.timer.Stop()
	}
	r.timers[key] = entry
	entry.timer = r.scheduler.AfterFunc(delay, func() {
		if r.claim(key, entry) {
			callback()
		}
	})
	size := len(r.timers)
	r.mu.Unlock()

	metrics.SetPendingTimers(size)
}

// Cancel stops and removes a timer. It reports whether the timer was still
// pending; false means it already fired, was cancelled, or never existed.
func (r *TimerRegistry) Cancel(requestID string, kind TimerKind) bool {
	if r == nil {
		return false
	}
	key := timerKey{requestID: requestID, kind: kind}

	r.mu.Lock()
	entry, ok := r.timers[key]
	delete(r.timers, key)
	size := len(r.timers)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	metrics.SetPendingTimers(size)
	return true
}

// Pending returns the number of timers armed for a request.
func (r *TimerRegistry) Pending(requestID string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for key := range r.timers {
		if key.requestID == requestID {
			count++
		}
	}
	return count
}

// Len returns the number of armed timers.
func (r *TimerRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Close stops all pending timers. Arm is a no-op afterwards.
func (r *TimerRegistry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	timers := r.timers
	r.timers = make(map[timerKey]*pendingTimer)
	r.closed = true
	r.mu.Unlock()

	for _, entry := range timers {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	metrics.SetPendingTimers(0)
}

func (r *TimerRegistry) claim(key timerKey, entry *pendingTimer) bool {
	r.mu.Lock()
	current, ok := r.timers[key]
	if !ok || current != entry {
		r.mu.Unlock()
		return false
	}
	delete(r.timers, key)
	size := len(r.timers)
	r.mu.Unlock()

	metrics.SetPendingTimers(size)
	return true
}
