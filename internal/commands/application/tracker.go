package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	alarms "control-cloud/internal/alarms/domain"
	"control-cloud/internal/commands/application/events"
	commands "control-cloud/internal/commands/domain"
	"control-cloud/internal/observability/metrics"
	telemetry "control-cloud/internal/telemetry/domain"
)

const (
	defaultDeliveryTimeout = 30 * time.Second
	defaultVerifyDelay     = 20 * time.Second
	defaultAlarmMatchDelay = 80 * time.Second
	defaultStoreTimeout    = 5 * time.Second
)

// CommandStore persists command records.
type CommandStore interface {
	Create(ctx context.Context, rec *commands.CommandRecord) error
	UpdateStatus(ctx context.Context, requestID string, patch commands.StatusPatch) (bool, error)
	GetByID(ctx context.Context, requestID string) (*commands.CommandRecord, error)
	Query(ctx context.Context, filter commands.ListFilter, offset, limit int) ([]commands.CommandRecord, int, error)
	MarkTimeoutBefore(ctx context.Context, before time.Time) (int, error)
}

// ValueReader returns the current value of a point.
type ValueReader interface {
	ReadCurrentValue(ctx context.Context, pointID string) (telemetry.CurrentValue, bool, error)
}

// AlarmReader lists alarm occurrences on a point.
type AlarmReader interface {
	ListByPointSince(ctx context.Context, pointID string, since time.Time) ([]alarms.Occurrence, error)
}

// Tracker advances command records through delivery, execution,
// verification and alarm correlation. Store failures are logged and never
// returned to the control path.
type Tracker struct {
	store     CommandStore
	values    ValueReader
	alarms    AlarmReader
	timers    *TimerRegistry
	scheduler Scheduler
	clock     Clock
	logger    *log.Logger
	newID     func() string

	deliveryTimeout time.Duration
	verifyDelay     time.Duration
	alarmMatchDelay time.Duration
	storeTimeout    time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithDeliveryTimeout sets how long a delivered command may wait for an
// execution result.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.deliveryTimeout = d
		}
	}
}

// WithVerifyDelay sets the delay between execution and value read-back.
func WithVerifyDelay(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.verifyDelay = d
		}
	}
}

// WithAlarmMatchDelay sets the delay between execution and alarm correlation.
func WithAlarmMatchDelay(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.alarmMatchDelay = d
		}
	}
}

// WithStoreTimeout bounds store calls made from timer callbacks.
func WithStoreTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.storeTimeout = d
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithScheduler overrides time.AfterFunc.
func WithScheduler(scheduler Scheduler) Option {
	return func(t *Tracker) {
		if scheduler != nil {
			t.scheduler = scheduler
		}
	}
}

// NewTracker constructs a tracker. Nil readers disable the matching step.
func NewTracker(store CommandStore, values ValueReader, alarmReader AlarmReader, logger *log.Logger, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("commands tracker: nil store")
	}
	if logger == nil {
		logger = log.Default()
	}
	t := &Tracker{
		store:           store,
		values:          values,
		alarms:          alarmReader,
		scheduler:       systemScheduler{},
		clock:           systemClock{},
		logger:          logger,
		newID:           uuid.NewString,
		deliveryTimeout: defaultDeliveryTimeout,
		verifyDelay:     defaultVerifyDelay,
		alarmMatchDelay: defaultAlarmMatchDelay,
		storeTimeout:    defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.timers = NewTimerRegistry(t.scheduler)
	return t, nil
}

// Timers exposes the delivery timeout registry.
func (t *Tracker) Timers() *TimerRegistry {
	return t.timers
}

// Close stops pending delivery timers. Unfired verification and alarm
// timers are abandoned.
func (t *Tracker) Close() {
	if t == nil {
		return
	}
	t.timers.Close()
}

// CreateCommand stores a new record with every status pending and returns
// its request id. A request id is generated when rec has none.
func (t *Tracker) CreateCommand(ctx context.Context, rec *commands.CommandRecord) (string, error) {
	if t == nil {
		return "", errors.New("commands tracker: nil tracker")
	}
	if rec == nil {
		return "", commands.ErrInvalidRequest
	}
	requestID := rec.RequestID
	if requestID == "" {
		requestID = t.newID()
	}
	fresh := commands.NewRecord(requestID, t.clock.Now())
	rec.RequestID = fresh.RequestID
	rec.DeliveryStatus = fresh.DeliveryStatus
	rec.ExecutionResult = fresh.ExecutionResult
	rec.VerificationResult = fresh.VerificationResult
	rec.FinalStatus = fresh.FinalStatus
	rec.RequestedAt = fresh.RequestedAt
	rec.UpdatedAt = fresh.UpdatedAt

	if err := t.store.Create(ctx, rec); err != nil {
		t.storeFailed("create", requestID, err)
		return requestID, nil
	}
	metrics.IncCommandIssued()
	return requestID, nil
}

// RecordDeliveryOutcome records how many collectors received the command.
// With no subscriber the command fails immediately; otherwise a delivery
// timeout is armed.
func (t *Tracker) RecordDeliveryOutcome(ctx context.Context, requestID string, subscriberCount int) {
	if t == nil || requestID == "" {
		return
	}
	ctx, cancel := t.storeContext(ctx)
	defer cancel()

	now := t.clock.Now()
	patch := commands.DeliveryPatch(subscriberCount, now)
	applied, err := t.store.UpdateStatus(ctx, requestID, patch)
	if err != nil {
		t.storeFailed("delivery", requestID, err)
		return
	}
	metrics.IncDelivery(string(patch.DeliveryStatus))

	if patch.DeliveryStatus == commands.DeliveryNoCollector {
		if applied {
			metrics.IncFinal(string(commands.FinalFailure))
			t.logger.Printf("commands tracker no collector: request_id=%s", requestID)
		}
		return
	}

	rec, err := t.store.GetByID(ctx, requestID)
	if err != nil {
		t.storeFailed("get", requestID, err)
	} else if rec != nil && rec.ExecutionResult != commands.ExecutionPending {
		return
	}
	t.timers.Arm(requestID, TimerDeliveryTimeout, t.deliveryTimeout, func() {
		ctx, cancel := t.timerContext()
		defer cancel()
		t.Timeout(ctx, requestID)
	})
}

// HandleExecutionResult applies a collector report. The delivery timer is
// cancelled first so that exactly one of result and timeout takes effect.
// Store calls are bounded by the store timeout.
func (t *Tracker) HandleExecutionResult(ctx context.Context, result events.ExecutionResult) {
	if t == nil || result.RequestID == "" {
		return
	}
	requestID := result.RequestID
	t.timers.Cancel(requestID, TimerDeliveryTimeout)

	ctx, cancel := t.storeContext(ctx)
	defer cancel()

	now := t.clock.Now()
	patch := commands.ExecutionPatch(result.Success, result.IsAsync, result.ErrorMessage, result.DurationMS, now)
	applied, err := t.store.UpdateStatus(ctx, requestID, patch)
	if err != nil {
		t.storeFailed("execution", requestID, err)
		return
	}
	if !applied {
		if _, err := t.store.UpdateStatus(ctx, requestID, commands.ExecutionAnnotation(result.ErrorMessage, result.DurationMS, now)); err != nil {
			t.storeFailed("execution_annotation", requestID, err)
		}
		t.logger.Printf("commands tracker late result ignored: request_id=%s success=%t async=%t", requestID, result.Success, result.IsAsync)
		return
	}

	metrics.ObserveExecution(string(patch.ExecutionResult), time.Duration(result.DurationMS)*time.Millisecond)
	if patch.FinalStatus.IsTerminal() {
		metrics.IncFinal(string(patch.FinalStatus))
	}
	if !commands.NeedsVerification(patch.ExecutionResult) && !commands.NeedsAlarmMatch(patch.ExecutionResult) {
		return
	}

	rec, err := t.store.GetByID(ctx, requestID)
	if err != nil {
		t.storeFailed("get", requestID, err)
		return
	}
	if rec == nil {
		return
	}
	pointID := rec.PointID
	requested := rec.RequestedValue
	if commands.NeedsVerification(patch.ExecutionResult) && t.values != nil {
		t.scheduler.AfterFunc(t.verifyDelay, func() {
			ctx, cancel := t.timerContext()
			defer cancel()
			t.VerifyValue(ctx, requestID, pointID, requested)
		})
	}
	if commands.NeedsAlarmMatch(patch.ExecutionResult) && t.alarms != nil {
		t.scheduler.AfterFunc(t.alarmMatchDelay, func() {
			ctx, cancel := t.timerContext()
			defer cancel()
			t.MatchAlarm(ctx, requestID, pointID, now)
		})
	}
}

// VerifyValue compares the point's current value with the requested one.
// An unavailable value leaves the record untouched.
func (t *Tracker) VerifyValue(ctx context.Context, requestID, pointID, requestedValue string) {
	if t == nil || t.values == nil || requestID == "" {
		return
	}
	current, ok, err := t.values.ReadCurrentValue(ctx, pointID)
	if err != nil {
		t.logger.Printf("commands tracker verify inconclusive: request_id=%s point_id=%s err=%v", requestID, pointID, err)
		return
	}
	if !ok || !current.Usable() {
		t.logger.Printf("commands tracker verify inconclusive: request_id=%s point_id=%s no current value", requestID, pointID)
		return
	}

	now := t.clock.Now()
	verified := commands.ValuesEqual(requestedValue, current.Value)
	patch := commands.VerificationPatch(verified, current.Value, now)
	applied, err := t.store.UpdateStatus(ctx, requestID, patch)
	if err != nil {
		t.storeFailed("verification", requestID, err)
		return
	}
	if applied {
		metrics.IncVerification(string(patch.VerificationResult))
		metrics.IncFinal(string(patch.FinalStatus))
		return
	}
	if _, err := t.store.UpdateStatus(ctx, requestID, commands.VerificationAnnotation(current.Value, now)); err != nil {
		t.storeFailed("verification_annotation", requestID, err)
	}
}

// MatchAlarm links the earliest alarm raised on the point at or after
// baseTime. The final status is never changed.
func (t *Tracker) MatchAlarm(ctx context.Context, requestID, pointID string, baseTime time.Time) {
	if t == nil || t.alarms == nil || requestID == "" {
		return
	}
	occurrences, err := t.alarms.ListByPointSince(ctx, pointID, baseTime)
	if err != nil {
		t.logger.Printf("commands tracker alarm match inconclusive: request_id=%s point_id=%s err=%v", requestID, pointID, err)
		return
	}
	occ, ok := alarms.EarliestSince(occurrences, baseTime)
	if !ok {
		return
	}
	applied, err := t.store.UpdateStatus(ctx, requestID, commands.AlarmPatch(occ.ID, t.clock.Now()))
	if err != nil {
		t.storeFailed("alarm", requestID, err)
		return
	}
	if applied {
		metrics.IncAlarmLink()
		t.logger.Printf("commands tracker alarm linked: request_id=%s alarm_id=%s", requestID, occ.ID)
	}
}

// Timeout finalizes a command whose execution result never arrived. It is
// a no-op once any execution result has been recorded.
func (t *Tracker) Timeout(ctx context.Context, requestID string) {
	if t == nil || requestID == "" {
		return
	}
	applied, err := t.store.UpdateStatus(ctx, requestID, commands.TimeoutPatch())
	if err != nil {
		t.storeFailed("timeout", requestID, err)
		return
	}
	if !applied {
		return
	}
	metrics.ObserveExecution(string(commands.ExecutionTimeout), 0)
	metrics.IncFinal(string(commands.FinalTimeout))
	t.logger.Printf("commands tracker timeout: request_id=%s", requestID)
}

// ExpireStale times out every record requested before the cutoff that is
// still waiting for an execution result, such as records whose timer was
// lost in a restart.
func (t *Tracker) ExpireStale(ctx context.Context, before time.Time) (int, error) {
	if t == nil {
		return 0, errors.New("commands tracker: nil tracker")
	}
	count, err := t.store.MarkTimeoutBefore(ctx, before)
	if err != nil {
		metrics.IncStoreError("expire")
		return 0, err
	}
	metrics.AddFinal(string(commands.FinalTimeout), count)
	return count, nil
}

func (t *Tracker) timerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), t.storeTimeout)
}

func (t *Tracker) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, t.storeTimeout)
}

func (t *Tracker) storeFailed(op, requestID string, err error) {
	metrics.IncStoreError(op)
	t.logger.Printf("commands tracker store %s failed: request_id=%s err=%v", op, requestID, err)
}
