package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the stale sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

const sweepTimeout = 30 * time.Second

// Expirer times out records still awaiting execution.
type Expirer interface {
	ExpireStale(ctx context.Context, before time.Time) (int, error)
}

// Sweeper periodically times out records whose in-process timer was lost,
// for example across a restart.
type Sweeper struct {
	expirer  Expirer
	schedule string
	after    time.Duration
	timeout  time.Duration
	clock    Clock
	logger   *log.Logger
	cron     *cron.Cron
}

// NewSweeper constructs a sweeper. Records requested more than after ago
// that are still awaiting a result are expired on each run.
func NewSweeper(expirer Expirer, schedule string, after time.Duration, logger *log.Logger) (*Sweeper, error) {
	if expirer == nil {
		return nil, errors.New("commands sweeper: nil expirer")
	}
	if after <= 0 {
		return nil, errors.New("commands sweeper: non-positive threshold")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	cronLogger := cron.PrintfLogger(logger)
	return &Sweeper{
		expirer:  expirer,
		schedule: schedule,
		after:    after,
		timeout:  sweepTimeout,
		clock:    systemClock{},
		logger:   logger,
		cron:     cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
	}, nil
}

// Start registers the sweep job and starts the cron loop. The loop stops
// when ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("commands sweeper: nil sweeper")
	}
	if _, err := s.cron.AddFunc(s.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		_, _ = s.RunOnce(runCtx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	s.logger.Printf("commands sweeper started: schedule=%q after=%s", s.schedule, s.after)
	return nil
}

// RunOnce expires stale records now.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.after)
	count, err := s.expirer.ExpireStale(ctx, cutoff)
	if err != nil {
		s.logger.Printf("commands sweeper error: cutoff=%s err=%v", cutoff.Format(time.RFC3339), err)
		return 0, err
	}
	if count > 0 {
		s.logger.Printf("commands sweeper expired: count=%d cutoff=%s", count, cutoff.Format(time.RFC3339))
	}
	return count, nil
}
