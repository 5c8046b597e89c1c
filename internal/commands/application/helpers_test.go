package application

import (
	"io"
	"log"
	"sort"
	"sync"
	"time"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// manualScheduler is a virtual clock and scheduler; callbacks only run from
// Advance.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func newManualScheduler(now time.Time) *manualScheduler {
	return &manualScheduler{now: now}
}

func (s *manualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{s: s, at: s.now.Add(d), seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and runs every callback that falls due,
// in deadline order.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()
	for {
		next := s.nextDue(target)
		if next == nil {
			break
		}
		next.f()
	}
	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
}

func (s *manualScheduler) nextDue(target time.Time) *manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	next := due[0]
	next.fired = true
	if next.at.After(s.now) {
		s.now = next.at
	}
	return next
}

// Scheduled returns the number of callbacks that have neither fired nor
// been stopped.
func (s *manualScheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			count++
		}
	}
	return count
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
