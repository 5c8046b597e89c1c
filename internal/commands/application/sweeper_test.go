package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExpirer struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (e *recordingExpirer) ExpireStale(ctx context.Context, before time.Time) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cutoffs = append(e.cutoffs, before)
	return 2, e.err
}

func (e *recordingExpirer) runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cutoffs)
}

func TestNewSweeper_Validates(t *testing.T) {
	_, err := NewSweeper(nil, "", time.Minute, nil)
	assert.Error(t, err)
	_, err = NewSweeper(&recordingExpirer{}, "", 0, nil)
	assert.Error(t, err)
	_, err = NewSweeper(&recordingExpirer{}, "not a schedule", time.Minute, nil)
	assert.Error(t, err)
}

func TestSweeper_RunOnceUsesThreshold(t *testing.T) {
	expirer := &recordingExpirer{}
	sweeper, err := NewSweeper(expirer, "", 2*time.Minute, quietLogger())
	require.NoError(t, err)
	sweeper.clock = newManualScheduler(testNow)

	count, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []time.Time{testNow.Add(-2 * time.Minute)}, expirer.cutoffs)

	expirer.err = errors.New("db down")
	_, err = sweeper.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestSweeper_StartRunsOnSchedule(t *testing.T) {
	expirer := &recordingExpirer{}
	sweeper, err := NewSweeper(expirer, "@every 1s", time.Minute, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sweeper.Start(ctx))

	assert.Eventually(t, func() bool { return expirer.runs() > 0 }, 3*time.Second, 50*time.Millisecond)
}
