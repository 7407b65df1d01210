package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeExpiredDeleter struct {
	sweeps    atomic.Int64
	inFlight  atomic.Int64
	overlaps  atomic.Int64
	err       error
	sweepTime time.Duration
}

func (f *fakeExpiredDeleter) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	defer f.inFlight.Add(-1)

	if f.sweepTime > 0 {
		time.Sleep(f.sweepTime)
	}
	f.sweeps.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func TestReaperSweepsPeriodicallyAndStops(t *testing.T) {
	store := &fakeExpiredDeleter{}
	reaper := NewSessionReaper(store, 10*time.Millisecond, zap.NewNop(), nil)

	reaper.Start(context.Background())
	require.Eventually(t, func() bool {
		return store.sweeps.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	reaper.Stop()
	after := store.sweeps.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, store.sweeps.Load(), "no sweeps after Stop")
}

func TestReaperSurvivesStoreErrors(t *testing.T) {
	store := &fakeExpiredDeleter{err: errors.New("connection refused")}
	reaper := NewSessionReaper(store, 10*time.Millisecond, zap.NewNop(), nil)

	reaper.Start(context.Background())
	defer reaper.Stop()

	require.Eventually(t, func() bool {
		return store.sweeps.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestReaperDoesNotOverlapSweeps(t *testing.T) {
	store := &fakeExpiredDeleter{sweepTime: 30 * time.Millisecond}
	reaper := NewSessionReaper(store, 5*time.Millisecond, zap.NewNop(), nil)

	reaper.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	reaper.Stop()

	assert.Zero(t, store.overlaps.Load())
	assert.GreaterOrEqual(t, store.sweeps.Load(), int64(2))
}

func TestReaperStartTwiceIsSafe(t *testing.T) {
	store := &fakeExpiredDeleter{}
	reaper := NewSessionReaper(store, time.Hour, zap.NewNop(), nil)

	reaper.Start(context.Background())
	reaper.Start(context.Background())
	reaper.Stop()
	reaper.Stop()
}
