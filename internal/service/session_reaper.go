package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type expiredSessionDeleter interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// sweepTimeout bounds a single reclamation pass against the store.
const sweepTimeout = 30 * time.Second

// SessionReaper periodically deletes expired session rows. It runs a single
// goroutine, so a sweep in progress inherently suppresses the next tick, and
// store errors are logged and swallowed so the loop never dies.
type SessionReaper struct {
	store    expiredSessionDeleter
	interval time.Duration
	logger   *zap.Logger
	metrics  *MetricsService

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewSessionReaper builds a reaper sweeping at the given interval.
func NewSessionReaper(store expiredSessionDeleter, interval time.Duration, logger *zap.Logger, metrics *MetricsService) *SessionReaper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionReaper{
		store:    store,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start launches the sweep loop. Safe to call once.
func (r *SessionReaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.run()
	r.started = true
	r.logger.Sugar().Infow("session reaper started", "interval", r.interval)
}

// Stop cancels the loop and waits for the current sweep to finish.
func (r *SessionReaper) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Sugar().Infow("session reaper stopped")
}

func (r *SessionReaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *SessionReaper) sweep() {
	ctx, cancel := context.WithTimeout(r.ctx, sweepTimeout)
	defer cancel()

	count, err := r.store.DeleteExpiredBefore(ctx, time.Now().UTC())
	if err != nil {
		r.logger.Warn("session sweep failed", zap.Error(err))
		return
	}

	if r.metrics != nil {
		r.metrics.SessionsReaped(count)
	}
	if count > 0 {
		r.logger.Info("expired sessions reclaimed", zap.Int64("count", count))
	} else {
		r.logger.Debug("no expired sessions to reclaim")
	}
}
