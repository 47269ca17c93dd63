// Package worker holds the background jobs of the API process.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-booking/internal/clock"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/metrics"
)

// LockExpirer is the part of the lock manager the reaper drives.
type LockExpirer interface {
	ExpireLocks(ctx context.Context, now time.Time, ttl time.Duration) (int64, error)
}

// Lease decides which instance sweeps when several run side by side.
type Lease interface {
	// TryAcquire reports whether this instance holds the lease now.
	TryAcquire(ctx context.Context) (bool, error)
	// Release gives the lease up if this instance holds it.
	Release(ctx context.Context) error
}

// Reaper periodically releases seat locks whose TTL has elapsed.  It keeps
// no state of its own; every sweep is one idempotent ExpireLocks call.
type Reaper struct {
	expirer  LockExpirer
	clock    clock.Clock
	interval time.Duration
	ttl      time.Duration
	lease    Lease
	metrics  *metrics.Metrics

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReaper builds a reaper.  lease and m may be nil; without a lease every
// instance sweeps on every tick.
func NewReaper(expirer LockExpirer, clk clock.Clock, interval, ttl time.Duration, lease Lease, m *metrics.Metrics) *Reaper {
	if expirer == nil || clk == nil {
		panic("nil dependency passed to NewReaper")
	}
	if interval <= 0 || ttl <= 0 {
		panic("NewReaper: interval and ttl must be positive")
	}
	return &Reaper{
		expirer:  expirer,
		clock:    clk,
		interval: interval,
		ttl:      ttl,
		lease:    lease,
		metrics:  m,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.  It
// blocks, so callers run it in its own goroutine.
func (r *Reaper) Start(ctx context.Context) {
	logger.Info("seat reaper started",
		zap.Duration("interval", r.interval),
		zap.Duration("ttl", r.ttl),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)
	defer r.releaseLease()

	for {
		select {
		case <-ctx.Done():
			logger.Info("seat reaper stopped (context cancelled)")
			return
		case <-r.stopCh:
			logger.Info("seat reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				logger.Error("seat reaper sweep failed", zap.Error(err))
			}
		}
	}
}

// Stop ends the loop started by Start and waits for it to return.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// RunOnce performs a single sweep.  It returns zero without sweeping when
// another instance holds the lease.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	if r.lease != nil {
		ok, err := r.lease.TryAcquire(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			logger.Debug("seat reaper lease held elsewhere, skipping")
			return 0, nil
		}
	}

	started := time.Now()
	n, err := r.expirer.ExpireLocks(ctx, r.clock.Now(), r.ttl)
	r.metrics.ReaperRun(time.Since(started))
	if err != nil {
		return 0, err
	}
	r.metrics.LocksExpired("reaper", n)
	if n > 0 {
		logger.Info("expired seat locks released", zap.Int64("count", n))
	} else {
		logger.Debug("no expired seat locks")
	}
	return n, nil
}

func (r *Reaper) releaseLease() {
	if r.lease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.lease.Release(ctx); err != nil {
		logger.Warn("release reaper lease", zap.Error(err))
	}
}
