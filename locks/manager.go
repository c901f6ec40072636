// Package locks serializes writers of the same path. The local adapter
// takes a lock around every write when its disk sets the lock option.
package locks

import (
	"context"
	"time"

	"github.com/ebogdum/diskfs/metrics"
)

// DefaultRetryInterval is the pause between attempts in Lock.
const DefaultRetryInterval = 10 * time.Millisecond

// Manager defines the interface for path locking operations
type Manager interface {
	// Acquire attempts to acquire the lock for key without blocking.
	// Returns true if the lock was acquired, false if it is already held.
	Acquire(ctx context.Context, key string) (bool, error)

	// Release releases a previously acquired lock for the given key
	Release(ctx context.Context, key string) error

	// Close closes the lock manager and releases any resources
	Close() error
}

// Lock blocks until key is acquired or ctx is done. The returned function
// releases the lock.
func Lock(ctx context.Context, m Manager, key string) (func(), error) {
	ticker := time.NewTicker(DefaultRetryInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		ok, err := m.Acquire(ctx, key)
		if err != nil {
			metrics.LockOperationsTotal.WithLabelValues("acquire", "failure").Inc()
			return nil, err
		}
		if ok {
			metrics.LockOperationsTotal.WithLabelValues("acquire", "success").Inc()
			metrics.LockWaitDuration.Observe(time.Since(start).Seconds())
			return func() {
				// Release with a fresh context so a cancelled caller still unlocks.
				status := "success"
				if err := m.Release(context.Background(), key); err != nil {
					status = "failure"
				}
				metrics.LockOperationsTotal.WithLabelValues("release", status).Inc()
			}, nil
		}

		select {
		case <-ctx.Done():
			metrics.LockOperationsTotal.WithLabelValues("acquire", "failure").Inc()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
