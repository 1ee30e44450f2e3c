// session_reaper.go implements the SessionReaper background job, which deletes
// sessions that expired more than a grace period ago. Expired sessions are
// already rejected by the validator; reaping only bounds table growth, so a
// failed sweep is logged and retried on the next tick.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aragroup/ara-platform/internal/telemetry"
)

// Defaults used when the configured values are not positive.
const (
	DefaultReapInterval = time.Hour
	DefaultReapGrace    = 24 * time.Hour
)

// ExpiredSessionDeleter removes sessions that expired before cutoff.
// *repositories.SessionRepository satisfies it.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionReaper periodically deletes long-expired sessions.
type SessionReaper struct {
	sessions ExpiredSessionDeleter
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewSessionReaper creates a reaper that runs every interval and removes
// sessions expired for longer than grace.
func NewSessionReaper(sessions ExpiredSessionDeleter, interval, grace time.Duration) *SessionReaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if grace < 0 {
		grace = DefaultReapGrace
	}
	return &SessionReaper{
		sessions: sessions,
		interval: interval,
		grace:    grace,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every interval until ctx is
// cancelled or Stop is called.
func (r *SessionReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("session reaper started", "interval", r.interval, "grace", r.grace)

	r.reap(ctx)

	for {
		select {
		case <-ticker.C:
			r.reap(ctx)
		case <-r.stopChan:
			slog.Info("session reaper stopped")
			return
		case <-ctx.Done():
			slog.Info("session reaper context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (r *SessionReaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// reap deletes one batch and returns the number of rows removed.
func (r *SessionReaper) reap(ctx context.Context) int64 {
	cutoff := r.now().Add(-r.grace)
	n, err := r.sessions.DeleteExpired(ctx, cutoff)
	if err != nil {
		slog.Error("session reaper: sweep failed", "cutoff", cutoff, "error", err)
		return 0
	}
	if n > 0 {
		telemetry.SessionsReapedTotal.Add(float64(n))
		slog.Info("session reaper: deleted expired sessions", "count", n, "cutoff", cutoff)
	}
	return n
}
