package clock

import (
	"context"
	"sync"
	"time"
)

// Estimate is the estimated offset of the local clock from the remote
// clock: local = remote + Offset. Accuracy bounds the error of Offset and
// is half the observed round trip.
type Estimate struct {
	Offset   time.Duration
	Accuracy time.Duration
	SyncedAt time.Time // local time the estimate was taken
}

// FetchFunc asks the remote for its current time.
type FetchFunc func(ctx context.Context) (time.Time, error)

// Estimator tracks the remote clock offset. The zero offset is used until
// the first successful Sync.
type Estimator struct {
	clock Clock

	mu     sync.RWMutex
	est    Estimate
	synced bool
}

// NewEstimator creates an Estimator reading local time from c.
// A nil c uses Real().
func NewEstimator(c Clock) *Estimator {
	if c == nil {
		c = Real()
	}
	return &Estimator{clock: c}
}

// Clock returns the local clock.
func (e *Estimator) Clock() Clock {
	return e.clock
}

// Sync performs one round trip through fetch and records the result.
func (e *Estimator) Sync(ctx context.Context, fetch FetchFunc) (Estimate, error) {
	sent := e.clock.Now()
	remote, err := fetch(ctx)
	if err != nil {
		return Estimate{}, err
	}
	return e.Observe(sent, e.clock.Now(), remote), nil
}

// Observe records a round trip that started at sent, returned at
// received, and reported remote as the remote time.
//
// Offset = received - remote - rtt/2; Accuracy = rtt/2.
func (e *Estimator) Observe(sent, received, remote time.Time) Estimate {
	half := received.Sub(sent) / 2
	if half < 0 {
		half = 0
	}
	est := Estimate{
		Offset:   received.Sub(remote) - half,
		Accuracy: half,
		SyncedAt: received,
	}
	e.mu.Lock()
	e.est = est
	e.synced = true
	e.mu.Unlock()
	return est
}

// Current returns the latest estimate and whether Sync has succeeded
// since creation or the last Reset.
func (e *Estimator) Current() (Estimate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.est, e.synced
}

// Reset discards the estimate.
func (e *Estimator) Reset() {
	e.mu.Lock()
	e.est = Estimate{}
	e.synced = false
	e.mu.Unlock()
}

// RemoteNow returns the estimated current remote time.
func (e *Estimator) RemoteNow() time.Time {
	e.mu.RLock()
	offset := e.est.Offset
	e.mu.RUnlock()
	return e.clock.Now().Add(-offset)
}

// TimeLeft returns how long until the remote clock reaches deadline.
// The result is negative once the deadline has passed.
func (e *Estimator) TimeLeft(deadline time.Time) time.Duration {
	return deadline.Sub(e.RemoteNow())
}

// CreateTimer calls f when the remote clock reaches deadline. A deadline
// already in the past fires immediately.
func (e *Estimator) CreateTimer(deadline time.Time, f func()) *Timer {
	return e.clock.AfterFunc(e.TimeLeft(deadline), f)
}
