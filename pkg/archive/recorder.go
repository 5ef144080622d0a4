package archive

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/state"
)

// Recorder saves a snapshot of a session on its first tick, whenever its
// state has changed (at most once per interval), and once more when it
// stops if there are unsaved changes.
type Recorder struct {
	store    *Store
	session  *room.Session
	interval time.Duration
	dirty    atomic.Bool

	// OnSave is called after every save attempt. It may be nil.
	OnSave func(key string, err error)
}

// NewRecorder creates a recorder for s.
func NewRecorder(store *Store, s *room.Session, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Recorder{store: store, session: s, interval: interval}
}

// Run records until ctx ends. The final save uses a fresh context
// bounded by the interval.
func (r *Recorder) Run(ctx context.Context) {
	stop := r.session.OnStateChange().Subscribe(func(state.Change) {
		r.dirty.Store(true)
	})
	defer stop()
	r.dirty.Store(true)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), r.interval)
			r.flush(final)
			cancel()
			return
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	if !r.dirty.Swap(false) {
		return
	}
	key, err := r.save(ctx)
	if err != nil {
		// retry on the next tick
		r.dirty.Store(true)
		r.store.logger.Warn("snapshot save failed", "error", err)
	}
	if r.OnSave != nil {
		r.OnSave(key, err)
	}
}

func (r *Recorder) save(ctx context.Context) (string, error) {
	snap, err := Capture(r.session)
	if err != nil {
		return "", err
	}
	return r.store.Save(ctx, snap)
}
