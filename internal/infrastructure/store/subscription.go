package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/yoga-booking/internal/metrics"
)

// Snapshot is one emission of a subscription: the entire current matching set
type Snapshot struct {
	Documents []Document
	ReadAt    time.Time
}

// Subscription is a live, unbounded stream of snapshots.
// Callers must call Cancel (or cancel the context passed to Subscribe) to
// release the underlying connection.
type Subscription struct {
	path      string
	snapshots chan Snapshot
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	mu  sync.Mutex
	err error
}

type watchLoop func(ctx context.Context, emit func([]Document) bool) error

func newSubscription(parent context.Context, path string) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{
		path:      path,
		snapshots: make(chan Snapshot),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Path returns the subscribed collection path
func (s *Subscription) Path() string {
	return s.path
}

// Snapshots delivers one snapshot per change. The channel is closed when the
// subscription ends; check Err afterwards.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.snapshots
}

// Done is closed once the subscription has fully stopped
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that terminated the subscription, nil if it was cancelled
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops delivery and waits for the watcher to exit
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

func (s *Subscription) start(loop watchLoop) {
	go func() {
		defer close(s.done)
		defer close(s.snapshots)

		err := loop(s.ctx, s.emit)
		if err != nil && s.ctx.Err() == nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
		s.cancel()
	}()
}

func (s *Subscription) emit(docs []Document) bool {
	snap := Snapshot{Documents: docs, ReadAt: time.Now()}
	select {
	case s.snapshots <- snap:
		metrics.SnapshotsEmitted.Inc()
		return true
	case <-s.ctx.Done():
		return false
	}
}
