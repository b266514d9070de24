package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/yoga-booking/internal/infrastructure/store"
)

// InstanceWatch is a live, typed view of one course's instances.
// Every update is the full list. Cancel must be called to release it.
type InstanceWatch struct {
	courseID string
	sub      *store.Subscription
	updates  chan []Instance
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// WatchInstances subscribes to the instances of a course
func (s *Service) WatchInstances(ctx context.Context, courseID string) (*InstanceWatch, error) {
	sub, err := s.store.Subscribe(ctx, InstancesPath(courseID))
	if err != nil {
		return nil, fmt.Errorf("failed to watch instances: %w", err)
	}

	w := &InstanceWatch{
		courseID: courseID,
		sub:      sub,
		updates:  make(chan []Instance),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Updates is closed when the watch ends; check Err afterwards
func (w *InstanceWatch) Updates() <-chan []Instance {
	return w.updates
}

func (w *InstanceWatch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Cancel stops the watch and waits for it to exit
func (w *InstanceWatch) Cancel() {
	w.sub.Cancel()
	<-w.done
}

func (w *InstanceWatch) run() {
	defer close(w.done)
	defer close(w.updates)

	for snap := range w.sub.Snapshots() {
		instances, err := decodeInstances(w.courseID, snap.Documents)
		if err != nil {
			w.fail(err)
			go w.sub.Cancel()
			return
		}

		select {
		case w.updates <- instances:
		case <-w.sub.Done():
			return
		}
	}
	if err := w.sub.Err(); err != nil {
		w.fail(err)
	}
}

func (w *InstanceWatch) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}
