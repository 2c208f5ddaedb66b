package host

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/leonardcser/pse-offline/internal/logger"
	"github.com/leonardcser/pse-offline/internal/worker"
)

// Dispatcher receives host events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev worker.Event) (*worker.Response, error)
}

// SyncScheduler collects background sync registrations and fires one sync event per
// pending tag. Registering a tag that is already pending is a no-op.
type SyncScheduler struct {
	mu      sync.Mutex
	pending map[string]struct{}
	wake    chan struct{}
}

var _ worker.SyncRegistrar = (*SyncScheduler)(nil)

func NewSyncScheduler() *SyncScheduler {
	return &SyncScheduler{pending: make(map[string]struct{}), wake: make(chan struct{}, 1)}
}

func (s *SyncScheduler) Register(_ context.Context, tag string) error {
	if tag == "" {
		return errors.New("host: empty sync tag")
	}
	s.mu.Lock()
	s.pending[tag] = struct{}{}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default: // A wake up is already queued.
	}
	logger.Debugf("sync %s registered", tag)
	return nil
}

// Pending lists the registered tags that have not fired yet.
func (s *SyncScheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]string, 0, len(s.pending))
	for tag := range s.pending {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Run fires pending syncs through d until ctx is done.
func (s *SyncScheduler) Run(ctx context.Context, d Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for _, tag := range s.drain() {
			if _, err := d.Dispatch(ctx, worker.SyncEvent{Tag: tag}); err != nil {
				logger.Errorf("sync %s: %v", tag, err)
			}
		}
	}
}

func (s *SyncScheduler) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]string, 0, len(s.pending))
	for tag := range s.pending {
		tags = append(tags, tag)
	}
	clear(s.pending)
	sort.Strings(tags)
	return tags
}
