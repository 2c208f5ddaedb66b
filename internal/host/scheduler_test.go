package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/pse-offline/internal/worker"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []worker.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev worker.Event) (*worker.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return nil, nil
}

func (d *recordingDispatcher) tags() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var tags []string
	for _, ev := range d.events {
		if s, ok := ev.(worker.SyncEvent); ok {
			tags = append(tags, s.Tag)
		}
	}
	return tags
}

func TestSyncScheduler_Register(t *testing.T) {
	s := NewSyncScheduler()
	assert.Error(t, s.Register(context.Background(), ""))

	require.NoError(t, s.Register(context.Background(), "sync-stock-data"))
	require.NoError(t, s.Register(context.Background(), "sync-stock-data"))
	require.NoError(t, s.Register(context.Background(), "another"))
	assert.Equal(t, []string{"another", "sync-stock-data"}, s.Pending())
}

func TestSyncScheduler_Run(t *testing.T) {
	s := NewSyncScheduler()
	d := &recordingDispatcher{}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Register(ctx, "sync-stock-data"))
	require.NoError(t, s.Register(ctx, "sync-stock-data"))

	done := make(chan struct{})
	go func() {
		s.Run(ctx, d)
		close(done)
	}()
	assert.Eventually(t, func() bool { return len(s.Pending()) == 0 && len(d.tags()) > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"sync-stock-data"}, d.tags())

	require.NoError(t, s.Register(ctx, "sync-stock-data"))
	assert.Eventually(t, func() bool { return len(d.tags()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
