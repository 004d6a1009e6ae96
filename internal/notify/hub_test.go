package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// blockingSender holds every dispatch until release is closed.
type blockingSender struct {
	release chan struct{}
	mu      sync.Mutex
	alerts  []Alert
}

func (s *blockingSender) Dispatch(_ context.Context, alert Alert) []Result {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *blockingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func TestHubDeliversThroughDispatcher(t *testing.T) {
	t.Parallel()

	ch := NewMemoryChannel("")
	clk := newClock()
	d := NewDispatcher([]Route{{Channel: ch}}, nil, clk, DispatcherConfig{}, nil)
	hub := NewHub(d, clk, HubConfig{}, zap.NewNop())
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Notify(monitor.Target{ID: "t1"}, monitor.Verdict{HasChanged: true, Type: monitor.ChangeContent, Priority: monitor.PriorityInfo})
	require.Eventually(t, func() bool { return len(ch.Alerts()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, clk.Now(), ch.Alerts()[0].CreatedAt)
}

func TestHubNotifyNeverBlocks(t *testing.T) {
	t.Parallel()

	sender := &blockingSender{release: make(chan struct{})}
	hub := NewHub(sender, newClock(), HubConfig{BufferSize: 1}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for range 100 {
			hub.Notify(monitor.Target{ID: "t"}, monitor.Verdict{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full buffer")
	}

	close(sender.release)
	require.NoError(t, hub.Close(context.Background()))
	// One alert in flight plus one buffered; the rest were dropped.
	require.LessOrEqual(t, sender.count(), 2)
	require.GreaterOrEqual(t, sender.count(), 1)
	require.Equal(t, int64(100), int64(sender.count())+hub.Dropped())
}

func TestHubCloseDrainsAndIgnoresLateAlerts(t *testing.T) {
	t.Parallel()

	ch := NewMemoryChannel("")
	clk := newClock()
	d := NewDispatcher([]Route{{Channel: ch}}, nil, clk, DispatcherConfig{}, nil)
	hub := NewHub(d, clk, HubConfig{BufferSize: 16}, nil)

	for _, id := range []string{"a", "b", "c"} {
		hub.Notify(monitor.Target{ID: id}, monitor.Verdict{Type: monitor.ChangeContent, Priority: monitor.PriorityInfo})
	}
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, ch.Alerts(), 3)

	hub.Notify(monitor.Target{ID: "late"}, monitor.Verdict{})
	require.Len(t, ch.Alerts(), 3)
	require.Equal(t, int64(1), hub.Dropped())
}

func TestHubNotifyRacingCloseIsDeliveredOrCounted(t *testing.T) {
	t.Parallel()

	for range 50 {
		ch := NewMemoryChannel("")
		clk := newClock()
		d := NewDispatcher([]Route{{Channel: ch}}, nil, clk, DispatcherConfig{}, nil)
		hub := NewHub(d, clk, HubConfig{BufferSize: 64}, nil)

		const senders, perSender = 4, 10
		var wg sync.WaitGroup
		for i := range senders {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range perSender {
					hub.Notify(monitor.Target{ID: fmt.Sprintf("t-%d-%d", i, j)},
						monitor.Verdict{Type: monitor.ChangeContent, Priority: monitor.PriorityInfo})
				}
			}()
		}
		require.NoError(t, hub.Close(context.Background()))
		wg.Wait()

		require.Equal(t, int64(senders*perSender), int64(len(ch.Alerts()))+hub.Dropped())
	}
}
