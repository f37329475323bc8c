package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domrepo "SignalHook/internal/domain/repository"
	"SignalHook/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gate blocks handled events of one bot until released.
type gate struct {
	mu      sync.Mutex
	handled []string
	dropped []string
	started chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan string, 16), release: make(chan struct{})}
}

func (g *gate) handle(ctx context.Context, id string) error {
	g.started <- id
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	g.handled = append(g.handled, id)
	g.mu.Unlock()
	return nil
}

func (g *gate) drop(_ context.Context, _ string, id string) {
	g.mu.Lock()
	g.dropped = append(g.dropped, id)
	g.mu.Unlock()
}

func (g *gate) snapshot() ([]string, []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.handled...), append([]string(nil), g.dropped...)
}

func stopDispatcher(t *testing.T, d *MemoryDispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func TestDispatcherPreservesPerBotOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	d := NewMemoryDispatcher(DispatcherConfig{QueueSize: 32}, func(_ context.Context, id string) error {
		mu.Lock()
		got = append(got, id)
		mu.Unlock()
		return nil
	}, nil, nopMetrics, nil)
	defer stopDispatcher(t, d)

	var want []string
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("e%02d", i)
		want = append(want, id)
		require.NoError(t, d.Dispatch(context.Background(), "bot-1", id))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestDispatcherBotsDoNotBlockEachOther(t *testing.T) {
	slow := newGate()
	done := make(chan string, 1)
	d := NewMemoryDispatcher(DispatcherConfig{}, func(ctx context.Context, id string) error {
		if id == "slow" {
			return slow.handle(ctx, id)
		}
		done <- id
		return nil
	}, nil, nopMetrics, nil)
	defer stopDispatcher(t, d)

	require.NoError(t, d.Dispatch(context.Background(), "bot-a", "slow"))
	<-slow.started
	require.NoError(t, d.Dispatch(context.Background(), "bot-b", "fast"))

	select {
	case id := <-done:
		assert.Equal(t, "fast", id)
	case <-time.After(time.Second):
		t.Fatal("bot-b waited on bot-a")
	}
	assert.Equal(t, 2, d.ActiveBots())
	close(slow.release)
}

func TestDispatcherDropNewest(t *testing.T) {
	g := newGate()
	d := NewMemoryDispatcher(DispatcherConfig{QueueSize: 1, DropPolicy: DropNewest}, g.handle, g.drop, nopMetrics, nil)
	defer stopDispatcher(t, d)

	require.NoError(t, d.Dispatch(context.Background(), "bot-1", "e1"))
	<-g.started
	require.NoError(t, d.Dispatch(context.Background(), "bot-1", "e2"))
	err := d.Dispatch(context.Background(), "bot-1", "e3")
	assert.ErrorIs(t, err, domrepo.ErrQueueFull)

	close(g.release)
	require.Eventually(t, func() bool {
		handled, _ := g.snapshot()
		return len(handled) == 2
	}, time.Second, 5*time.Millisecond)
	handled, dropped := g.snapshot()
	assert.Equal(t, []string{"e1", "e2"}, handled)
	assert.Equal(t, []string{"e3"}, dropped)
}

func TestDispatcherDropOldest(t *testing.T) {
	g := newGate()
	d := NewMemoryDispatcher(DispatcherConfig{QueueSize: 1, DropPolicy: DropOldest}, g.handle, g.drop, nopMetrics, nil)
	defer stopDispatcher(t, d)

	require.NoError(t, d.Dispatch(context.Background(), "bot-1", "e1"))
	<-g.started
	require.NoError(t, d.Dispatch(context.Background(), "bot-1", "e2"))
	require.NoError(t, d.Dispatch(context.Background(), "bot-1", "e3"))

	close(g.release)
	require.Eventually(t, func() bool {
		handled, _ := g.snapshot()
		return len(handled) == 2
	}, time.Second, 5*time.Millisecond)
	handled, dropped := g.snapshot()
	assert.Equal(t, []string{"e1", "e3"}, handled)
	assert.Equal(t, []string{"e2"}, dropped)
}

func TestDispatcherRetiresIdleWorkers(t *testing.T) {
	d := NewMemoryDispatcher(DispatcherConfig{IdleTimeout: 20 * time.Millisecond}, func(context.Context, string) error { return nil }, nil, nopMetrics, nil)
	defer stopDispatcher(t, d)

	require.NoError(t, d.Dispatch(context.Background(), "bot-1", "e1"))
	assert.Equal(t, 1, d.ActiveBots())
	require.Eventually(t, func() bool { return d.ActiveBots() == 0 }, time.Second, 5*time.Millisecond)

	// a retired bot gets a fresh worker
	require.NoError(t, d.Dispatch(context.Background(), "bot-1", "e2"))
	assert.Equal(t, 1, d.ActiveBots())
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	d := NewMemoryDispatcher(DispatcherConfig{}, func(context.Context, string) error { return nil }, nil, nopMetrics, nil)
	stopDispatcher(t, d)
	assert.ErrorIs(t, d.Dispatch(context.Background(), "bot-1", "e1"), ErrDispatcherStopped)
}

func TestDispatcherRedispatchNeverDrops(t *testing.T) {
	for _, policy := range []DropPolicy{DropNewest, DropOldest} {
		t.Run(string(policy), func(t *testing.T) {
			g := newGate()
			d := NewMemoryDispatcher(DispatcherConfig{QueueSize: 1, DropPolicy: policy}, g.handle, g.drop, nopMetrics, nil)
			defer stopDispatcher(t, d)

			require.NoError(t, d.Dispatch(context.Background(), "bot-1", "e1"))
			<-g.started
			require.NoError(t, d.Dispatch(context.Background(), "bot-1", "e2"))

			assert.ErrorIs(t, d.Redispatch(context.Background(), "bot-1", "e2"), domrepo.ErrQueueFull)

			close(g.release)
			require.Eventually(t, func() bool {
				handled, _ := g.snapshot()
				return len(handled) == 2
			}, time.Second, 5*time.Millisecond)
			handled, dropped := g.snapshot()
			assert.Equal(t, []string{"e1", "e2"}, handled)
			assert.Empty(t, dropped)
		})
	}
}

func TestDispatcherRedispatchEnqueuesWhenRoom(t *testing.T) {
	done := make(chan string, 1)
	d := NewMemoryDispatcher(DispatcherConfig{}, func(_ context.Context, id string) error {
		done <- id
		return nil
	}, nil, nopMetrics, nil)
	defer stopDispatcher(t, d)

	require.NoError(t, d.Redispatch(context.Background(), "bot-1", "e1"))
	select {
	case id := <-done:
		assert.Equal(t, "e1", id)
	case <-time.After(time.Second):
		t.Fatal("redispatched event never ran")
	}
}

// depthMetrics keeps the last reported queue depth.
type depthMetrics struct {
	metrics.Nop
	mu    sync.Mutex
	depth []int
}

func (m *depthMetrics) RecordQueueDepth(depth int) {
	m.mu.Lock()
	m.depth = append(m.depth, depth)
	m.mu.Unlock()
}

func (m *depthMetrics) last() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.depth) == 0 {
		return -1
	}
	return m.depth[len(m.depth)-1]
}

func TestDispatcherReportsTotalDepth(t *testing.T) {
	a, b := newGate(), newGate()
	m := &depthMetrics{}
	d := NewMemoryDispatcher(DispatcherConfig{QueueSize: 4}, func(ctx context.Context, id string) error {
		if id[0] == 'a' {
			return a.handle(ctx, id)
		}
		return b.handle(ctx, id)
	}, nil, m, nil)
	defer stopDispatcher(t, d)

	require.NoError(t, d.Dispatch(context.Background(), "bot-a", "a1"))
	<-a.started
	require.NoError(t, d.Dispatch(context.Background(), "bot-b", "b1"))
	<-b.started
	require.NoError(t, d.Dispatch(context.Background(), "bot-a", "a2"))
	require.NoError(t, d.Dispatch(context.Background(), "bot-b", "b2"))
	assert.Equal(t, 2, m.last())

	close(a.release)
	close(b.release)
	require.Eventually(t, func() bool { return m.last() == 0 }, time.Second, 5*time.Millisecond)
}
