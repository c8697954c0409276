package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// blockingService runs until Stop and records its stop in order.
type blockingService struct {
	name    string
	started atomic.Bool
	stop    chan struct{}
	once    sync.Once
	order   *stopOrder
}

type stopOrder struct {
	mu    sync.Mutex
	names []string
}

func (o *stopOrder) add(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func (o *stopOrder) get() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

func newBlocking(name string, order *stopOrder) *blockingService {
	return &blockingService{name: name, stop: make(chan struct{}), order: order}
}

func (b *blockingService) Start() error {
	b.started.Store(true)
	<-b.stop
	return nil
}

func (b *blockingService) Stop() {
	b.once.Do(func() {
		b.order.add(b.name)
		close(b.stop)
	})
}

func runAsync(ctx context.Context, lc *Lifecycle) <-chan error {
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	return done
}

func TestLifecycle_StopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	order := &stopOrder{}
	svc1 := newBlocking("svc1", order)
	svc2 := newBlocking("svc2", order)
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, lc)
	require.Eventually(t, func() bool {
		return svc1.started.Load() && svc2.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.Equal(t, []string{"svc2", "svc1"}, order.get())
}

func TestLifecycle_ServiceFailureStopsAll(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	order := &stopOrder{}
	healthy := newBlocking("healthy", order)
	boom := errors.New("listen failed")
	lc.Add("healthy", healthy)
	lc.Add("broken", &FuncService{StartFn: func() error { return boom }})

	select {
	case err := <-runAsync(context.Background(), lc):
		assert.True(t, errors.Is(err, boom))
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not react to failure")
	}
	assert.Equal(t, []string{"healthy"}, order.get())
}

func TestLifecycle_OnReadyAndStopOnlyServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	var ready, stopped atomic.Bool
	lc.Add("flush", &FuncService{StopFn: func() { stopped.Store(true) }})
	lc.OnReady(func() { ready.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, lc)
	require.Eventually(t, ready.Load, 2*time.Second, 10*time.Millisecond)
	assert.False(t, stopped.Load())

	cancel()
	require.NoError(t, <-done)
	assert.True(t, stopped.Load())
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false
	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}
	assert.NoError(t, svc.Start())
	assert.True(t, started)
	svc.Stop()
	assert.True(t, stopped)

	empty := &FuncService{}
	assert.NoError(t, empty.Start())
	empty.Stop()
}
