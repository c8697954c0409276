package matchmaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/roomserver/internal/logic"
	"github.com/cory-johannsen/roomserver/internal/room"
	"github.com/cory-johannsen/roomserver/internal/room/schema"
	"github.com/cory-johannsen/roomserver/internal/storage/memory"
)

func newBare(t *testing.T, opts ...Option) (*Matchmaker, *memory.Directory) {
	t.Helper()
	validator, err := schema.NewValidator()
	require.NoError(t, err)
	dir := memory.New()
	return New(room.DefaultConfig(), logic.NewRegistry(), validator, dir, zaptest.NewLogger(t), opts...), dir
}

func TestEnqueue_AfterShutdownIsDropped(t *testing.T) {
	m, dir := newBare(t)
	require.NoError(t, m.Shutdown(context.Background()))

	late := &handle{id: "late", createdAt: time.Now()}
	assert.NotPanics(t, func() { m.list(late, 1) })
	assert.NotPanics(t, func() {
		m.enqueue(func(ctx context.Context) error { return dir.Remove(ctx, "late") })
	})
	_, err := dir.Get(context.Background(), "late")
	assert.Error(t, err)
}

func TestDisposeRacingShutdown(t *testing.T) {
	for i := 0; i < 50; i++ {
		m, _ := newBare(t)
		var ids []string
		for j := 0; j < 4; j++ {
			id, err := m.Create(context.Background(), CreateOptions{})
			require.NoError(t, err)
			ids = append(ids, id)
		}

		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_ = m.Dispose(id)
			}(id)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		assert.NoError(t, m.Shutdown(ctx))
		cancel()
		wg.Wait()
	}
}

func TestShutdown_StopsRelister(t *testing.T) {
	m, _ := newBare(t, WithRefreshInterval(time.Millisecond))
	_, err := m.Create(context.Background(), CreateOptions{RoomID: "lobby"})
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))

	select {
	case <-m.relisted:
	default:
		t.Fatal("relister still running after shutdown")
	}
}
