package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/roomserver/internal/storage"
	"github.com/cory-johannsen/roomserver/internal/storage/memory"
)

func TestDirectory_UpsertGetRemove(t *testing.T) {
	ctx := context.Background()
	d := memory.New()
	l := storage.Listing{RoomID: "r1", Clients: 2, MaxClients: 2, CreatedAt: time.Now()}
	require.NoError(t, d.Upsert(ctx, l))

	got, err := d.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, l, got)
	assert.True(t, got.Full())

	require.NoError(t, d.Remove(ctx, "r1"))
	_, err = d.Get(ctx, "r1")
	assert.True(t, errors.Is(err, storage.ErrRoomNotListed))
	require.NoError(t, d.Remove(ctx, "r1"))
}

func TestDirectory_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	d := memory.New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, d.Upsert(ctx, storage.Listing{RoomID: fmt.Sprintf("r%d", i)}))
		}(i)
	}
	wg.Wait()
	all, err := d.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestProperty_ListIsSortedAndComplete(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		d := memory.New()
		n := rapid.IntRange(0, 30).Draw(rt, "n")
		for i := 0; i < n; i++ {
			offset := rapid.IntRange(0, 5).Draw(rt, "offset")
			_ = d.Upsert(ctx, storage.Listing{
				RoomID:    fmt.Sprintf("room-%02d", i),
				CreatedAt: base.Add(time.Duration(offset) * time.Second),
			})
		}
		all, err := d.List(ctx)
		if err != nil {
			rt.Fatal(err)
		}
		if len(all) != n {
			rt.Fatalf("listed %d, upserted %d", len(all), n)
		}
		for i := 1; i < len(all); i++ {
			a, b := all[i-1], all[i]
			if b.CreatedAt.Before(a.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && b.RoomID < a.RoomID) {
				rt.Fatalf("out of order at %d: %v then %v", i, a, b)
			}
		}
	})
}
