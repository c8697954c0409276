// Package memory is the in-process room directory used for single-node
// deployments and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/cory-johannsen/roomserver/internal/storage"
)

// Directory is an in-memory storage.Directory.
type Directory struct {
	mu       sync.RWMutex
	listings map[string]storage.Listing
}

var _ storage.Directory = (*Directory)(nil)

// New creates an empty Directory.
func New() *Directory {
	return &Directory{listings: make(map[string]storage.Listing)}
}

func (d *Directory) Upsert(_ context.Context, l storage.Listing) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listings[l.RoomID] = l
	return nil
}

func (d *Directory) Remove(_ context.Context, roomID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listings, roomID)
	return nil
}

func (d *Directory) Get(_ context.Context, roomID string) (storage.Listing, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.listings[roomID]
	if !ok {
		return storage.Listing{}, fmt.Errorf("%w: %q", storage.ErrRoomNotListed, roomID)
	}
	return l, nil
}

func (d *Directory) List(_ context.Context) ([]storage.Listing, error) {
	d.mu.RLock()
	out := make([]storage.Listing, 0, len(d.listings))
	for _, l := range d.listings {
		out = append(out, l)
	}
	d.mu.RUnlock()
	storage.SortListings(out)
	return out, nil
}
