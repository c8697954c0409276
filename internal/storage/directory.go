// Package storage defines the room directory: the published list of live
// rooms that lobby clients browse before connecting.
package storage

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrRoomNotListed is returned by Get when no listing exists for a room.
var ErrRoomNotListed = errors.New("storage: room not listed")

// Listing is the public summary of one live room.
type Listing struct {
	RoomID     string    `json:"roomId"`
	Logic      string    `json:"logic,omitempty"`
	Clients    int       `json:"clients"`
	MaxClients int       `json:"maxClients"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Full reports whether the room has no free seat.
func (l Listing) Full() bool {
	return l.Clients >= l.MaxClients
}

// Directory stores room listings.
type Directory interface {
	// Upsert creates or replaces the listing for l.RoomID.
	Upsert(ctx context.Context, l Listing) error
	// Remove deletes a listing. Removing an absent listing is not an error.
	Remove(ctx context.Context, roomID string) error
	// Get returns one listing or ErrRoomNotListed.
	Get(ctx context.Context, roomID string) (Listing, error)
	// List returns all listings ordered by creation time, then room id.
	List(ctx context.Context) ([]Listing, error)
}

// SortListings orders listings by creation time, then room id.
func SortListings(ls []Listing) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].CreatedAt.Equal(ls[j].CreatedAt) {
			return ls[i].CreatedAt.Before(ls[j].CreatedAt)
		}
		return ls[i].RoomID < ls[j].RoomID
	})
}
