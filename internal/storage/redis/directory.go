// Package redis is a Redis-backed room directory shared by every node.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/roomserver/internal/storage"
)

// Directory stores listings as JSON values with a TTL plus an index set of
// room ids. Index members whose value has expired are pruned by List.
type Directory struct {
	client *redis.Client
	cfg    Config
}

var _ storage.Directory = (*Directory)(nil)

// New connects to cfg.URL and verifies the connection.
func New(cfg Config) (*Directory, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis directory: parsing url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis directory: ping: %w", err)
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client (for testing).
func NewWithClient(client *redis.Client, cfg Config) *Directory {
	return &Directory{client: client, cfg: cfg}
}

// Close closes the Redis connection.
func (d *Directory) Close() error {
	return d.client.Close()
}

func (d *Directory) Upsert(ctx context.Context, l storage.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("redis directory: encoding %q: %w", l.RoomID, err)
	}
	pipe := d.client.TxPipeline()
	pipe.Set(ctx, listingKey(l.RoomID), data, d.cfg.ListingTTL)
	pipe.SAdd(ctx, roomsIndexKey(), l.RoomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis directory: upserting %q: %w", l.RoomID, err)
	}
	return nil
}

func (d *Directory) Remove(ctx context.Context, roomID string) error {
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, listingKey(roomID))
	pipe.SRem(ctx, roomsIndexKey(), roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis directory: removing %q: %w", roomID, err)
	}
	return nil
}

func (d *Directory) Get(ctx context.Context, roomID string) (storage.Listing, error) {
	data, err := d.client.Get(ctx, listingKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.Listing{}, fmt.Errorf("%w: %q", storage.ErrRoomNotListed, roomID)
		}
		return storage.Listing{}, fmt.Errorf("redis directory: reading %q: %w", roomID, err)
	}
	var l storage.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return storage.Listing{}, fmt.Errorf("redis directory: decoding %q: %w", roomID, err)
	}
	return l, nil
}

func (d *Directory) List(ctx context.Context) ([]storage.Listing, error) {
	ids, err := d.client.SMembers(ctx, roomsIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis directory: reading index: %w", err)
	}
	if len(ids) == 0 {
		return []storage.Listing{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = listingKey(id)
	}
	values, err := d.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis directory: reading listings: %w", err)
	}

	out := make([]storage.Listing, 0, len(values))
	var stale []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var l storage.Listing
		if err := json.Unmarshal([]byte(s), &l); err != nil {
			return nil, fmt.Errorf("redis directory: decoding %q: %w", ids[i], err)
		}
		out = append(out, l)
	}
	if len(stale) > 0 {
		if err := d.client.SRem(ctx, roomsIndexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("redis directory: pruning index: %w", err)
		}
	}
	storage.SortListings(out)
	return out, nil
}
