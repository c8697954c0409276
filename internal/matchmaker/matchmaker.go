// Package matchmaker creates rooms, routes connections into them and keeps
// the room directory current.
package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/logic"
	"github.com/cory-johannsen/roomserver/internal/room"
	"github.com/cory-johannsen/roomserver/internal/room/schema"
	"github.com/cory-johannsen/roomserver/internal/room/state"
	"github.com/cory-johannsen/roomserver/internal/storage"
)

var (
	// ErrRoomNotFound is returned for an unknown or disposed room id.
	ErrRoomNotFound = errors.New("matchmaker: room not found")
	// ErrRoomExists is returned by Create when the requested id is taken.
	ErrRoomExists = errors.New("matchmaker: room already exists")
	// ErrShutdown is returned once Shutdown has begun.
	ErrShutdown = errors.New("matchmaker: shutting down")
)

// directoryTimeout bounds one directory write.
const directoryTimeout = 2 * time.Second

// CreateOptions are the room creation options.
type CreateOptions struct {
	// RoomID is optional; a UUID is generated when empty.
	RoomID string `json:"roomId,omitempty"`
	// Logic names a registered behavior module; empty means none.
	Logic string `json:"logic,omitempty"`
	// Options are forwarded to the module's Initialize hook.
	Options logic.Options `json:"options,omitempty"`
}

type handle struct {
	id        string
	logic     string
	loop      *room.Loop
	createdAt time.Time
	occupancy atomic.Int64
}

// Option configures a Matchmaker.
type Option func(*Matchmaker)

// WithRefreshInterval re-publishes every live room's listing each interval.
// Directories that expire listings need an interval below their TTL.
// Zero or negative disables refreshing.
func WithRefreshInterval(interval time.Duration) Option {
	return func(m *Matchmaker) {
		m.refresh = interval
	}
}

// Matchmaker owns every live room on this node. Safe for concurrent use.
type Matchmaker struct {
	mu        sync.RWMutex
	rooms     map[string]*handle
	closing   bool
	cfg       room.Config
	registry  *logic.Registry
	validator *schema.Validator
	directory storage.Directory
	newID     func() string
	now       func() time.Time

	loops      sync.WaitGroup
	refresh    time.Duration
	stopRelist chan struct{}
	relisted   chan struct{}

	pubMu     sync.RWMutex
	pubClosed bool
	publish   chan func(context.Context) error
	published chan struct{}
	logger    *zap.Logger
}

// New creates a Matchmaker and starts its directory publisher and, when
// configured, the listing refresher.
//
// Precondition: registry, validator, directory and logger must be non-nil.
// Postcondition: Shutdown must be called to stop the background goroutines.
func New(cfg room.Config, registry *logic.Registry, validator *schema.Validator, directory storage.Directory, logger *zap.Logger, opts ...Option) *Matchmaker {
	m := &Matchmaker{
		rooms:      make(map[string]*handle),
		cfg:        cfg,
		registry:   registry,
		validator:  validator,
		directory:  directory,
		newID:      uuid.NewString,
		now:        time.Now,
		stopRelist: make(chan struct{}),
		relisted:   make(chan struct{}),
		publish:    make(chan func(context.Context) error, 256),
		published:  make(chan struct{}),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.runPublisher()
	if m.refresh > 0 {
		go m.runRelister()
	} else {
		close(m.relisted)
	}
	return m
}

// Create builds a room, starts its loop and lists it.
//
// Postcondition: Returns logic.ErrUnknownLogic (wrapped) for an unregistered
// module name and ErrRoomExists for a taken id; no room is created in either case.
func (m *Matchmaker) Create(ctx context.Context, opts CreateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := opts.RoomID
	if id == "" {
		id = m.newID()
	}
	logger := m.logger.With(zap.String("room_id", id))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return "", ErrShutdown
	}
	if _, exists := m.rooms[id]; exists {
		return "", fmt.Errorf("%w: %q", ErrRoomExists, id)
	}

	module, err := m.registry.Resolve(opts.Logic, logger)
	if err != nil {
		return "", err
	}

	h := &handle{id: id, logic: opts.Logic, createdAt: m.now()}
	h.loop = room.NewLoop(m.cfg.SimulationInterval, m.cfg.PatchInterval, logger)
	r := room.New(id, m.cfg, opts.Options, room.Deps{
		Host:      logic.NewHost(opts.Logic, module, logger),
		Validator: m.validator,
		Scheduler: h.loop.Scheduler(),
		Hooks: room.Hooks{
			OnOccupancy: func(users int) { m.list(h, users) },
			OnEmpty:     func() { m.retire(h) },
		},
		Logger: logger,
	})
	h.loop.Start(r)
	m.loops.Add(1)
	go func() {
		<-h.loop.Done()
		m.loops.Done()
	}()
	m.rooms[id] = h
	m.list(h, 0)

	logger.Info("room started", zap.String("logic", opts.Logic))
	return id, nil
}

// Rooms returns the ids of live rooms in sorted order.
func (m *Matchmaker) Rooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Exists reports whether roomID is live on this node.
func (m *Matchmaker) Exists(roomID string) bool {
	_, err := m.lookup(roomID)
	return err == nil
}

// Do runs fn on the room's goroutine.
func (m *Matchmaker) Do(ctx context.Context, roomID string, fn func(*room.Room) error) error {
	h, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	return translate(roomID, h.loop.Do(ctx, fn))
}

// Join admits c into roomID.
func (m *Matchmaker) Join(ctx context.Context, roomID string, c room.Client, profile state.Profile) error {
	return m.Do(ctx, roomID, func(r *room.Room) error {
		_, err := r.Join(c, profile)
		return err
	})
}

// Reconnect binds c to its disconnecting session in roomID.
func (m *Matchmaker) Reconnect(ctx context.Context, roomID string, c room.Client) error {
	return m.Do(ctx, roomID, func(r *room.Room) error {
		_, err := r.Reconnect(c)
		return err
	})
}

// Deliver queues an inbound command without waiting for it to run.
func (m *Matchmaker) Deliver(roomID string, c room.Client, command string, data []byte) error {
	h, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	return translate(roomID, h.loop.Post(func(r *room.Room) { r.HandleMessage(c, command, data) }))
}

// Leave queues c's departure.
func (m *Matchmaker) Leave(roomID string, c room.Client, consented bool) error {
	h, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	return translate(roomID, h.loop.Post(func(r *room.Room) { r.Leave(c, consented) }))
}

// Dispose stops roomID and unlists it.
func (m *Matchmaker) Dispose(roomID string) error {
	h, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	m.retire(h)
	<-h.loop.Done()
	return nil
}

// Shutdown stops every room, waits for their loops and flushes pending
// directory writes.
func (m *Matchmaker) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	handles := make([]*handle, 0, len(m.rooms))
	for _, h := range m.rooms {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	close(m.stopRelist)
	<-m.relisted
	for _, h := range handles {
		m.retire(h)
	}
	// Rooms that retired themselves earlier may still be draining; their
	// hooks publish until the loop exits.
	stopped := make(chan struct{})
	go func() {
		m.loops.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		return fmt.Errorf("matchmaker: waiting for rooms: %w", ctx.Err())
	}

	m.pubMu.Lock()
	m.pubClosed = true
	close(m.publish)
	m.pubMu.Unlock()
	select {
	case <-m.published:
	case <-ctx.Done():
		return fmt.Errorf("matchmaker: flushing directory: %w", ctx.Err())
	}
	m.logger.Info("matchmaker stopped", zap.Int("rooms", len(handles)))
	return nil
}

func (m *Matchmaker) lookup(roomID string) (*handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoomNotFound, roomID)
	}
	return h, nil
}

// retire removes h from the live set, stops its loop and unlists it. Called
// from OnEmpty on the room goroutine, so it must not wait for the loop.
func (m *Matchmaker) retire(h *handle) {
	m.mu.Lock()
	cur, ok := m.rooms[h.id]
	if ok && cur == h {
		delete(m.rooms, h.id)
	}
	m.mu.Unlock()
	if !ok || cur != h {
		return
	}

	h.loop.Stop()
	m.enqueue(func(ctx context.Context) error {
		return m.directory.Remove(ctx, h.id)
	})
	m.logger.Info("room retired", zap.String("room_id", h.id))
}

// list publishes h's occupancy.
func (m *Matchmaker) list(h *handle, users int) {
	h.occupancy.Store(int64(users))
	l := storage.Listing{
		RoomID:     h.id,
		Logic:      h.logic,
		Clients:    users,
		MaxClients: m.cfg.MaxClients,
		CreatedAt:  h.createdAt,
	}
	m.enqueue(func(ctx context.Context) error {
		return m.directory.Upsert(ctx, l)
	})
}

// enqueue hands a directory write to the publisher without blocking the
// caller. Writes are dropped with a warning when the queue is full and
// silently once Shutdown has closed it.
func (m *Matchmaker) enqueue(op func(context.Context) error) {
	m.pubMu.RLock()
	defer m.pubMu.RUnlock()
	if m.pubClosed {
		m.logger.Debug("directory publisher stopped; dropping write")
		return
	}
	select {
	case m.publish <- op:
	default:
		m.logger.Warn("directory queue full; dropping write")
	}
}

func (m *Matchmaker) runPublisher() {
	defer close(m.published)
	for op := range m.publish {
		ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
		if err := op(ctx); err != nil {
			m.logger.Warn("directory write failed", zap.Error(err))
		}
		cancel()
	}
}

// runRelister re-publishes live listings so TTL-based directories keep them.
func (m *Matchmaker) runRelister() {
	defer close(m.relisted)
	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopRelist:
			return
		case <-ticker.C:
			m.relist()
		}
	}
}

// relist enqueues under the read lock so a concurrent retire's Remove is
// always queued after the last refresh of that room.
func (m *Matchmaker) relist() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.rooms {
		m.list(h, int(h.occupancy.Load()))
	}
}

func translate(roomID string, err error) error {
	if errors.Is(err, room.ErrRoomClosed) {
		return fmt.Errorf("%w: %q", ErrRoomNotFound, roomID)
	}
	return err
}
