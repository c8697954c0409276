// Package room implements the authoritative session engine for one virtual
// room: replicated state, command handling, entity ownership, reconnection
// supervision and the simulation tick.
//
// A Room is single-threaded. Every method must be called from the goroutine
// that owns it; Loop provides that goroutine for production use.
package room

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/logic"
	"github.com/cory-johannsen/roomserver/internal/room/schema"
	"github.com/cory-johannsen/roomserver/internal/room/state"
)

// DefaultMaxClients caps concurrent users (connected or awaiting reconnection).
const DefaultMaxClients = 25

var (
	// ErrRoomFull is returned by Join when the room has no free seat.
	ErrRoomFull = errors.New("room: full")
	// ErrRoomClosed is returned once a room has been disposed.
	ErrRoomClosed = errors.New("room: closed")
	// ErrNotReconnecting is returned by Reconnect when the session is not awaiting reconnection.
	ErrNotReconnecting = errors.New("room: session is not awaiting reconnection")
)

// Client is a participant's connection as seen by the room.
type Client interface {
	logic.Client
	// Send delivers an outbound event. It must not block.
	Send(event string, payload any) error
}

// Config holds per-room tunables.
type Config struct {
	MaxClients         int
	ReconnectGrace     time.Duration
	SimulationInterval time.Duration
	PatchInterval      time.Duration
}

// DefaultConfig returns 25 clients, a 10s grace window, a 50ms simulation
// tick and 20 snapshots per second.
func DefaultConfig() Config {
	return Config{
		MaxClients:         DefaultMaxClients,
		ReconnectGrace:     DefaultReconnectGrace,
		SimulationInterval: 50 * time.Millisecond,
		PatchInterval:      time.Second / 20,
	}
}

// Hooks lets the owner of a room observe occupancy. Both are called on the
// room goroutine and must not block.
type Hooks struct {
	// OnOccupancy receives the user count after every join and purge.
	OnOccupancy func(users int)
	// OnEmpty fires after a purge leaves the room without users.
	OnEmpty func()
}

// Deps are the collaborators a room is built from.
type Deps struct {
	Host      *logic.Host
	Validator *schema.Validator
	Scheduler Scheduler
	// NewID generates entity ids; defaults to uuid.NewString.
	NewID  func() string
	Hooks  Hooks
	Logger *zap.Logger
}

var _ logic.Room = (*Room)(nil)

// Room is one isolated session instance.
type Room struct {
	id         string
	cfg        Config
	store      *state.Store
	owners     *OwnershipIndex
	entities   *EntityManager
	users      *UserManager
	supervisor *Supervisor
	clock      Clock
	host       *logic.Host
	router     *Router
	clients    map[string]Client
	socialOn   bool
	dirty      bool
	disposed   bool
	hooks      Hooks
	logger     *zap.Logger
}

// New builds a room, installs the command table and runs the module's
// Initialize hook.
//
// Precondition: id non-empty; deps.Host, deps.Scheduler and deps.Logger non-nil.
// Postcondition: The room is ready to accept joins; the simulation clock has not ticked.
func New(id string, cfg Config, opts logic.Options, deps Deps) *Room {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	if cfg.ReconnectGrace <= 0 {
		cfg.ReconnectGrace = DefaultReconnectGrace
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	logger := deps.Logger.With(zap.String("room_id", id))

	r := &Room{
		id:      id,
		cfg:     cfg,
		store:   state.NewStore(),
		owners:  NewOwnershipIndex(),
		host:    deps.Host,
		clients: make(map[string]Client),
		hooks:   deps.Hooks,
		logger:  logger,
	}
	r.entities = NewEntityManager(r.store, r.owners, newID, logger)
	r.users = NewUserManager(r.store)
	r.supervisor = NewSupervisor(cfg.ReconnectGrace, deps.Scheduler, r.purge, logger)
	r.router = NewRouter(deps.Validator, logger)
	r.store.OnChange(func(state.Change) { r.dirty = true })
	r.installHandlers()

	r.host.Initialize(r, opts)
	r.logger.Info("room created", zap.String("logic", r.host.Name()))
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// ServerTime returns the accumulated simulation time in milliseconds.
func (r *Room) ServerTime() float64 { return r.clock.Now() }

// State exposes the replicated store.
func (r *Room) State() *state.Store { return r.store }

// Owners exposes the ownership index.
func (r *Room) Owners() *OwnershipIndex { return r.owners }

// Supervisor exposes the reconnection supervisor.
func (r *Room) Supervisor() *Supervisor { return r.supervisor }

// Config returns the room's tunables.
func (r *Room) Config() Config { return r.cfg }

// LogicName returns the loaded module name.
func (r *Room) LogicName() string { return r.host.Name() }

// Occupancy returns the number of user records, including those awaiting reconnection.
func (r *Room) Occupancy() int { return r.users.Len() }

// Connected returns the number of live connections.
func (r *Room) Connected() int { return len(r.clients) }

// Join admits c with profile.
//
// Postcondition: On success the user is stored, c receives a full state
// snapshot and every connected participant receives onJoin. A duplicate
// account sends walletNotPassed to c and returns ErrAccountInUse.
func (r *Room) Join(c Client, profile state.Profile) (*state.User, error) {
	if r.disposed {
		return nil, ErrRoomClosed
	}
	if r.users.Len() >= r.cfg.MaxClients {
		return nil, ErrRoomFull
	}
	r.installSocialHandlers()

	u, err := r.users.Admit(c.SessionID(), c.ID(), profile, r.clock.Now())
	if err != nil {
		if errors.Is(err, ErrAccountInUse) {
			r.logger.Info("join rejected: account in use",
				zap.String("session_id", c.SessionID()),
				zap.String("account", profile.Account),
			)
			r.send(c, EventWalletNotPassed, struct{}{})
		}
		return nil, err
	}
	r.owners.Ensure(u.ID)
	r.clients[u.SessionID] = c

	r.send(c, EventState, r.store.Snapshot())
	r.Broadcast(EventJoin, u.Clone())
	r.logger.Info("user joined",
		zap.String("session_id", u.SessionID),
		zap.String("connection_id", u.ID),
		zap.String("account", u.Account),
	)
	r.occupancyChanged()
	return u, nil
}

// Leave handles a connection drop. Consented leaves purge immediately;
// others start the reconnection grace window.
func (r *Room) Leave(c Client, consented bool) {
	sid := c.SessionID()
	cur, ok := r.clients[sid]
	if !ok || cur != c {
		return
	}
	delete(r.clients, sid)
	if !r.users.MarkDisconnected(sid) {
		return
	}
	r.logger.Info("user left",
		zap.String("session_id", sid),
		zap.Bool("consented", consented),
	)
	if consented {
		r.purge(sid)
		return
	}
	r.supervisor.Begin(sid)
}

// Reconnect binds c to a session that is awaiting reconnection.
//
// Postcondition: Returns ErrNotReconnecting when no wait is pending for
// c.SessionID(); otherwise the user is connected again and c receives a snapshot.
func (r *Room) Reconnect(c Client) (*state.User, error) {
	if r.disposed {
		return nil, ErrRoomClosed
	}
	sid := c.SessionID()
	if !r.supervisor.Resolve(sid) {
		return nil, fmt.Errorf("%w: %q", ErrNotReconnecting, sid)
	}
	r.users.MarkReconnected(sid)
	r.clients[sid] = c
	u, _ := r.users.Get(sid)
	r.send(c, EventState, r.store.Snapshot())
	return u, nil
}

// HandleMessage routes an inbound command from an admitted client.
func (r *Room) HandleMessage(c Client, command string, data []byte) bool {
	if cur, ok := r.clients[c.SessionID()]; !ok || cur != c {
		r.logger.Debug("command from unadmitted connection",
			zap.String("session_id", c.SessionID()),
			zap.String("command", command),
		)
		return false
	}
	return r.router.Dispatch(c, command, data)
}

// Tick advances server time by elapsed and runs the module's tick hook.
func (r *Room) Tick(elapsed time.Duration) {
	r.clock.Advance(elapsed)
	r.host.ProcessTick(r, elapsed)
}

// FlushPatch broadcasts a state snapshot if anything changed since the last flush.
func (r *Room) FlushPatch() bool {
	if !r.dirty || len(r.clients) == 0 {
		return false
	}
	r.dirty = false
	r.Broadcast(EventState, r.store.Snapshot())
	return true
}

// Dispose cancels pending reconnection waits and releases the module.
func (r *Room) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	r.supervisor.StopAll()
	if err := r.host.Close(); err != nil {
		r.logger.Warn("closing logic module", zap.Error(err))
	}
	r.logger.Info("room disposed")
}

// purge removes the session's user, every entity its connection owns and the
// ownership entry, then runs the departure hook.
func (r *Room) purge(sessionID string) {
	u, ok := r.users.Get(sessionID)
	if !ok {
		return
	}
	r.users.Remove(sessionID)

	ids, ok := r.owners.Take(u.ID)
	if !ok {
		r.logger.Warn("ownership index has no entry for purged connection; skipping entity cleanup",
			zap.String("session_id", sessionID),
			zap.String("connection_id", u.ID),
		)
	} else {
		for _, id := range ids {
			r.store.Entities.Delete(id)
		}
	}
	r.logger.Info("user purged",
		zap.String("session_id", sessionID),
		zap.Int("entities_removed", len(ids)),
	)

	r.host.ProcessDeparture(r)
	r.occupancyChanged()
	if r.users.Len() == 0 && r.hooks.OnEmpty != nil {
		r.hooks.OnEmpty()
	}
}

func (r *Room) occupancyChanged() {
	if r.hooks.OnOccupancy != nil {
		r.hooks.OnOccupancy(r.users.Len())
	}
}

// connectionID returns the ownership identity for c, which is the identity
// recorded at admission even after a reconnect.
func (r *Room) connectionID(c Client) string {
	if u, ok := r.users.Get(c.SessionID()); ok {
		return u.ID
	}
	return c.ID()
}
